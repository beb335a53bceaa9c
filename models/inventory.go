package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
)

// InventoryRecord is the authoritative physical on-hand count for one SKU in
// one warehouse. It is mutated by receiving/shipping/adjustment workflows;
// the allocation core only ever reads it.
type InventoryRecord struct {
	ID          int       `gorm:"primary_key" json:"id"`
	CompanyId   string    `gorm:"uniqueIndex:uniq_inventory,priority:1;not null" json:"company_id"`
	SkuId       int       `gorm:"uniqueIndex:uniq_inventory,priority:2;not null" json:"sku_id"`
	WarehouseId int       `gorm:"uniqueIndex:uniq_inventory,priority:3;not null" json:"warehouse_id"`
	Available   int       `gorm:"not null;default:0" json:"available"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetAvailableQuantity sums physically-countable units across warehouses.
// Any error here must abort allocation for the SKU; allocating against
// stale or zero data is worse than skipping the sync cycle.
func GetAvailableQuantity(ctx context.Context, skuId int) (int, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return 0, errors.New("company id is required")
	}

	var total *int
	err := config.GetDB().WithContext(ctx).
		Model(&InventoryRecord{}).
		Select("SUM(available)").
		Where("company_id = ? AND sku_id = ?", companyId, skuId).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	if *total < 0 {
		// Physical counts can never be negative; treat bad data as empty.
		return 0, nil
	}
	return *total, nil
}

type NewInventoryAdjustment struct {
	SkuId       int `json:"sku_id" validate:"required"`
	WarehouseId int `json:"warehouse_id" validate:"required"`
	Available   int `json:"available" validate:"gte=0"`
}

// SetAvailableQuantity is the operator-facing adjustment path (receiving,
// cycle counts). Not called by the allocation core.
func SetAvailableQuantity(ctx context.Context, input *NewInventoryAdjustment) (*InventoryRecord, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[SKU](ctx, companyId, input.SkuId); err != nil {
		return nil, errors.New("sku not found")
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, companyId, input.WarehouseId); err != nil {
		return nil, errors.New("warehouse not found")
	}

	db := config.GetDB().WithContext(ctx)

	var rec InventoryRecord
	err := db.Where("company_id = ? AND sku_id = ? AND warehouse_id = ?",
		companyId, input.SkuId, input.WarehouseId).
		First(&rec).Error
	if err != nil {
		rec = InventoryRecord{
			CompanyId:   companyId,
			SkuId:       input.SkuId,
			WarehouseId: input.WarehouseId,
			Available:   input.Available,
		}
		if err := db.Create(&rec).Error; err != nil {
			return nil, err
		}
		return &rec, nil
	}

	if err := db.Model(&rec).Update("available", input.Available).Error; err != nil {
		return nil, err
	}
	rec.Available = input.Available
	return &rec, nil
}
