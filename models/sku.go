package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
)

// SKU is the identity of a sellable item. Immutable once referenced by
// inventory or orders, so there is no delete path, only deactivation.
type SKU struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"uniqueIndex:uniq_sku_code,priority:1;not null" json:"company_id"`
	Code      string    `gorm:"uniqueIndex:uniq_sku_code,priority:2;size:100;not null" json:"code"`
	Name      string    `gorm:"index;size:255;not null" json:"name"`
	BrandId   int       `gorm:"index" json:"brand_id"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSKU struct {
	Code    string `json:"code" validate:"required,max=100"`
	Name    string `json:"name" validate:"required,max=255"`
	BrandId int    `json:"brand_id"`
}

func (input *NewSKU) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[SKU](ctx, companyId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[SKU](ctx, companyId, "code", strings.TrimSpace(input.Code), id); err != nil {
		return err
	}
	if input.BrandId > 0 {
		if err := utils.ValidateResourceId[Brand](ctx, companyId, input.BrandId); err != nil {
			return errors.New("brand not found")
		}
	}
	return nil
}

func CreateSKU(ctx context.Context, input *NewSKU) (*SKU, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	sku := SKU{
		CompanyId: companyId,
		Code:      strings.TrimSpace(input.Code),
		Name:      input.Name,
		BrandId:   input.BrandId,
		IsActive:  utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&sku).Error
	if err != nil {
		return nil, err
	}

	return &sku, nil
}

func GetSKU(ctx context.Context, id int) (*SKU, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	return utils.FetchModel[SKU](ctx, companyId, id)
}

func GetSKUByCode(ctx context.Context, code string) (*SKU, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	var sku SKU
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ? AND code = ?", companyId, code).
		First(&sku).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &sku, nil
}

// ListActiveSKUs returns the SKUs the sync workers allocate and push.
func ListActiveSKUs(ctx context.Context) ([]SKU, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	var skus []SKU
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ? AND is_active = ?", companyId, true).
		Order("code").
		Find(&skus).Error
	if err != nil {
		return nil, err
	}
	return skus, nil
}
