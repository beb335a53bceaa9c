package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"gorm.io/gorm/clause"
)

// ChannelAllocationSnapshot is the latest advised sellable quantity per
// (SKU, channel), persisted for observability. It is a cache of a derived
// decision, never a source of truth: the engine recomputes from live
// inventory on every push cycle.
type ChannelAllocationSnapshot struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CompanyId     string          `gorm:"uniqueIndex:uniq_alloc_snapshot,priority:1;not null" json:"company_id"`
	SkuId         int             `gorm:"uniqueIndex:uniq_alloc_snapshot,priority:2;not null" json:"sku_id"`
	Channel       ChannelType     `gorm:"uniqueIndex:uniq_alloc_snapshot,priority:3;size:20;not null" json:"channel"`
	Available     int             `gorm:"not null;default:0" json:"available"`
	RawAllocation int             `gorm:"not null;default:0" json:"raw_allocation"`
	Buffer        int             `gorm:"not null;default:0" json:"buffer"`
	Allocated     int             `gorm:"not null;default:0" json:"allocated"`
	RuleType      AllocationType  `gorm:"size:20" json:"rule_type"`
	Priority      int             `gorm:"default:100" json:"priority"`
	ComputedAt    time.Time       `gorm:"not null" json:"computed_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertAllocationSnapshots replaces the latest snapshot rows for a SKU.
func UpsertAllocationSnapshots(ctx context.Context, snapshots []ChannelAllocationSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	now := time.Now()
	for i := range snapshots {
		snapshots[i].CompanyId = companyId
		snapshots[i].ComputedAt = now
	}
	return config.GetDB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "company_id"}, {Name: "sku_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"available", "raw_allocation", "buffer", "allocated",
				"rule_type", "priority", "computed_at", "updated_at",
			}),
		}).
		Create(&snapshots).Error
}

type ChannelUtilization struct {
	Channel        ChannelType `json:"channel"`
	SkuCount       int         `json:"sku_count"`
	TotalAvailable int         `json:"total_available"`
	TotalAllocated int         `json:"total_allocated"`
	TotalBuffer    int         `json:"total_buffer"`
}

// GetChannelUtilization aggregates the latest snapshots per channel.
// skuId = 0 means all SKUs. Read-only, no side effects.
func GetChannelUtilization(ctx context.Context, skuId int) ([]ChannelUtilization, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	query := config.GetDB().WithContext(ctx).
		Model(&ChannelAllocationSnapshot{}).
		Select("channel, COUNT(*) AS sku_count, SUM(available) AS total_available, SUM(allocated) AS total_allocated, SUM(buffer) AS total_buffer").
		Where("company_id = ?", companyId).
		Group("channel").
		Order("channel")
	if skuId > 0 {
		query = query.Where("sku_id = ?", skuId)
	}

	var rows []ChannelUtilization
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
