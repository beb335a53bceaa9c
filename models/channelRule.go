package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"github.com/shopspring/decimal"
)

// ChannelAllocationRule is the operator-edited policy for one (SKU, channel)
// pair. Read-only during allocation.
type ChannelAllocationRule struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       string          `gorm:"uniqueIndex:uniq_channel_rule,priority:1;not null" json:"company_id"`
	SkuId           int             `gorm:"uniqueIndex:uniq_channel_rule,priority:2;not null" json:"sku_id"`
	Channel         ChannelType     `gorm:"uniqueIndex:uniq_channel_rule,priority:3;size:20;not null" json:"channel"`
	AllocationType  AllocationType  `gorm:"size:20;not null" json:"allocation_type"`
	AllocationValue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"allocation_value"`
	BufferType      BufferType      `gorm:"size:20;not null;default:NONE" json:"buffer_type"`
	BufferValue     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"buffer_value"`
	Priority        int             `gorm:"not null;default:100" json:"priority"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Sane reports whether the rule can be applied as configured. A false answer
// routes that single channel to the default policy; it never aborts
// allocation for other channels.
func (r *ChannelAllocationRule) Sane() error {
	if !r.AllocationType.IsValid() {
		return fmt.Errorf("unknown allocation type %q", r.AllocationType)
	}
	if !r.BufferType.IsValid() {
		return fmt.Errorf("unknown buffer type %q", r.BufferType)
	}
	if r.AllocationValue.IsNegative() {
		return errors.New("allocation value is negative")
	}
	if r.BufferValue.IsNegative() {
		return errors.New("buffer value is negative")
	}
	if r.AllocationType == AllocationPercentage && r.AllocationValue.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("allocation percentage exceeds 100")
	}
	return nil
}

type NewChannelAllocationRule struct {
	SkuId           int             `json:"sku_id" validate:"required"`
	Channel         ChannelType     `json:"channel" validate:"required"`
	AllocationType  AllocationType  `json:"allocation_type" validate:"required"`
	AllocationValue decimal.Decimal `json:"allocation_value"`
	BufferType      BufferType      `json:"buffer_type"`
	BufferValue     decimal.Decimal `json:"buffer_value"`
	Priority        int             `json:"priority"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewChannelAllocationRule) validate(ctx context.Context, companyId string, id int) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if id > 0 {
		if err := utils.ValidateResourceId[ChannelAllocationRule](ctx, companyId, id); err != nil {
			return err
		}
	}
	if !input.Channel.IsValid() {
		return fmt.Errorf("unknown channel %q", input.Channel)
	}
	if err := utils.ValidateResourceId[SKU](ctx, companyId, input.SkuId); err != nil {
		return errors.New("sku not found")
	}
	rule := ChannelAllocationRule{
		AllocationType:  input.AllocationType,
		AllocationValue: input.AllocationValue,
		BufferType:      input.BufferType,
		BufferValue:     input.BufferValue,
	}
	if rule.BufferType == "" {
		rule.BufferType = BufferNone
	}
	return rule.Sane()
}

func CreateChannelAllocationRule(ctx context.Context, input *NewChannelAllocationRule) (*ChannelAllocationRule, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, 0); err != nil {
		return nil, err
	}

	bufferType := input.BufferType
	if bufferType == "" {
		bufferType = BufferNone
	}
	priority := input.Priority
	if priority == 0 {
		priority = 100
	}

	rule := ChannelAllocationRule{
		CompanyId:       companyId,
		SkuId:           input.SkuId,
		Channel:         input.Channel,
		AllocationType:  input.AllocationType,
		AllocationValue: input.AllocationValue,
		BufferType:      bufferType,
		BufferValue:     input.BufferValue,
		Priority:        priority,
		IsActive:        utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&rule).Error
	if err != nil {
		return nil, err
	}

	return &rule, nil
}

func UpdateChannelAllocationRule(ctx context.Context, id int, input *NewChannelAllocationRule) (*ChannelAllocationRule, error) {

	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}

	if err := input.validate(ctx, companyId, id); err != nil {
		return nil, err
	}

	rule, err := utils.FetchModel[ChannelAllocationRule](ctx, companyId, id)
	if err != nil {
		return nil, err
	}

	bufferType := input.BufferType
	if bufferType == "" {
		bufferType = BufferNone
	}

	updates := map[string]interface{}{
		"allocation_type":  input.AllocationType,
		"allocation_value": input.AllocationValue,
		"buffer_type":      bufferType,
		"buffer_value":     input.BufferValue,
		"priority":         input.Priority,
	}
	if err := config.GetDB().WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
		return nil, err
	}
	return utils.FetchModel[ChannelAllocationRule](ctx, companyId, id)
}

func DeactivateChannelAllocationRule(ctx context.Context, id int) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	rule, err := utils.FetchModel[ChannelAllocationRule](ctx, companyId, id)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Model(rule).Update("is_active", utils.NewFalse()).Error
}

// ChannelRuleService adapts the rule lookup to the allocation engine's
// reader interface.
type ChannelRuleService struct{}

func (ChannelRuleService) ActiveRules(ctx context.Context, skuId int) ([]ChannelAllocationRule, error) {
	return GetActiveChannelRules(ctx, skuId)
}

// GetActiveChannelRules returns active rules for a SKU ordered by priority
// (lower first). Channels without a rule intentionally get the UNLIMITED
// treatment downstream.
func GetActiveChannelRules(ctx context.Context, skuId int) ([]ChannelAllocationRule, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	var rules []ChannelAllocationRule
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ? AND sku_id = ? AND is_active = ?", companyId, skuId, true).
		Order("priority, channel").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
