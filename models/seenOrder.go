package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"gorm.io/gorm"
)

// SeenOrderRecord is a durable marker that a (channel, marketplaceOrderId)
// pair has already been converted into a local order. Append-only, written
// exclusively by the duplicate detector; created exactly once per unique
// marketplace order and never updated.
type SeenOrderRecord struct {
	ID                 int         `gorm:"primary_key" json:"id"`
	CompanyId          string      `gorm:"uniqueIndex:uniq_seen_order,priority:1;not null" json:"company_id"`
	Channel            ChannelType `gorm:"uniqueIndex:uniq_seen_order,priority:2;size:20;not null" json:"channel"`
	MarketplaceOrderId string      `gorm:"uniqueIndex:uniq_seen_order,priority:3;size:128;not null" json:"marketplace_order_id"`
	LocalOrderId       int         `gorm:"index;not null" json:"local_order_id"`
	FirstSeenAt        time.Time   `gorm:"autoCreateTime" json:"first_seen_at"`
}

// LookupSeenOrder returns (nil, nil) when the pair has not been seen.
// Infrastructure errors are returned as-is; the detector must fail loud
// rather than treat a failed lookup as "not a duplicate".
func LookupSeenOrder(ctx context.Context, channel ChannelType, marketplaceOrderId string) (*SeenOrderRecord, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	var rec SeenOrderRecord
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ? AND channel = ? AND marketplace_order_id = ?",
			companyId, channel, marketplaceOrderId).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AppendSeenOrder records the pair as seen. A concurrent writer losing the
// race on the unique index is fine: the marker exists either way.
func AppendSeenOrder(ctx context.Context, channel ChannelType, marketplaceOrderId string, localOrderId int) error {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return errors.New("company id is required")
	}
	rec := SeenOrderRecord{
		CompanyId:          companyId,
		Channel:            channel,
		MarketplaceOrderId: marketplaceOrderId,
		LocalOrderId:       localOrderId,
	}
	err := config.GetDB().WithContext(ctx).Create(&rec).Error
	if err != nil && IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// RecentSeenOrders warms the detector's in-memory cache with markers seen
// within the trailing window.
func RecentSeenOrders(ctx context.Context, channel ChannelType, since time.Time) ([]SeenOrderRecord, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	var recs []SeenOrderRecord
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ? AND channel = ? AND first_seen_at >= ?", companyId, channel, since).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// LookupOrderByFingerprint finds an existing local order on the same channel
// with the same payload fingerprint. Returns 0 when none exists.
func LookupOrderByFingerprint(ctx context.Context, channel ChannelType, fingerprint string) (int, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return 0, errors.New("company id is required")
	}
	var order MarketplaceOrder
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ? AND channel = ? AND fingerprint = ?", companyId, channel, fingerprint).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}

// SeenOrderService adapts the durable store functions to the detector's
// store interface.
type SeenOrderService struct{}

func (SeenOrderService) Lookup(ctx context.Context, channel ChannelType, marketplaceOrderId string) (*SeenOrderRecord, error) {
	return LookupSeenOrder(ctx, channel, marketplaceOrderId)
}

func (SeenOrderService) Append(ctx context.Context, channel ChannelType, marketplaceOrderId string, localOrderId int) error {
	return AppendSeenOrder(ctx, channel, marketplaceOrderId, localOrderId)
}

func (SeenOrderService) RecentSeen(ctx context.Context, channel ChannelType, since time.Time) ([]SeenOrderRecord, error) {
	return RecentSeenOrders(ctx, channel, since)
}

func (SeenOrderService) LookupByFingerprint(ctx context.Context, channel ChannelType, fingerprint string) (int, error) {
	return LookupOrderByFingerprint(ctx, channel, fingerprint)
}
