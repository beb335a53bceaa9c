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

const velocityCacheTTL = 5 * time.Minute

// GetDailyVelocity returns units sold per day for a SKU over a trailing
// window, optionally scoped to one channel (empty channel = all channels).
// Cancelled/returned/failed orders never count as demand.
//
// When SHARED_VELOCITY_CACHE is on, results are cached in Redis with a short
// TTL so concurrently-syncing instances do not repeat the same aggregation.
// The per-allocation-pass memoization lives in the buffer calculator; this
// cache only spans instances.
func GetDailyVelocity(ctx context.Context, skuId int, channel ChannelType, windowDays int) (decimal.Decimal, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return decimal.Zero, errors.New("company id is required")
	}
	if windowDays <= 0 {
		windowDays = 30
	}

	cacheKey := fmt.Sprintf("velocity:%s:%d:%s:%d", companyId, skuId, channel, windowDays)
	if config.UseSharedVelocityCache() {
		var cached string
		if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
			if d, derr := decimal.NewFromString(cached); derr == nil {
				return d, nil
			}
		}
	}

	since := time.Now().AddDate(0, 0, -windowDays)

	query := config.GetDB().WithContext(ctx).
		Table("marketplace_order_items AS oi").
		Joins("JOIN marketplace_orders o ON o.id = oi.order_id").
		Joins("JOIN skus s ON s.company_id = o.company_id AND s.code = oi.sku_code").
		Where("o.company_id = ?", companyId).
		Where("s.id = ?", skuId).
		Where("o.order_date >= ?", since).
		Where("o.status NOT IN ?", ExcludedVelocityStatuses())
	if channel != "" {
		query = query.Where("o.channel = ?", channel)
	}

	var sold *decimal.Decimal
	if err := query.Select("SUM(oi.quantity)").Scan(&sold).Error; err != nil {
		return decimal.Zero, err
	}

	velocity := decimal.Zero
	if sold != nil {
		velocity = sold.Div(decimal.NewFromInt(int64(windowDays)))
	}

	if config.UseSharedVelocityCache() {
		_ = config.SetRedisObject(cacheKey, velocity.String(), velocityCacheTTL)
	}

	return velocity, nil
}

// SalesVelocityService adapts GetDailyVelocity to the buffer calculator's
// reader interface.
type SalesVelocityService struct{}

func (SalesVelocityService) DailyVelocity(ctx context.Context, skuId int, channel ChannelType, windowDays int) (decimal.Decimal, error) {
	return GetDailyVelocity(ctx, skuId, channel, windowDays)
}
