package workflow

import (
	"context"
	"fmt"
	"sync"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"github.com/shopspring/decimal"
)

const DefaultVelocityWindowDays = 30

// VelocityReader supplies trailing sales velocity for a SKU on a channel.
// Implemented by models.SalesVelocityService in production and by fakes in
// tests.
type VelocityReader interface {
	DailyVelocity(ctx context.Context, skuId int, channel models.ChannelType, windowDays int) (decimal.Decimal, error)
}

// Per-channel risk multipliers for DYNAMIC buffering. Marketplaces with high
// return/cancellation rates hold more safety stock than the own storefront.
var channelRiskMultipliers = map[models.ChannelType]decimal.Decimal{
	models.ChannelAmazon:   decimal.NewFromFloat(1.3),
	models.ChannelFlipkart: decimal.NewFromFloat(1.25),
	models.ChannelShopify:  decimal.NewFromFloat(0.9),
	models.ChannelD2C:      decimal.NewFromFloat(0.85),
}

func riskMultiplier(channel models.ChannelType) decimal.Decimal {
	if m, ok := channelRiskMultipliers[channel]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

type velocityCacheKey struct {
	skuId      int
	channel    models.ChannelType
	windowDays int
}

// BufferCalculator computes the safety-stock quantity withheld from a
// channel's sellable allocation. Construct one per allocation pass: velocity
// is memoized per (sku, channel, window) so a pass over many SKUs and
// channels never repeats an identical aggregation query.
type BufferCalculator struct {
	velocity   VelocityReader
	windowDays int

	mu    sync.Mutex
	cache map[velocityCacheKey]decimal.Decimal
}

func NewBufferCalculator(velocity VelocityReader) *BufferCalculator {
	return &BufferCalculator{
		velocity:   velocity,
		windowDays: DefaultVelocityWindowDays,
		cache:      make(map[velocityCacheKey]decimal.Decimal),
	}
}

// ResetVelocityCache starts a new allocation pass on a long-lived calculator.
func (b *BufferCalculator) ResetVelocityCache() {
	b.mu.Lock()
	b.cache = make(map[velocityCacheKey]decimal.Decimal)
	b.mu.Unlock()
}

// cachedVelocity never fails: a velocity query error or missing data is
// treated as zero demand, which routes the caller to the minimum/default
// buffer branch. Buffering degrades safely; it must not block allocation.
func (b *BufferCalculator) cachedVelocity(ctx context.Context, skuId int, channel models.ChannelType) decimal.Decimal {
	key := velocityCacheKey{skuId: skuId, channel: channel, windowDays: b.windowDays}

	b.mu.Lock()
	if v, ok := b.cache[key]; ok {
		b.mu.Unlock()
		return v
	}
	b.mu.Unlock()

	v, err := b.velocity.DailyVelocity(ctx, skuId, channel, b.windowDays)
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "cachedVelocity",
			fmt.Sprintf("velocity query failed for sku=%d channel=%s; using zero", skuId, channel), nil, err)
		v = decimal.Zero
	}
	if v.IsNegative() {
		v = decimal.Zero
	}

	b.mu.Lock()
	b.cache[key] = v
	b.mu.Unlock()
	return v
}

// defaultBuffer is the no-rule policy: withhold 10% of available, at least 5
// units.
func defaultBuffer(availableQty int) int {
	pct := decimal.NewFromInt(int64(availableQty)).Mul(decimal.NewFromFloat(0.10))
	return utils.MaxInt(utils.RoundDecimalToInt(pct), 5)
}

// ComputeBuffer returns the non-negative quantity to withhold from one
// channel's allocation. rule may be nil (unconfigured channel).
func (b *BufferCalculator) ComputeBuffer(ctx context.Context, skuId int, channel models.ChannelType, availableQty int, rule *models.ChannelAllocationRule) int {
	if availableQty < 0 {
		availableQty = 0
	}
	if rule == nil || rule.BufferType == models.BufferNone {
		return defaultBuffer(availableQty)
	}

	switch rule.BufferType {
	case models.BufferFixed:
		return utils.ClampInt(utils.RoundDecimalToInt(rule.BufferValue), 0, availableQty)

	case models.BufferPercentage:
		pct := decimal.NewFromInt(int64(availableQty)).
			Mul(rule.BufferValue).
			Div(decimal.NewFromInt(100))
		return utils.ClampInt(utils.RoundDecimalToInt(pct), 0, availableQty)

	case models.BufferDaysOfCover:
		velocity := b.cachedVelocity(ctx, skuId, channel)
		qty := velocity.Mul(rule.BufferValue)
		return utils.ClampInt(utils.RoundDecimalToInt(qty), 0, availableQty)

	case models.BufferDynamic:
		return b.dynamicBuffer(ctx, skuId, channel, availableQty)

	default:
		// Unknown type in stored data falls back like a missing rule.
		return defaultBuffer(availableQty)
	}
}

// dynamicBuffer sizes safety stock from demand: a 3-day cover baseline,
// scaled up when the SKU is moving fast and by the channel's risk profile.
// The result is bounded to [max(5, 5% of available), 30% of available] so a
// velocity spike or misconfigured multiplier can neither zero out sellable
// stock nor reserve nearly all of it.
func (b *BufferCalculator) dynamicBuffer(ctx context.Context, skuId int, channel models.ChannelType, availableQty int) int {
	velocity := b.cachedVelocity(ctx, skuId, channel)

	base := velocity.Mul(decimal.NewFromInt(3))

	velocityMult := decimal.NewFromInt(1)
	if velocity.GreaterThan(decimal.NewFromInt(10)) {
		velocityMult = decimal.NewFromFloat(1.5)
	} else if velocity.GreaterThan(decimal.NewFromInt(5)) {
		velocityMult = decimal.NewFromFloat(1.2)
	}

	raw := base.Mul(velocityMult).Mul(riskMultiplier(channel))
	buffer := utils.RoundDecimalToInt(raw)

	avail := decimal.NewFromInt(int64(availableQty))
	floor := utils.MaxInt(5, utils.RoundDecimalToInt(avail.Mul(decimal.NewFromFloat(0.05))))
	cap := utils.RoundDecimalToInt(avail.Mul(decimal.NewFromFloat(0.30)))

	if buffer < floor {
		buffer = floor
	}
	// The cap wins over the floor: reserving over 30% of a small pool is
	// worse than a thin buffer.
	if buffer > cap {
		buffer = cap
	}
	return buffer
}
