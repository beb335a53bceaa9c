package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/shopspring/decimal"
)

// RuleReader supplies the active allocation rules for a SKU. Implemented by
// models.ChannelRuleService in production and by fakes in tests.
type RuleReader interface {
	ActiveRules(ctx context.Context, skuId int) ([]models.ChannelAllocationRule, error)
}

// AllocationResult is the advised sellable quantity for one channel.
type AllocationResult struct {
	Allocated     int                   `json:"allocated"`
	Buffer        int                   `json:"buffer"`
	RawAllocation int                   `json:"raw_allocation"`
	RuleType      models.AllocationType `json:"rule_type"`
	Priority      int                   `json:"priority"`
}

// AllocationEngine splits one SKU's available quantity across the channels
// listing it. The decision is a snapshot advisory cap, not a reservation:
// the caller pushes the numbers to channels, and true stock decrement only
// happens when an order consumes units. Safe for concurrent callers.
type AllocationEngine struct {
	rules   RuleReader
	buffers *BufferCalculator
}

func NewAllocationEngine(rules RuleReader, buffers *BufferCalculator) *AllocationEngine {
	return &AllocationEngine{rules: rules, buffers: buffers}
}

// Allocate produces a per-channel sellable quantity whose sum never exceeds
// availableQty.
//
// Three passes:
//  1. raw requests per channel policy (no rule = UNLIMITED: a new,
//     unconfigured channel sells everything available, by policy);
//  2. proportional scale-down when the raw sum oversubscribes supply;
//  3. buffer subtraction, which only ever shrinks a channel's share.
//
// PRIORITY and FAIR_SHARE receive the UNLIMITED raw treatment; those
// policies are expected to be configured with tighter FIXED/PERCENTAGE
// bounds rather than relying on ordering.
func (e *AllocationEngine) Allocate(ctx context.Context, skuId int, availableQty int, channels []models.ChannelType) (map[models.ChannelType]AllocationResult, error) {
	results := make(map[models.ChannelType]AllocationResult, len(channels))
	if len(channels) == 0 {
		return results, nil
	}
	if availableQty < 0 {
		availableQty = 0
	}

	ruleByChannel := e.loadRules(ctx, skuId)

	// Raw pass.
	raw := make(map[models.ChannelType]int, len(channels))
	total := 0
	for _, ch := range channels {
		qty := rawRequest(availableQty, ruleByChannel[ch])
		raw[ch] = qty
		total += qty
	}

	// Normalization pass: proportional scale-down, floored. Channels asking
	// for more are cut more; nobody is zeroed arbitrarily.
	if total > availableQty && total > 0 {
		for ch, qty := range raw {
			raw[ch] = int(int64(qty) * int64(availableQty) / int64(total))
		}
	}

	// Buffer pass: only subtracts, so the conservation invariant set by
	// normalization survives.
	for _, ch := range channels {
		rule := ruleByChannel[ch]
		qty := raw[ch]
		buffer := e.buffers.ComputeBuffer(ctx, skuId, ch, qty, rule)
		allocated := qty - buffer
		if allocated < 0 {
			allocated = 0
		}

		result := AllocationResult{
			Allocated:     allocated,
			Buffer:        buffer,
			RawAllocation: qty,
			RuleType:      models.AllocationUnlimited,
			Priority:      100,
		}
		if rule != nil {
			result.RuleType = rule.AllocationType
			result.Priority = rule.Priority
		}
		results[ch] = result
	}

	return results, nil
}

// loadRules fetches and indexes the SKU's active rules. A failed rule query
// or an insane rule degrades that lookup to "no rule" (default policy); it
// never fails the allocation.
func (e *AllocationEngine) loadRules(ctx context.Context, skuId int) map[models.ChannelType]*models.ChannelAllocationRule {
	byChannel := make(map[models.ChannelType]*models.ChannelAllocationRule)

	rules, err := e.rules.ActiveRules(ctx, skuId)
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "loadRules",
			fmt.Sprintf("rule query failed for sku=%d; all channels fall back to default policy", skuId), nil, err)
		return byChannel
	}

	for i := range rules {
		rule := &rules[i]
		if err := rule.Sane(); err != nil {
			config.LogWarn(config.GetLogger(), "workflow", "loadRules",
				fmt.Sprintf("invalid rule id=%d for sku=%d channel=%s: %v; using default policy", rule.ID, skuId, rule.Channel, err), rule)
			continue
		}
		byChannel[rule.Channel] = rule
	}
	return byChannel
}

func rawRequest(availableQty int, rule *models.ChannelAllocationRule) int {
	if rule == nil {
		return availableQty
	}
	switch rule.AllocationType {
	case models.AllocationPercentage:
		qty := rule.AllocationValue.
			Mul(decimal.NewFromInt(int64(availableQty))).
			Div(decimal.NewFromInt(100))
		n := int(qty.Round(0).IntPart())
		if n > availableQty {
			n = availableQty
		}
		return n
	case models.AllocationFixed:
		n := int(rule.AllocationValue.Round(0).IntPart())
		if n > availableQty {
			n = availableQty
		}
		if n < 0 {
			n = 0
		}
		return n
	default:
		// UNLIMITED, PRIORITY, FAIR_SHARE: request everything; ordering is
		// resolved by proportional normalization, not here.
		return availableQty
	}
}
