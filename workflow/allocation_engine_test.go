package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/shopspring/decimal"
)

type fakeRuleReader struct {
	rules []models.ChannelAllocationRule
	err   error
}

func (f *fakeRuleReader) ActiveRules(ctx context.Context, skuId int) ([]models.ChannelAllocationRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

func newTestEngine(rules []models.ChannelAllocationRule) *AllocationEngine {
	buffers := NewBufferCalculator(&fakeVelocityReader{})
	return NewAllocationEngine(&fakeRuleReader{rules: rules}, buffers)
}

func zeroBufferRule(channel models.ChannelType, allocType models.AllocationType, value float64) models.ChannelAllocationRule {
	return models.ChannelAllocationRule{
		Channel:         channel,
		AllocationType:  allocType,
		AllocationValue: decimal.NewFromFloat(value),
		BufferType:      models.BufferFixed,
		BufferValue:     decimal.Zero,
		Priority:        100,
	}
}

func sumAllocated(results map[models.ChannelType]AllocationResult) int {
	total := 0
	for _, r := range results {
		total += r.Allocated
	}
	return total
}

func TestAllocate_ZeroChannels(t *testing.T) {
	engine := newTestEngine(nil)

	results, err := engine.Allocate(context.Background(), 1, 100, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result map, got %d entries", len(results))
	}
}

func TestAllocate_ZeroAvailable(t *testing.T) {
	engine := newTestEngine(nil)

	results, err := engine.Allocate(context.Background(), 1, 0, models.AllChannelTypes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for ch, r := range results {
		if r.Allocated != 0 {
			t.Errorf("channel %s: expected zero allocation, got %d", ch, r.Allocated)
		}
	}
}

func TestAllocate_ProportionalNormalization(t *testing.T) {
	// Two channels each asking for 60% of 100 oversubscribe to 120; both are
	// scaled back to 50.
	rules := []models.ChannelAllocationRule{
		zeroBufferRule(models.ChannelAmazon, models.AllocationPercentage, 60),
		zeroBufferRule(models.ChannelFlipkart, models.AllocationPercentage, 60),
	}
	engine := newTestEngine(rules)

	results, err := engine.Allocate(context.Background(), 1, 100, []models.ChannelType{models.ChannelAmazon, models.ChannelFlipkart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[models.ChannelAmazon].Allocated != 50 || results[models.ChannelFlipkart].Allocated != 50 {
		t.Fatalf("expected 50/50 split, got %d/%d",
			results[models.ChannelAmazon].Allocated, results[models.ChannelFlipkart].Allocated)
	}
}

func TestAllocate_FixedCappedByAvailabilityThenBuffered(t *testing.T) {
	// FIXED 50 on 10 available caps to 10; a 10% buffer withholds 1.
	rules := []models.ChannelAllocationRule{
		{
			Channel:         models.ChannelShopify,
			AllocationType:  models.AllocationFixed,
			AllocationValue: decimal.NewFromInt(50),
			BufferType:      models.BufferPercentage,
			BufferValue:     decimal.NewFromInt(10),
			Priority:        100,
		},
	}
	engine := newTestEngine(rules)

	results, err := engine.Allocate(context.Background(), 1, 10, []models.ChannelType{models.ChannelShopify})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[models.ChannelShopify]
	if r.RawAllocation != 10 {
		t.Errorf("expected raw capped at 10, got %d", r.RawAllocation)
	}
	if r.Buffer != 1 {
		t.Errorf("expected buffer 1, got %d", r.Buffer)
	}
	if r.Allocated != 9 {
		t.Errorf("expected allocated 9, got %d", r.Allocated)
	}
}

func TestAllocate_NoRuleGetsUnlimitedTreatment(t *testing.T) {
	engine := newTestEngine(nil)

	results, err := engine.Allocate(context.Background(), 1, 100, []models.ChannelType{models.ChannelD2C})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[models.ChannelD2C]
	if r.RuleType != models.AllocationUnlimited {
		t.Errorf("expected UNLIMITED rule type, got %s", r.RuleType)
	}
	if r.Priority != 100 {
		t.Errorf("expected default priority 100, got %d", r.Priority)
	}
	if r.RawAllocation != 100 {
		t.Errorf("expected full raw allocation, got %d", r.RawAllocation)
	}
	// Default buffer policy withholds 10% (min 5).
	if r.Allocated != 90 {
		t.Errorf("expected 90 after default buffer, got %d", r.Allocated)
	}
}

func TestAllocate_InvalidRuleFallsBackPerChannel(t *testing.T) {
	rules := []models.ChannelAllocationRule{
		zeroBufferRule(models.ChannelAmazon, models.AllocationPercentage, 150), // invalid: >100
		zeroBufferRule(models.ChannelFlipkart, models.AllocationPercentage, 20),
	}
	engine := newTestEngine(rules)

	results, err := engine.Allocate(context.Background(), 1, 100, []models.ChannelType{models.ChannelAmazon, models.ChannelFlipkart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The invalid rule's channel gets the default policy, not a failure.
	if results[models.ChannelAmazon].RuleType != models.AllocationUnlimited {
		t.Errorf("invalid rule should fall back to default policy, got %s", results[models.ChannelAmazon].RuleType)
	}
	// The valid rule is unaffected.
	if results[models.ChannelFlipkart].RuleType != models.AllocationPercentage {
		t.Errorf("valid rule should apply, got %s", results[models.ChannelFlipkart].RuleType)
	}
	if got := sumAllocated(results); got > 100 {
		t.Errorf("conservation violated: %d > 100", got)
	}
}

func TestAllocate_RuleQueryFailureDegradesToDefaults(t *testing.T) {
	buffers := NewBufferCalculator(&fakeVelocityReader{})
	engine := NewAllocationEngine(&fakeRuleReader{err: errors.New("rules table down")}, buffers)

	results, err := engine.Allocate(context.Background(), 1, 100, models.AllChannelTypes())
	if err != nil {
		t.Fatalf("rule query failure must not abort allocation: %v", err)
	}
	for ch, r := range results {
		if r.RuleType != models.AllocationUnlimited {
			t.Errorf("channel %s: expected default policy, got %s", ch, r.RuleType)
		}
	}
}

func TestAllocate_ConservationProperty(t *testing.T) {
	ruleSets := [][]models.ChannelAllocationRule{
		nil,
		{
			zeroBufferRule(models.ChannelAmazon, models.AllocationPercentage, 80),
			zeroBufferRule(models.ChannelFlipkart, models.AllocationPercentage, 80),
			zeroBufferRule(models.ChannelShopify, models.AllocationFixed, 90),
		},
		{
			zeroBufferRule(models.ChannelAmazon, models.AllocationUnlimited, 0),
			zeroBufferRule(models.ChannelFlipkart, models.AllocationPriority, 0),
			zeroBufferRule(models.ChannelShopify, models.AllocationFairShare, 0),
		},
		{
			zeroBufferRule(models.ChannelAmazon, models.AllocationFixed, 5),
			zeroBufferRule(models.ChannelD2C, models.AllocationPercentage, 100),
		},
	}
	avails := []int{0, 1, 7, 10, 100, 999}

	for i, rules := range ruleSets {
		for _, avail := range avails {
			engine := newTestEngine(rules)
			results, err := engine.Allocate(context.Background(), 1, avail, models.AllChannelTypes())
			if err != nil {
				t.Fatalf("ruleSet=%d avail=%d: unexpected error: %v", i, avail, err)
			}
			if got := sumAllocated(results); got > avail {
				t.Errorf("ruleSet=%d avail=%d: conservation violated, allocated %d", i, avail, got)
			}
			for ch, r := range results {
				if r.Allocated < 0 {
					t.Errorf("ruleSet=%d avail=%d channel=%s: negative allocation %d", i, avail, ch, r.Allocated)
				}
			}
		}
	}
}

func TestAllocate_BufferOnlyShrinks(t *testing.T) {
	// Same setup with and without buffering: buffered allocation never
	// exceeds the unbuffered one.
	withBuffer := []models.ChannelAllocationRule{
		{
			Channel:         models.ChannelAmazon,
			AllocationType:  models.AllocationPercentage,
			AllocationValue: decimal.NewFromInt(50),
			BufferType:      models.BufferPercentage,
			BufferValue:     decimal.NewFromInt(20),
			Priority:        100,
		},
	}
	without := []models.ChannelAllocationRule{
		zeroBufferRule(models.ChannelAmazon, models.AllocationPercentage, 50),
	}

	channels := []models.ChannelType{models.ChannelAmazon}
	for _, avail := range []int{0, 10, 50, 100, 500} {
		buffered, err := newTestEngine(withBuffer).Allocate(context.Background(), 1, avail, channels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		plain, err := newTestEngine(without).Allocate(context.Background(), 1, avail, channels)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buffered[models.ChannelAmazon].Allocated > plain[models.ChannelAmazon].Allocated {
			t.Errorf("avail=%d: buffering increased allocation: %d > %d", avail,
				buffered[models.ChannelAmazon].Allocated, plain[models.ChannelAmazon].Allocated)
		}
	}
}
