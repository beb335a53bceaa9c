package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. Velocity comes from a fake
// reader; the production gorm-backed reader is exercised against a real
// MySQL in integration environments.

type fakeVelocityReader struct {
	mu       sync.Mutex
	velocity decimal.Decimal
	err      error
	calls    int
}

func (f *fakeVelocityReader) DailyVelocity(ctx context.Context, skuId int, channel models.ChannelType, windowDays int) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.velocity, nil
}

func ruleWithBuffer(bufferType models.BufferType, value float64) *models.ChannelAllocationRule {
	return &models.ChannelAllocationRule{
		AllocationType: models.AllocationUnlimited,
		BufferType:     bufferType,
		BufferValue:    decimal.NewFromFloat(value),
	}
}

func TestComputeBuffer_Fixed(t *testing.T) {
	calc := NewBufferCalculator(&fakeVelocityReader{})
	ctx := context.Background()

	if got := calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 100, ruleWithBuffer(models.BufferFixed, 20)); got != 20 {
		t.Fatalf("fixed buffer: expected 20, got %d", got)
	}
	// Never withhold more than is available.
	if got := calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 100, ruleWithBuffer(models.BufferFixed, 150)); got != 100 {
		t.Fatalf("fixed buffer clamp: expected 100, got %d", got)
	}
}

func TestComputeBuffer_Percentage(t *testing.T) {
	calc := NewBufferCalculator(&fakeVelocityReader{})
	ctx := context.Background()

	if got := calc.ComputeBuffer(ctx, 1, models.ChannelShopify, 200, ruleWithBuffer(models.BufferPercentage, 10)); got != 20 {
		t.Fatalf("percentage buffer: expected 20, got %d", got)
	}
	if got := calc.ComputeBuffer(ctx, 1, models.ChannelShopify, 10, ruleWithBuffer(models.BufferPercentage, 10)); got != 1 {
		t.Fatalf("percentage buffer: expected 1, got %d", got)
	}
}

func TestComputeBuffer_DaysOfCover(t *testing.T) {
	reader := &fakeVelocityReader{velocity: decimal.NewFromInt(4)}
	calc := NewBufferCalculator(reader)
	ctx := context.Background()

	if got := calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 100, ruleWithBuffer(models.BufferDaysOfCover, 7)); got != 28 {
		t.Fatalf("days of cover: expected 28, got %d", got)
	}
}

func TestComputeBuffer_DaysOfCover_VelocityErrorDegradesToZero(t *testing.T) {
	reader := &fakeVelocityReader{err: errors.New("velocity store down")}
	calc := NewBufferCalculator(reader)

	got := calc.ComputeBuffer(context.Background(), 1, models.ChannelAmazon, 100, ruleWithBuffer(models.BufferDaysOfCover, 7))
	if got != 0 {
		t.Fatalf("velocity failure should degrade to zero buffer, got %d", got)
	}
}

func TestComputeBuffer_DefaultPolicy(t *testing.T) {
	calc := NewBufferCalculator(&fakeVelocityReader{})
	ctx := context.Background()

	cases := []struct {
		avail int
		want  int
	}{
		{avail: 100, want: 10}, // 10%
		{avail: 10, want: 5},   // floor of 5 units
		{avail: 0, want: 5},    // floor applies even when nothing is available
		{avail: 200, want: 20},
	}
	for _, tc := range cases {
		if got := calc.ComputeBuffer(ctx, 1, models.ChannelD2C, tc.avail, nil); got != tc.want {
			t.Errorf("default buffer for avail=%d: expected %d, got %d", tc.avail, tc.want, got)
		}
		if got := calc.ComputeBuffer(ctx, 1, models.ChannelD2C, tc.avail, ruleWithBuffer(models.BufferNone, 0)); got != tc.want {
			t.Errorf("NONE buffer for avail=%d: expected %d, got %d", tc.avail, tc.want, got)
		}
	}
}

func TestComputeBuffer_DynamicBounds(t *testing.T) {
	velocities := []float64{0, 0.5, 3, 6, 11, 40}
	avails := []int{20, 100, 1000}

	for _, v := range velocities {
		for _, avail := range avails {
			reader := &fakeVelocityReader{velocity: decimal.NewFromFloat(v)}
			calc := NewBufferCalculator(reader)

			for _, ch := range models.AllChannelTypes() {
				got := calc.ComputeBuffer(context.Background(), 1, ch, avail, ruleWithBuffer(models.BufferDynamic, 0))

				capQty := int(decimal.NewFromInt(int64(avail)).Mul(decimal.NewFromFloat(0.30)).Round(0).IntPart())
				floorQty := 5
				if pct := int(decimal.NewFromInt(int64(avail)).Mul(decimal.NewFromFloat(0.05)).Round(0).IntPart()); pct > floorQty {
					floorQty = pct
				}
				if floorQty > capQty {
					floorQty = capQty
				}

				if got < floorQty || got > capQty {
					t.Errorf("dynamic buffer out of bounds: velocity=%v avail=%d channel=%s got=%d bounds=[%d,%d]",
						v, avail, ch, got, floorQty, capQty)
				}
			}
		}
	}
}

func TestComputeBuffer_DynamicCapWinsOverFloor(t *testing.T) {
	// avail=10: floor is max(5, 1)=5 but the cap is 3. Reserving half of a
	// tiny pool is worse than a thin buffer.
	calc := NewBufferCalculator(&fakeVelocityReader{})
	got := calc.ComputeBuffer(context.Background(), 1, models.ChannelAmazon, 10, ruleWithBuffer(models.BufferDynamic, 0))
	if got != 3 {
		t.Fatalf("expected cap of 3, got %d", got)
	}
}

func TestComputeBuffer_DynamicScalesWithRisk(t *testing.T) {
	reader := &fakeVelocityReader{velocity: decimal.NewFromInt(8)}
	calc := NewBufferCalculator(reader)
	ctx := context.Background()

	// velocity 8 -> base 24 * 1.2 = 28.8; Amazon *1.3 = 37 (rounded),
	// D2C *0.85 = 24 (rounded). avail=150 keeps both inside [8, 45].
	amazon := calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 150, ruleWithBuffer(models.BufferDynamic, 0))
	d2c := calc.ComputeBuffer(ctx, 1, models.ChannelD2C, 150, ruleWithBuffer(models.BufferDynamic, 0))

	if amazon != 37 {
		t.Errorf("amazon dynamic buffer: expected 37, got %d", amazon)
	}
	if d2c != 24 {
		t.Errorf("d2c dynamic buffer: expected 24, got %d", d2c)
	}
	if amazon <= d2c {
		t.Errorf("higher-risk channel should hold more: amazon=%d d2c=%d", amazon, d2c)
	}
}

func TestComputeBuffer_VelocityMemoizedPerPass(t *testing.T) {
	reader := &fakeVelocityReader{velocity: decimal.NewFromInt(4)}
	calc := NewBufferCalculator(reader)
	ctx := context.Background()

	rule := ruleWithBuffer(models.BufferDaysOfCover, 7)
	calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 100, rule)
	calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 100, rule)
	if reader.calls != 1 {
		t.Fatalf("expected 1 velocity query for repeated key, got %d", reader.calls)
	}

	// Different channel is a different key.
	calc.ComputeBuffer(ctx, 1, models.ChannelShopify, 100, rule)
	if reader.calls != 2 {
		t.Fatalf("expected 2 velocity queries, got %d", reader.calls)
	}

	calc.ResetVelocityCache()
	calc.ComputeBuffer(ctx, 1, models.ChannelAmazon, 100, rule)
	if reader.calls != 3 {
		t.Fatalf("expected fresh query after reset, got %d", reader.calls)
	}
}
