package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"github.com/shopspring/decimal"
)

type fakeSeenOrderStore struct {
	mu           sync.Mutex
	records      map[string]*models.SeenOrderRecord // channel|id
	fingerprints map[string]int                     // channel|fingerprint -> localOrderId
	lookupErr    error
	recentErr    error
	appendErr    error
	lookupCalls  int
}

func newFakeSeenOrderStore() *fakeSeenOrderStore {
	return &fakeSeenOrderStore{
		records:      make(map[string]*models.SeenOrderRecord),
		fingerprints: make(map[string]int),
	}
}

func (f *fakeSeenOrderStore) key(channel models.ChannelType, id string) string {
	return string(channel) + "|" + id
}

func (f *fakeSeenOrderStore) Lookup(ctx context.Context, channel models.ChannelType, marketplaceOrderId string) (*models.SeenOrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.records[f.key(channel, marketplaceOrderId)], nil
}

func (f *fakeSeenOrderStore) Append(ctx context.Context, channel models.ChannelType, marketplaceOrderId string, localOrderId int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records[f.key(channel, marketplaceOrderId)] = &models.SeenOrderRecord{
		Channel:            channel,
		MarketplaceOrderId: marketplaceOrderId,
		LocalOrderId:       localOrderId,
	}
	return nil
}

func (f *fakeSeenOrderStore) RecentSeen(ctx context.Context, channel models.ChannelType, since time.Time) ([]models.SeenOrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	var out []models.SeenOrderRecord
	for _, rec := range f.records {
		if rec.Channel == channel {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeSeenOrderStore) LookupByFingerprint(ctx context.Context, channel models.ChannelType, fingerprint string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fingerprints[string(channel)+"|"+fingerprint], nil
}

func testCtx() context.Context {
	return utils.SetCompanyIdInContext(context.Background(), "company-1")
}

func testPayload(id string) OrderPayload {
	return OrderPayload{
		MarketplaceOrderId: id,
		CustomerPhone:      "+919876543210",
		CustomerEmail:      "buyer@example.com",
		TotalAmount:        decimal.NewFromFloat(499.00),
		OrderDate:          time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Status:             models.OrderStatusPending,
		Lines: []OrderLine{
			{SkuCode: "TSHIRT-M", Quantity: 2, UnitPrice: decimal.NewFromFloat(249.50)},
		},
	}
}

func TestIsDuplicate_RetryOfMarkedOrder(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	if err := detector.MarkSeen(ctx, models.ChannelShopify, "1001", 42); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	dup, localId, err := detector.IsDuplicate(ctx, models.ChannelShopify, "1001", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup || localId != 42 {
		t.Fatalf("expected (true, 42), got (%v, %d)", dup, localId)
	}
}

func TestIsDuplicate_EmptyIdIsError(t *testing.T) {
	detector := NewDuplicateDetector(newFakeSeenOrderStore())

	if _, _, err := detector.IsDuplicate(testCtx(), models.ChannelAmazon, "", nil); err == nil {
		t.Fatal("expected error for empty marketplace order id")
	}
}

func TestIsDuplicate_WarmCacheAvoidsDurableLookups(t *testing.T) {
	store := newFakeSeenOrderStore()
	_ = store.Append(context.Background(), models.ChannelAmazon, "A-1", 7)
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	store.mu.Lock()
	store.lookupCalls = 0
	store.mu.Unlock()

	dup, localId, err := detector.IsDuplicate(ctx, models.ChannelAmazon, "A-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup || localId != 7 {
		t.Fatalf("expected (true, 7), got (%v, %d)", dup, localId)
	}
	store.mu.Lock()
	calls := store.lookupCalls
	store.mu.Unlock()
	if calls != 0 {
		t.Fatalf("warm cache should answer without durable lookup, got %d lookups", calls)
	}
}

func TestIsDuplicate_DurableHitBackfillsCache(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	// Warm the (empty) cache first so the later append is invisible to it.
	if _, _, err := detector.IsDuplicate(ctx, models.ChannelFlipkart, "F-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = store.Append(context.Background(), models.ChannelFlipkart, "F-2", 9)

	dup, localId, err := detector.IsDuplicate(ctx, models.ChannelFlipkart, "F-2", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup || localId != 9 {
		t.Fatalf("expected (true, 9), got (%v, %d)", dup, localId)
	}

	// Second check answers from the cache.
	store.mu.Lock()
	store.lookupCalls = 0
	store.mu.Unlock()
	if dup, _, _ := detector.IsDuplicate(ctx, models.ChannelFlipkart, "F-2", nil); !dup {
		t.Fatal("expected cached duplicate")
	}
	store.mu.Lock()
	calls := store.lookupCalls
	store.mu.Unlock()
	if calls != 0 {
		t.Fatalf("expected cache hit, got %d durable lookups", calls)
	}
}

func TestIsDuplicate_FingerprintCatchesRenamedOrder(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	payload := testPayload("NEW-ID-999")
	store.fingerprints[string(models.ChannelShopify)+"|"+OrderFingerprint(&payload)] = 55

	dup, localId, err := detector.IsDuplicate(ctx, models.ChannelShopify, "NEW-ID-999", &payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dup || localId != 55 {
		t.Fatalf("expected fingerprint match (true, 55), got (%v, %d)", dup, localId)
	}
}

func TestIsDuplicate_StoreErrorPropagates(t *testing.T) {
	store := newFakeSeenOrderStore()
	store.recentErr = errors.New("store down")
	detector := NewDuplicateDetector(store)

	if _, _, err := detector.IsDuplicate(testCtx(), models.ChannelAmazon, "A-1", nil); err == nil {
		t.Fatal("warm failure must propagate, not fail open")
	}

	store.recentErr = nil
	store.lookupErr = errors.New("store down")
	detector = NewDuplicateDetector(store)
	if _, _, err := detector.IsDuplicate(testCtx(), models.ChannelAmazon, "A-1", nil); err == nil {
		t.Fatal("lookup failure must propagate, not fail open")
	}
}

func TestFilterDuplicates_PartitionsBatch(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	if err := detector.MarkSeen(ctx, models.ChannelShopify, "1001", 42); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	orders := []OrderPayload{
		testPayload("1001"), // already ingested
		testPayload("1002"),
		testPayload("1003"),
	}
	newOrders, dupes, err := detector.FilterDuplicates(ctx, orders, models.ChannelShopify)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(newOrders) != 2 {
		t.Fatalf("expected 2 new orders, got %d", len(newOrders))
	}
	if len(dupes) != 1 || dupes[0].Order.MarketplaceOrderId != "1001" || dupes[0].LocalOrderId != 42 {
		t.Fatalf("expected 1001 flagged as duplicate of local order 42, got %+v", dupes)
	}
}

func TestFilterDuplicates_CatchesInBatchRepeats(t *testing.T) {
	detector := NewDuplicateDetector(newFakeSeenOrderStore())
	ctx := testCtx()

	orders := []OrderPayload{
		testPayload("2001"),
		testPayload("2001"), // marketplace sent the same order twice in one page
	}
	newOrders, dupes, err := detector.FilterDuplicates(ctx, orders, models.ChannelAmazon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(newOrders) != 1 || len(dupes) != 1 {
		t.Fatalf("expected 1 new and 1 duplicate, got %d/%d", len(newOrders), len(dupes))
	}
}

func TestFilterDuplicates_IdempotentAcrossRuns(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	orders := []OrderPayload{testPayload("3001"), testPayload("3002")}

	newOrders, _, err := detector.FilterDuplicates(ctx, orders, models.ChannelFlipkart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, order := range newOrders {
		if err := detector.MarkSeen(ctx, models.ChannelFlipkart, order.MarketplaceOrderId, 100+i); err != nil {
			t.Fatalf("mark seen: %v", err)
		}
	}

	// The marketplace re-sends the same page on the next run.
	again, dupes, err := detector.FilterDuplicates(ctx, orders, models.ChannelFlipkart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 || len(dupes) != 2 {
		t.Fatalf("expected everything deduplicated on retry, got new=%d dupes=%d", len(again), len(dupes))
	}
}

func TestFilterDuplicates_StoreErrorAbortsBatch(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	// Warm succeeds, then the durable lookup starts failing.
	if _, _, err := detector.FilterDuplicates(ctx, nil, models.ChannelAmazon); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.mu.Lock()
	store.lookupErr = errors.New("store down")
	store.mu.Unlock()

	_, _, err := detector.FilterDuplicates(ctx, []OrderPayload{testPayload("4001")}, models.ChannelAmazon)
	if err == nil {
		t.Fatal("expected batch abort on store failure")
	}
}

func TestDetector_ConcurrentAccess(t *testing.T) {
	store := newFakeSeenOrderStore()
	detector := NewDuplicateDetector(store)
	ctx := testCtx()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("C-%d", i%5)
			_, _, _ = detector.IsDuplicate(ctx, models.ChannelShopify, id, nil)
			_ = detector.MarkSeen(ctx, models.ChannelShopify, id, i+1)
			_, _, _ = detector.IsDuplicate(ctx, models.ChannelShopify, id, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		dup, _, err := detector.IsDuplicate(ctx, models.ChannelShopify, fmt.Sprintf("C-%d", i), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dup {
			t.Errorf("C-%d should be marked seen", i)
		}
	}
}
