package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"github.com/sirupsen/logrus"
)

const DefaultSeenOrderWindow = 30 * 24 * time.Hour

// SeenOrderStore is the durable side of duplicate detection. Implemented by
// models.SeenOrderService in production and by fakes in tests.
type SeenOrderStore interface {
	Lookup(ctx context.Context, channel models.ChannelType, marketplaceOrderId string) (*models.SeenOrderRecord, error)
	Append(ctx context.Context, channel models.ChannelType, marketplaceOrderId string, localOrderId int) error
	RecentSeen(ctx context.Context, channel models.ChannelType, since time.Time) ([]models.SeenOrderRecord, error)
	LookupByFingerprint(ctx context.Context, channel models.ChannelType, fingerprint string) (int, error)
}

// DuplicateMatch reports one rejected order from a batch.
type DuplicateMatch struct {
	Order          OrderPayload `json:"order"`
	LocalOrderId   int          `json:"local_order_id"`
	ViaFingerprint bool         `json:"via_fingerprint"`
}

// DuplicateDetector decides whether an inbound marketplace order has already
// been counted against inventory. It is an optimization layered in front of
// the unique index on local orders, which remains the final backstop for the
// check-then-mark race between concurrent sync workers.
//
// The in-memory cache is shared by concurrent workers and guarded by a
// mutex. It is scoped to this process; entries expire only with the process
// or via the trailing window at warm time, so multi-instance deployments
// rely on the durable lookup, not on cache coherence.
type DuplicateDetector struct {
	store  SeenOrderStore
	window time.Duration

	mu     sync.Mutex
	seen   map[string]map[string]int // companyId|channel -> marketplaceOrderId -> localOrderId
	warmed map[string]bool
}

func NewDuplicateDetector(store SeenOrderStore) *DuplicateDetector {
	return &DuplicateDetector{
		store:  store,
		window: DefaultSeenOrderWindow,
		seen:   make(map[string]map[string]int),
		warmed: make(map[string]bool),
	}
}

func (d *DuplicateDetector) cacheKey(ctx context.Context, channel models.ChannelType) string {
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	return companyId + "|" + string(channel)
}

// warmCache lazily loads the trailing window of seen identifiers for a
// channel, once per process lifetime. A warm failure is a store failure and
// propagates: proceeding with a cold cache would only shift load to the
// durable lookups, but a store that cannot answer must fail loud anyway.
func (d *DuplicateDetector) warmCache(ctx context.Context, channel models.ChannelType) error {
	key := d.cacheKey(ctx, channel)

	d.mu.Lock()
	if d.warmed[key] {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	recs, err := d.store.RecentSeen(ctx, channel, time.Now().Add(-d.window))
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.warmed[key] {
		return nil
	}
	ids := make(map[string]int, len(recs))
	for _, rec := range recs {
		ids[rec.MarketplaceOrderId] = rec.LocalOrderId
	}
	d.seen[key] = ids
	d.warmed[key] = true
	return nil
}

func (d *DuplicateDetector) cacheGet(ctx context.Context, channel models.ChannelType, marketplaceOrderId string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.seen[d.cacheKey(ctx, channel)]
	if ids == nil {
		return 0, false
	}
	localId, ok := ids[marketplaceOrderId]
	return localId, ok
}

func (d *DuplicateDetector) cachePut(ctx context.Context, channel models.ChannelType, marketplaceOrderId string, localOrderId int) {
	key := d.cacheKey(ctx, channel)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] == nil {
		d.seen[key] = make(map[string]int)
	}
	d.seen[key][marketplaceOrderId] = localOrderId
}

// IsDuplicate answers whether this exact marketplace order has previously
// been converted to a local order. Checks run in order of increasing cost:
// in-memory set, durable lookup, then fingerprint fallback when a payload is
// supplied.
//
// A failed store query propagates. Returning "not a duplicate" on a lookup
// failure risks decrementing the same sold units twice, which outweighs
// availability.
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, channel models.ChannelType, marketplaceOrderId string, payload *OrderPayload) (bool, int, error) {
	if marketplaceOrderId == "" {
		return false, 0, errors.New("marketplace order id is required")
	}

	if err := d.warmCache(ctx, channel); err != nil {
		return false, 0, err
	}

	if localId, ok := d.cacheGet(ctx, channel, marketplaceOrderId); ok {
		if localId > 0 {
			return true, localId, nil
		}
		// Accepted earlier in this batch/run; the local order may not be
		// durably created yet but the units are already claimed.
		return true, 0, nil
	}

	rec, err := d.store.Lookup(ctx, channel, marketplaceOrderId)
	if err != nil {
		return false, 0, err
	}
	if rec != nil {
		d.cachePut(ctx, channel, marketplaceOrderId, rec.LocalOrderId)
		return true, rec.LocalOrderId, nil
	}

	if payload != nil {
		fingerprint := OrderFingerprint(payload)
		localId, err := d.store.LookupByFingerprint(ctx, channel, fingerprint)
		if err != nil {
			return false, 0, err
		}
		if localId > 0 {
			// Same order under a different marketplace identifier, e.g.
			// after a marketplace-side correction. Cannot be proven with
			// certainty; a false positive is preferred over double-counting
			// stock.
			config.GetLogger().WithFields(logrus.Fields{
				"module":             "workflow",
				"funcName":           "IsDuplicate",
				"channel":            channel,
				"marketplaceOrderId": marketplaceOrderId,
				"localOrderId":       localId,
			}).Warn("fingerprint duplicate: same payload under a different marketplace order id")
			return true, localId, nil
		}
	}

	return false, 0, nil
}

// MarkSeen records the pair durably and in the cache. Call it only after the
// local order is durably created: recording before creation would mask a
// legitimately retried order that never actually succeeded.
func (d *DuplicateDetector) MarkSeen(ctx context.Context, channel models.ChannelType, marketplaceOrderId string, localOrderId int) error {
	if err := d.store.Append(ctx, channel, marketplaceOrderId, localOrderId); err != nil {
		return err
	}
	d.cachePut(ctx, channel, marketplaceOrderId, localOrderId)
	return nil
}

// FilterDuplicates partitions a batch in one pass. Each accepted order's
// identifier enters the cache immediately, so a marketplace returning the
// same order twice in one page is caught inside the batch, not just across
// sync runs. A store failure aborts the whole batch; the caller retries it
// next cycle.
func (d *DuplicateDetector) FilterDuplicates(ctx context.Context, orders []OrderPayload, channel models.ChannelType) ([]OrderPayload, []DuplicateMatch, error) {
	newOrders := make([]OrderPayload, 0, len(orders))
	duplicates := make([]DuplicateMatch, 0)

	for i := range orders {
		order := orders[i]
		dup, localId, err := d.IsDuplicate(ctx, channel, order.MarketplaceOrderId, &order)
		if err != nil {
			return nil, nil, fmt.Errorf("duplicate check for %s/%s: %w", channel, order.MarketplaceOrderId, err)
		}
		if dup {
			duplicates = append(duplicates, DuplicateMatch{
				Order:          order,
				LocalOrderId:   localId,
				ViaFingerprint: localId > 0 && !d.seenDurably(ctx, channel, order.MarketplaceOrderId),
			})
			continue
		}
		d.cachePut(ctx, channel, order.MarketplaceOrderId, 0)
		newOrders = append(newOrders, order)
	}

	return newOrders, duplicates, nil
}

// seenDurably distinguishes an exact-id duplicate from a fingerprint match
// when labeling batch results. Cache state is enough: IsDuplicate backfills
// the cache on every durable hit.
func (d *DuplicateDetector) seenDurably(ctx context.Context, channel models.ChannelType, marketplaceOrderId string) bool {
	_, ok := d.cacheGet(ctx, channel, marketplaceOrderId)
	return ok
}
