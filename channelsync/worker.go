package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
	"gorm.io/gorm"
)

const idempotencyHandlerName = "channelsync.ProcessSyncRun"

// Worker processes queued sync runs. One Worker per process: the duplicate
// detector's warm cache and the buffer calculator's velocity memo live here
// and are shared across runs and goroutines.
type Worker struct {
	detector *workflow.DuplicateDetector
	buffers  *workflow.BufferCalculator
	engine   *workflow.AllocationEngine
	adapters func(apiKey string) (Registry, error)
}

func NewWorker() *Worker {
	buffers := workflow.NewBufferCalculator(models.SalesVelocityService{})
	return &Worker{
		detector: workflow.NewDuplicateDetector(models.SeenOrderService{}),
		buffers:  buffers,
		engine:   workflow.NewAllocationEngine(models.ChannelRuleService{}, buffers),
		adapters: BuildRegistry,
	}
}

// Engine exposes the shared allocation engine for read-only preview
// handlers, so previews and pushes share one velocity memo.
func (w *Worker) Engine() *workflow.AllocationEngine {
	return w.engine
}

// SweepQueuedRuns picks up runs whose Pub/Sub publish was lost and processes
// them directly. Runs younger than the grace period are left for their push
// delivery, which is normally in flight.
func (w *Worker) SweepQueuedRuns(ctx context.Context, grace time.Duration) {
	db := config.GetDB()
	if db == nil {
		return
	}

	var runs []models.ChannelSyncRun
	if err := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.SyncRunStatusQueued, time.Now().Add(-grace)).
		Order("id").
		Limit(20).
		Find(&runs).Error; err != nil {
		config.LogError(config.GetLogger(), "channelsync", "SweepQueuedRuns", "queued run query failed", nil, err)
		return
	}

	for _, run := range runs {
		payload := SyncPubSubPayload{RunId: run.ID, CompanyId: run.CompanyId, ConnectionId: run.ConnectionId}
		if err := w.ProcessSyncRun(ctx, payload); err != nil {
			if errors.Is(err, workflow.ErrSyncInProgress) || errors.Is(err, workflow.ErrIdempotencyInProgress) {
				continue
			}
			config.LogError(config.GetLogger(), "channelsync", "SweepQueuedRuns",
				fmt.Sprintf("run %d failed", run.ID), payload, err)
		}
	}
}

// ProcessSyncRun executes one queued run end to end: pull orders through the
// duplicate detector, then recompute and push channel allocations. Pub/Sub
// delivers at least once, so the run row state plus an idempotency key guard
// against double processing; redislock serializes per connection.
func (w *Worker) ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.CompanyId == "" {
		return errors.New("invalid payload")
	}

	ctx = utils.SetCompanyIdInContext(ctx, payload.CompanyId)
	db := config.GetDB().WithContext(ctx)

	messageId := fmt.Sprintf("run-%d", payload.RunId)
	skip, err := workflow.BeginIdempotency(db, payload.CompanyId, idempotencyHandlerName, messageId)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	runErr := w.processRun(ctx, db, payload)
	if runErr != nil {
		_ = workflow.MarkIdempotencyFailed(db, payload.CompanyId, idempotencyHandlerName, messageId, runErr)
		return runErr
	}
	return workflow.MarkIdempotencySucceeded(db, payload.CompanyId, idempotencyHandlerName, messageId)
}

func (w *Worker) processRun(ctx context.Context, db *gorm.DB, payload SyncPubSubPayload) error {
	var run models.ChannelSyncRun
	if err := db.Where("id = ? AND company_id = ?", payload.RunId, payload.CompanyId).Take(&run).Error; err != nil {
		return err
	}

	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	var conn models.ChannelConnection
	if err := db.Where("id = ? AND company_id = ?", run.ConnectionId, payload.CompanyId).Take(&conn).Error; err != nil {
		return err
	}
	if conn.Status != models.ConnectionStatusConnected {
		return fmt.Errorf("channel %s is not connected", conn.Channel)
	}

	lock, err := workflow.AcquireChannelSyncLock(ctx, payload.CompanyId, conn.Channel)
	if err != nil {
		return err
	}
	defer workflow.ReleaseChannelSyncLock(ctx, lock)

	modules := DecodeModules(run.ModulesJSON)
	cursorState := DecodeCursorState(conn.CursorStateJSON)

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}

	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	registry, err := w.adapters(conn.AuthSecretRef)
	if err != nil {
		return err
	}
	adapter, err := registry.Adapter(conn.Channel)
	if err != nil {
		return err
	}

	ctx = utils.SetSyncRunIdInContext(ctx, run.ID)

	// Velocity changes between runs, not within one; a stale memo from the
	// previous run must not leak into this one's buffers.
	w.buffers.ResetVelocityCache()

	stats := map[string]int{
		"orders_pulled":    0,
		"orders_duplicate": 0,
		"inventory_pushed": 0,
	}
	errorCount := 0

	if modules.Orders {
		pulled, dupes, newCursor, err := w.syncOrders(ctx, db, run.ID, conn, adapter, cursorState.Orders)
		if err != nil {
			errorCount++
			_ = createSyncError(ctx, db, run.ID, "orders", "", "sync_failed", err.Error(), true)
		} else {
			stats["orders_pulled"] = pulled
			stats["orders_duplicate"] = dupes
			cursorState.Orders = newCursor
		}
	}

	if modules.Inventory {
		pushed, skuErrors, err := w.pushInventory(ctx, db, run.ID, conn.Channel, adapter)
		errorCount += skuErrors
		if err != nil {
			errorCount++
			_ = createSyncError(ctx, db, run.ID, "inventory", "", "push_failed", err.Error(), true)
		} else {
			stats["inventory_pushed"] = pushed
		}
	}

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()
	totalSynced := stats["orders_pulled"] + stats["inventory_pushed"]
	status := models.SyncRunStatusSuccess
	if errorCount > 0 && totalSynced == 0 {
		status = models.SyncRunStatusFailed
	} else if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	statsJSON, _ := json.Marshal(stats)
	cursorJSON := EncodeCursorState(cursorState)
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":            status,
		"finished_at":       finishedAt,
		"duration_ms":       durationMs,
		"records_synced":    totalSynced,
		"error_count":       errorCount,
		"stats_json":        statsJSON,
		"cursor_state_json": cursorJSON,
	}).Error; err != nil {
		return err
	}

	connUpdates := map[string]interface{}{
		"last_sync_at":      finishedAt,
		"cursor_state_json": cursorJSON,
	}
	if status == models.SyncRunStatusSuccess {
		connUpdates["last_success_sync_at"] = finishedAt
	}
	return db.Model(&models.ChannelConnection{}).
		Where("id = ? AND company_id = ?", conn.ID, payload.CompanyId).
		Updates(connUpdates).Error
}

// syncOrders pulls order pages and converts the new ones into local orders.
// Returns pulled count, duplicate count and the advanced cursor. A detector
// store failure aborts the module: continuing would risk ingesting orders
// that were already counted.
func (w *Worker) syncOrders(ctx context.Context, db *gorm.DB, runID uint, conn models.ChannelConnection, adapter Adapter, cursor CursorEntry) (int, int, CursorEntry, error) {
	updatedSince := strings.TrimSpace(cursor.UpdatedSince)
	if updatedSince == "" && conn.LastSuccessSyncAt != nil {
		updatedSince = conn.LastSuccessSyncAt.UTC().Format(time.RFC3339)
	}
	if updatedSince == "" {
		updatedSince = time.Now().Add(-30 * 24 * time.Hour).UTC().Format(time.RFC3339)
	}

	nextCursor := strings.TrimSpace(cursor.Cursor)
	pulled := 0
	dupes := 0

	for {
		page, err := adapter.FetchOrders(ctx, updatedSince, nextCursor)
		if err != nil {
			return pulled, dupes, CursorEntry{UpdatedSince: updatedSince, Cursor: nextCursor}, err
		}

		newOrders, duplicates, err := w.detector.FilterDuplicates(ctx, page.Orders, conn.Channel)
		if err != nil {
			return pulled, dupes, CursorEntry{UpdatedSince: updatedSince, Cursor: nextCursor}, err
		}
		dupes += len(duplicates)

		for i := range newOrders {
			payload := newOrders[i]
			localId, err := w.createLocalOrder(ctx, conn.Channel, payload)
			if errors.Is(err, utils.ErrDuplicateOrder) {
				// Lost the check-then-mark race to another worker; the winner
				// owns the seen record.
				dupes++
				continue
			}
			if err != nil {
				_ = createSyncError(ctx, db, runID, "order", payload.MarketplaceOrderId, "create_failed", err.Error(), true)
				continue
			}
			if err := w.detector.MarkSeen(ctx, conn.Channel, payload.MarketplaceOrderId, localId); err != nil {
				return pulled, dupes, CursorEntry{UpdatedSince: updatedSince, Cursor: nextCursor}, err
			}
			pulled++
		}

		if !page.HasMore || page.NextCursor == "" {
			return pulled, dupes, CursorEntry{UpdatedSince: updatedSince, Cursor: page.NextCursor}, nil
		}
		nextCursor = page.NextCursor
	}
}

func (w *Worker) createLocalOrder(ctx context.Context, channel models.ChannelType, payload workflow.OrderPayload) (int, error) {
	order := &models.MarketplaceOrder{
		Channel:            channel,
		MarketplaceOrderId: payload.MarketplaceOrderId,
		Status:             payload.Status,
		CustomerPhone:      payload.CustomerPhone,
		CustomerEmail:      payload.CustomerEmail,
		TotalAmount:        payload.TotalAmount,
		OrderDate:          payload.OrderDate,
		Fingerprint:        workflow.OrderFingerprint(&payload),
	}
	for _, line := range payload.Lines {
		order.Items = append(order.Items, models.MarketplaceOrderItem{
			SkuCode:   line.SkuCode,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	created, err := models.CreateMarketplaceOrder(ctx, order)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// pushInventory recomputes every active SKU's allocation, snapshots the full
// per-channel split and pushes this connection's channel share. A SKU whose
// availability cannot be read is skipped with an error row; the rest of the
// catalog still syncs.
func (w *Worker) pushInventory(ctx context.Context, db *gorm.DB, runID uint, channel models.ChannelType, adapter Adapter) (int, int, error) {
	skus, err := models.ListActiveSKUs(ctx)
	if err != nil {
		return 0, 0, err
	}

	updates := make([]InventoryUpdate, 0, len(skus))
	snapshots := make([]models.ChannelAllocationSnapshot, 0, len(skus)*len(models.AllChannelTypes()))
	skuErrors := 0

	for _, sku := range skus {
		avail, err := models.GetAvailableQuantity(ctx, sku.ID)
		if err != nil {
			skuErrors++
			_ = createSyncError(ctx, db, runID, "inventory", sku.Code, "availability_read_failed", err.Error(), true)
			continue
		}

		results, err := w.engine.Allocate(ctx, sku.ID, avail, models.AllChannelTypes())
		if err != nil {
			skuErrors++
			_ = createSyncError(ctx, db, runID, "inventory", sku.Code, "allocation_failed", err.Error(), true)
			continue
		}

		for ch, result := range results {
			snapshots = append(snapshots, models.ChannelAllocationSnapshot{
				SkuId:         sku.ID,
				Channel:       ch,
				Available:     avail,
				RawAllocation: result.RawAllocation,
				Buffer:        result.Buffer,
				Allocated:     result.Allocated,
				RuleType:      result.RuleType,
				Priority:      result.Priority,
			})
		}
		updates = append(updates, InventoryUpdate{SkuCode: sku.Code, Quantity: results[channel].Allocated})
	}

	if err := models.UpsertAllocationSnapshots(ctx, snapshots); err != nil {
		return 0, skuErrors, err
	}
	// Snapshots changed, so the cached summary is stale.
	if companyId, ok := utils.GetCompanyIdFromContext(ctx); ok {
		if err := utils.RemoveRedisList[models.ChannelUtilization](companyId); err != nil {
			config.LogWarn(config.GetLogger(), "channelsync", "pushInventory",
				"failed to invalidate allocation summary cache", err)
		}
	}

	if len(updates) == 0 {
		return 0, skuErrors, nil
	}
	if config.InventoryPushDryRun() {
		config.LogWarn(config.GetLogger(), "channelsync", "pushInventory",
			fmt.Sprintf("dry run: skipping push of %d updates to %s", len(updates), channel), nil)
		return len(updates), skuErrors, nil
	}
	if err := adapter.PushInventory(ctx, updates); err != nil {
		return 0, skuErrors, err
	}
	return len(updates), skuErrors, nil
}

func createSyncError(ctx context.Context, db *gorm.DB, runID uint, entityType, externalId, code, message string, retryable bool) error {
	companyId, _ := utils.GetCompanyIdFromContext(ctx)
	return db.Create(&models.ChannelSyncError{
		CompanyId:  companyId,
		SyncRunId:  runID,
		EntityType: entityType,
		ExternalId: externalId,
		Code:       code,
		Message:    message,
		Retryable:  retryable,
	}).Error
}
