package channelsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/channels_backend/config"
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
	"bitbucket.org/mmdatafocus/channels_backend/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel, err := resolveChannel(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, companyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if conn == nil {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{
					Channel: channel,
					Status:  models.ConnectionStatusDisconnected,
				},
				Modules: DefaultModules(),
			})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Channel:   conn.Channel,
				Status:    conn.Status,
				StoreId:   conn.StoreId,
				StoreName: conn.StoreName,
			},
			LastSyncAt:        formatTime(conn.LastSyncAt),
			LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
			Modules:           DecodeModules(conn.SettingsJSON),
		})
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !req.Channel.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
			return
		}
		if strings.TrimSpace(req.StoreId) == "" || strings.TrimSpace(req.APIKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "storeId and apiKey are required"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, companyId, req.Channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		storeName := strings.TrimSpace(req.StoreName)
		if storeName == "" {
			storeName = req.StoreId
		}

		if conn == nil {
			conn = &models.ChannelConnection{
				CompanyId:     companyId,
				Channel:       req.Channel,
				Status:        models.ConnectionStatusConnected,
				AuthType:      "api_key",
				AuthSecretRef: req.APIKey,
				StoreId:       req.StoreId,
				StoreName:     storeName,
				SettingsJSON:  EncodeModules(DefaultModules()),
				UpdatedAt:     now,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":          models.ConnectionStatusConnected,
				"auth_type":       "api_key",
				"auth_secret_ref": req.APIKey,
				"store_id":        req.StoreId,
				"store_name":      storeName,
				"updated_at":      now,
			}
			if len(conn.SettingsJSON) == 0 {
				update["settings_json"] = EncodeModules(DefaultModules())
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel, err := resolveChannel(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, companyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":          models.ConnectionStatusDisconnected,
			"auth_secret_ref": "",
			"updated_at":      time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel, err := resolveChannel(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)
		conn, err := getConnection(db, companyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		modules := EncodeModules(req.Modules)
		if conn == nil {
			conn = &models.ChannelConnection{
				CompanyId:    companyId,
				Channel:      channel,
				Status:       models.ConnectionStatusDisconnected,
				SettingsJSON: modules,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			if err := db.Model(conn).Updates(map[string]interface{}{
				"settings_json": modules,
				"updated_at":    time.Now(),
			}).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel, err := resolveChannel(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		conn, err := getConnection(db, companyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.ConnectionStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "channel is not connected"})
			return
		}

		modules := req.Modules
		if !modules.Orders && !modules.Inventory {
			modules = DecodeModules(conn.SettingsJSON)
		}

		run := models.ChannelSyncRun{
			CompanyId:    companyId,
			ConnectionId: conn.ID,
			Channel:      channel,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredManual,
			ModulesJSON:  EncodeModules(modules),
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := PublishSyncRun(c.Request.Context(), run.ID, companyId, conn.ID); err != nil {
			config.LogError(config.GetLogger(), "channelsync", "TriggerSyncHandler",
				"publish failed; run stays queued for the next sweep", run.ID, err)
		}

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		query := db.Where("company_id = ?", companyId)
		if v := strings.TrimSpace(c.Query("channel")); v != "" {
			channel := models.ChannelType(strings.ToUpper(v))
			if !channel.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
				return
			}
			query = query.Where("channel = ?", channel)
		}

		var runs []models.ChannelSyncRun
		if err := query.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		var run models.ChannelSyncRun
		if err := db.Where("id = ? AND company_id = ?", id, companyId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var errs []models.ChannelSyncError
		if err := db.Where("sync_run_id = ? AND company_id = ?", run.ID, companyId).
			Order("id desc").Find(&errs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Errors:          mapErrors(errs),
		})
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		db := config.GetDB().WithContext(ctx)

		var run models.ChannelSyncRun
		if err := db.Where("id = ? AND company_id = ?", id, companyId).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.ChannelSyncRun{
			CompanyId:    companyId,
			ConnectionId: run.ConnectionId,
			Channel:      run.Channel,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredRetry,
			ModulesJSON:  run.ModulesJSON,
		}
		if err := db.Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := PublishSyncRun(c.Request.Context(), newRun.ID, companyId, run.ConnectionId); err != nil {
			config.LogError(config.GetLogger(), "channelsync", "RetrySyncRunHandler",
				"publish failed; run stays queued for the next sweep", newRun.ID, err)
		}

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

// AllocationPreviewHandler computes a SKU's split without persisting or
// pushing anything. Read-only diagnostic for support and operators.
func AllocationPreviewHandler(engine *workflow.AllocationEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		skuId, err := strconv.Atoi(c.Param("skuId"))
		if err != nil || skuId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sku id"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		sku, err := models.GetSKU(ctx, skuId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "sku not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		avail, err := models.GetAvailableQuantity(ctx, skuId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		results, err := engine.Allocate(ctx, skuId, avail, models.AllChannelTypes())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := AllocationPreviewResponse{
			SkuId:     sku.ID,
			SkuCode:   sku.Code,
			Available: avail,
			Channels:  make(map[models.ChannelType]AllocationPreviewChannelResponse, len(results)),
		}
		for ch, result := range results {
			resp.Channels[ch] = AllocationPreviewChannelResponse{
				Allocated:     result.Allocated,
				Buffer:        result.Buffer,
				RawAllocation: result.RawAllocation,
				RuleType:      string(result.RuleType),
				Priority:      result.Priority,
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func AllocationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		skuId := 0
		if v := strings.TrimSpace(c.Query("sku_id")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				skuId = n
			}
		}

		// The unfiltered summary is the dashboard's hot path; serve it from
		// Redis when a fresh copy exists. Per-SKU lookups go straight to MySQL.
		if skuId == 0 {
			if cached, err := utils.RetrieveRedisList[models.ChannelUtilization](companyId); err == nil && cached != nil {
				c.JSON(http.StatusOK, gin.H{"items": cached})
				return
			}
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		rows, err := models.GetChannelUtilization(ctx, skuId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if skuId == 0 {
			if err := utils.StoreRedisList[models.ChannelUtilization](rows, companyId); err != nil {
				config.LogWarn(config.GetLogger(), "channelsync", "AllocationSummaryHandler",
					"failed to cache allocation summary", err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func CreateRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var input models.NewChannelAllocationRule
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		rule, err := models.CreateChannelAllocationRule(ctx, &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func UpdateRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}

		var input models.NewChannelAllocationRule
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		rule, err := models.UpdateChannelAllocationRule(ctx, id, &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func DeactivateRuleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		if err := models.DeactivateChannelAllocationRule(ctx, id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func ListRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		skuId, err := strconv.Atoi(c.Param("skuId"))
		if err != nil || skuId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sku id"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		rules, err := models.GetActiveChannelRules(ctx, skuId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": rules})
	}
}

func resolveCompanyID(c *gin.Context) (string, error) {
	companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(companyId) == "" {
		return "", errors.New("unauthorized")
	}
	return companyId, nil
}

func resolveChannel(c *gin.Context) (models.ChannelType, error) {
	raw := strings.TrimSpace(c.Param("channel"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("channel"))
	}
	channel := models.ChannelType(strings.ToUpper(raw))
	if !channel.IsValid() {
		return "", errors.New("unknown channel")
	}
	return channel, nil
}

func getConnection(db *gorm.DB, companyId string, channel models.ChannelType) (*models.ChannelConnection, error) {
	var conn models.ChannelConnection
	err := db.Where("company_id = ? AND channel = ?", companyId, channel).Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.ChannelSyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Channel:       run.Channel,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.ChannelSyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			ExternalId: errItem.ExternalId,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
