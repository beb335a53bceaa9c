package channelsync

import (
	"bitbucket.org/mmdatafocus/channels_backend/models"
	"bitbucket.org/mmdatafocus/channels_backend/utils"
)

type SyncModules struct {
	Orders    bool `json:"orders"`
	Inventory bool `json:"inventory"`
}

func DefaultModules() SyncModules {
	return SyncModules{
		Orders:    true,
		Inventory: true,
	}
}

func NormalizeModules(mod SyncModules) SyncModules {
	// Order pull must always run: pushing inventory computed from stale
	// order data would advertise stock that was already sold.
	mod.Orders = true
	return mod
}

func DecodeModules(raw []byte) SyncModules {
	if len(raw) == 0 {
		return DefaultModules()
	}
	var mod SyncModules
	if err := utils.UnmarshalFromJSON(raw, &mod); err != nil {
		return DefaultModules()
	}
	return NormalizeModules(mod)
}

func EncodeModules(mod SyncModules) []byte {
	s, _ := utils.MarshalToJSON(NormalizeModules(mod))
	return []byte(s)
}

type CursorEntry struct {
	UpdatedSince string `json:"updated_since"`
	Cursor       string `json:"cursor"`
}

type CursorState struct {
	Orders CursorEntry `json:"orders"`
}

func DecodeCursorState(raw []byte) CursorState {
	if len(raw) == 0 {
		return CursorState{}
	}
	var state CursorState
	if err := utils.UnmarshalFromJSON(raw, &state); err != nil {
		return CursorState{}
	}
	return state
}

func EncodeCursorState(state CursorState) []byte {
	s, _ := utils.MarshalToJSON(state)
	return []byte(s)
}

type ConnectRequest struct {
	Channel   models.ChannelType `json:"channel"`
	StoreId   string             `json:"storeId"`
	StoreName string             `json:"storeName"`
	APIKey    string             `json:"apiKey"`
}

type UpdateSettingsRequest struct {
	Modules SyncModules `json:"modules"`
}

type TriggerSyncRequest struct {
	Modules SyncModules `json:"modules"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
	Modules           SyncModules        `json:"modules"`
}

type ConnectionResponse struct {
	Channel   models.ChannelType `json:"channel"`
	Status    string             `json:"status"`
	StoreId   string             `json:"storeId"`
	StoreName string             `json:"storeName"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint               `json:"id"`
	Channel       models.ChannelType `json:"channel"`
	Status        string             `json:"status"`
	StartedAt     *string            `json:"startedAt"`
	FinishedAt    *string            `json:"finishedAt"`
	DurationMs    int64              `json:"durationMs"`
	RecordsSynced int                `json:"recordsSynced"`
	ErrorCount    int                `json:"errorCount"`
	TriggeredBy   string             `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	ExternalId string `json:"externalId"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type AllocationPreviewResponse struct {
	SkuId     int                                                     `json:"skuId"`
	SkuCode   string                                                  `json:"skuCode"`
	Available int                                                     `json:"available"`
	Channels  map[models.ChannelType]AllocationPreviewChannelResponse `json:"channels"`
}

type AllocationPreviewChannelResponse struct {
	Allocated     int    `json:"allocated"`
	Buffer        int    `json:"buffer"`
	RawAllocation int    `json:"rawAllocation"`
	RuleType      string `json:"ruleType"`
	Priority      int    `json:"priority"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId        uint   `json:"run_id"`
	CompanyId    string `json:"company_id"`
	ConnectionId uint   `json:"connection_id"`
}
