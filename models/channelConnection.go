package models

import "time"

const (
	ConnectionStatusConnected    = "connected"
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusError        = "error"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual   = "manual"
	SyncTriggeredRetry    = "retry"
	SyncTriggeredSchedule = "schedule"
)

// ChannelConnection holds one company's credentials and cursor state for one
// sales channel. One connection per (company, channel).
type ChannelConnection struct {
	ID                uint        `gorm:"primary_key" json:"id"`
	CompanyId         string      `gorm:"uniqueIndex:uniq_channel_conn,priority:1;not null" json:"company_id"`
	Channel           ChannelType `gorm:"uniqueIndex:uniq_channel_conn,priority:2;size:20;not null" json:"channel"`
	Status            string      `gorm:"size:20;not null" json:"status"`
	AuthType          string      `gorm:"size:20" json:"auth_type"`
	AuthSecretRef     string      `gorm:"type:text" json:"auth_secret_ref"`
	StoreId           string      `gorm:"size:100" json:"store_id"`
	StoreName         string      `gorm:"size:255" json:"store_name"`
	SettingsJSON      []byte      `gorm:"type:json" json:"settings"`
	CursorStateJSON   []byte      `gorm:"type:json" json:"cursor_state"`
	LastSyncAt        *time.Time  `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time  `json:"last_success_sync_at"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type ChannelSyncRun struct {
	ID              uint        `gorm:"primary_key" json:"id"`
	CompanyId       string      `gorm:"index;not null" json:"company_id"`
	ConnectionId    uint        `gorm:"index;not null" json:"connection_id"`
	Channel         ChannelType `gorm:"index;size:20;not null" json:"channel"`
	Status          string      `gorm:"size:20;not null" json:"status"`
	TriggeredBy     string      `gorm:"size:20" json:"triggered_by"`
	ModulesJSON     []byte      `gorm:"type:json" json:"modules"`
	StatsJSON       []byte      `gorm:"type:json" json:"stats"`
	CursorStateJSON []byte      `gorm:"type:json" json:"cursor_state"`
	RecordsSynced   int         `json:"records_synced"`
	ErrorCount      int         `json:"error_count"`
	StartedAt       *time.Time  `json:"started_at"`
	FinishedAt      *time.Time  `json:"finished_at"`
	DurationMs      int64       `json:"duration_ms"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type ChannelSyncError struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	CompanyId  string    `gorm:"index;not null" json:"company_id"`
	SyncRunId  uint      `gorm:"index;not null" json:"sync_run_id"`
	EntityType string    `gorm:"size:50;not null" json:"entity_type"`
	ExternalId string    `gorm:"size:128" json:"external_id"`
	Code       string    `gorm:"size:50" json:"code"`
	Message    string    `gorm:"type:text" json:"message"`
	Retryable  bool      `gorm:"not null;default:true" json:"retryable"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
