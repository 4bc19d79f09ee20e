package models

import "time"

// Per-entity sync engine states.
const (
	SyncStateIdle    = "idle"
	SyncStateSyncing = "syncing"
	SyncStateError   = "error"
)

// SyncMeta is the per-entity cursor bookkeeping row. One row per synced
// entity type, written only by the sync engine.
type SyncMeta struct {
	Entity     string `gorm:"primaryKey;size:32"`
	LastSyncAt *time.Time
	LastCursor string `gorm:"size:64"`
	SyncStatus string `gorm:"size:16;default:idle"`
	LastError  string `gorm:"type:text"`
	UpdatedAt  time.Time
}

// TableName keeps the documented on-disk name.
func (SyncMeta) TableName() string { return "sync_meta" }
