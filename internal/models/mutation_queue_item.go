package models

import "time"

// Mutation operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Mutation queue item statuses.
const (
	MutationPending    = "pending"
	MutationProcessing = "processing"
	MutationFailed     = "failed"
	MutationCompleted  = "completed"
)

// MutationQueueItem is one locally-originated write not yet confirmed by the
// server. The auto-increment ID doubles as the durable creation order the
// drain routine must preserve per entity.
type MutationQueueItem struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Entity    string `gorm:"size:32;index:idx_mutation_entity_status"`
	EntityID  string `gorm:"size:36;index"`
	Operation string `gorm:"size:16"`
	Payload   string `gorm:"type:json"`
	Attempts  int    `gorm:"default:0"`
	Status    string `gorm:"size:16;default:pending;index:idx_mutation_entity_status"`
	LastError string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the on-disk name the sync protocol documents.
func (MutationQueueItem) TableName() string { return "mutations_queue" }
