// Package models defines the GORM entities persisted in the local embedded
// database: the field-service domain rows plus the sync bookkeeping tables.
package models

// AllModels returns every GORM model the local store migrates.
func AllModels() []interface{} {
	return []interface{}{
		&WorkOrder{},
		&ChecklistInstance{},
		&ChecklistAnswer{},
		&ChecklistAttachment{},
		&MutationQueueItem{},
		&SyncMeta{},
		&ExecutionSession{},
	}
}
