package models

import "time"

// Checklist instance lifecycle statuses.
const (
	InstancePending    = "PENDING"
	InstanceInProgress = "IN_PROGRESS"
	InstanceCompleted  = "COMPLETED"
	InstanceCancelled  = "CANCELLED"
)

// ChecklistInstance is one execution of a checklist template against a work
// order. TemplateSnapshot freezes the template's question schema at creation
// time so later template edits cannot retroactively change an in-flight
// checklist.
type ChecklistInstance struct {
	ID               string `gorm:"primaryKey;size:36"`
	WorkOrderID      string `gorm:"size:36;index"`
	TemplateID       string `gorm:"size:36;index"`
	TemplateSnapshot string `gorm:"type:json"`
	Status           string `gorm:"size:16;default:PENDING;index"`
	Progress         int    `gorm:"default:0"` // 0-100, derived
	CompletedAt      *time.Time
	CompletedBy      string `gorm:"size:36"`
	TechnicianID     string `gorm:"size:36;index"`
	SyncedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Answers []ChecklistAnswer `gorm:"foreignKey:InstanceID"`
}
