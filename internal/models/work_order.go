package models

import "time"

// Work order lifecycle statuses.
const (
	WorkOrderScheduled  = "SCHEDULED"
	WorkOrderInProgress = "IN_PROGRESS"
	WorkOrderDone       = "DONE"
	WorkOrderCanceled   = "CANCELED"
)

// WorkOrder is one unit of field work assigned to a technician.
type WorkOrder struct {
	ID             string     `gorm:"primaryKey;size:36"`
	ClientID       string     `gorm:"size:36;index"`
	Title          string     `gorm:"not null"`
	Description    string     `gorm:"type:text"`
	Status         string     `gorm:"size:16;default:SCHEDULED;index"`
	ScheduledDate  *time.Time `gorm:"index"`
	WindowStart    string     `gorm:"size:8"` // HH:MM
	WindowEnd      string     `gorm:"size:8"`
	ExecutionStart *time.Time
	ExecutionEnd   *time.Time
	IsActive       bool   `gorm:"default:true;index"`
	TechnicianID   string `gorm:"size:36;index"`
	SyncedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Checklists []ChecklistInstance `gorm:"foreignKey:WorkOrderID"`
	Sessions   []ExecutionSession  `gorm:"foreignKey:WorkOrderID"`
}
