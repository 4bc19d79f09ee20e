package models

import "time"

// Execution session types.
const (
	SessionWork  = "WORK"
	SessionPause = "PAUSE"
)

// ExecutionSession is one work or pause interval for a work order. At most
// one session per work order may be open (EndedAt null) at a time.
type ExecutionSession struct {
	ID              string `gorm:"primaryKey;size:36"`
	WorkOrderID     string `gorm:"size:36;index"`
	SessionType     string `gorm:"size:8"`
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int64  `gorm:"default:0"`
	TechnicianID    string `gorm:"size:36;index"`
	CreatedAt       time.Time
}

// Open reports whether the session is still running.
func (s *ExecutionSession) Open() bool { return s.EndedAt == nil }
