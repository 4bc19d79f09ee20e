package models

import (
	"encoding/json"
	"time"

	"github.com/zulandar/fieldsync/internal/logic"
)

// Per-row sync statuses shared by answers and attachments.
const (
	SyncPending   = "PENDING"
	SyncSyncing   = "SYNCING"
	SyncUploading = "UPLOADING"
	SyncSynced    = "SYNCED"
	SyncFailed    = "FAILED"
)

// ChecklistAnswer is one response to one question within one instance.
// QuestionID points into the instance's template snapshot, not the live
// template. Exactly one row may exist per (instance, question) pair.
type ChecklistAnswer struct {
	ID           string `gorm:"primaryKey;size:36"`
	InstanceID   string `gorm:"size:36;uniqueIndex:idx_answer_instance_question"`
	QuestionID   string `gorm:"size:36;uniqueIndex:idx_answer_instance_question"`
	QuestionType string `gorm:"size:16"`

	// One slot per question type; which one is meaningful is selected by
	// QuestionType. Read and write through Value/SetValue.
	ValueText   *string
	ValueNumber *float64
	ValueBool   *bool
	ValueDate   *time.Time
	ValueJSON   *string `gorm:"type:json"`

	// LocalID is the client-generated idempotency token, distinct from the
	// server-assigned id that may later replace ID.
	LocalID      string `gorm:"size:36;uniqueIndex"`
	SyncStatus   string `gorm:"size:16;default:PENDING;index"`
	TechnicianID string `gorm:"size:36;index"`
	SyncedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Value returns the populated slot as a tagged union. A row with no slot
// populated yields the zero AnswerValue ("no answer").
func (a *ChecklistAnswer) Value() logic.AnswerValue {
	switch {
	case a.ValueText != nil:
		return logic.TextValue(*a.ValueText)
	case a.ValueNumber != nil:
		return logic.NumberValue(*a.ValueNumber)
	case a.ValueBool != nil:
		return logic.BoolValue(*a.ValueBool)
	case a.ValueDate != nil:
		return logic.DateValue(*a.ValueDate)
	case a.ValueJSON != nil:
		return logic.JSONValue(json.RawMessage(*a.ValueJSON))
	}
	return logic.AnswerValue{}
}

// SetValue clears all slots and populates the one matching the value's kind.
func (a *ChecklistAnswer) SetValue(v logic.AnswerValue) {
	a.ValueText = nil
	a.ValueNumber = nil
	a.ValueBool = nil
	a.ValueDate = nil
	a.ValueJSON = nil

	switch v.Kind {
	case logic.KindText:
		s := v.Text
		a.ValueText = &s
	case logic.KindNumber:
		n := v.Number
		a.ValueNumber = &n
	case logic.KindBool:
		b := v.Bool
		a.ValueBool = &b
	case logic.KindDate:
		d := v.Date
		a.ValueDate = &d
	case logic.KindJSON:
		j := string(v.JSON)
		a.ValueJSON = &j
	}
}
