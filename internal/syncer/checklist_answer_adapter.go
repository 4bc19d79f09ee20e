package syncer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/repo"
	"github.com/zulandar/fieldsync/internal/store"
)

// checklistAnswerAdapter syncs answers individually. Pushes reconcile the
// client-generated id against the server-assigned one when they differ.
type checklistAnswerAdapter struct{}

func (checklistAnswerAdapter) Name() string             { return repo.EntityChecklistAnswers }
func (checklistAnswerAdapter) Endpoint() string         { return "/api/sync/checklist_answers" }
func (checklistAnswerAdapter) MutationEndpoint() string { return "/api/sync/checklist_answers" }
func (checklistAnswerAdapter) CursorField() string      { return "updatedAt" }

func (checklistAnswerAdapter) ScopeParams(cfg *config.Config, _ time.Time) url.Values {
	v := url.Values{}
	v.Set("technician_id", cfg.TechnicianID)
	return v
}

type answerWire struct {
	ID           string   `json:"id"`
	LocalID      string   `json:"localId"`
	InstanceID   string   `json:"instanceId"`
	QuestionID   string   `json:"questionId"`
	QuestionType string   `json:"questionType"`
	ValueText    *string  `json:"valueText"`
	ValueNumber  *float64 `json:"valueNumber"`
	ValueBool    *bool    `json:"valueBool"`
	ValueDate    string   `json:"valueDate"`
	ValueJSON    *string  `json:"valueJson"`
	TechnicianID string   `json:"technicianId"`
	UpdatedAt    string   `json:"updatedAt"`
}

func (w answerWire) toModel(instanceID string) (models.ChecklistAnswer, error) {
	if w.ID == "" {
		return models.ChecklistAnswer{}, fmt.Errorf("answer record without id")
	}
	if instanceID == "" {
		instanceID = w.InstanceID
	}
	localID := w.LocalID
	if localID == "" {
		localID = w.ID
	}
	syncedAt := time.Now().UTC()
	a := models.ChecklistAnswer{
		ID:           w.ID,
		InstanceID:   instanceID,
		QuestionID:   w.QuestionID,
		QuestionType: w.QuestionType,
		ValueText:    w.ValueText,
		ValueNumber:  w.ValueNumber,
		ValueBool:    w.ValueBool,
		ValueJSON:    w.ValueJSON,
		LocalID:      localID,
		SyncStatus:   models.SyncSynced,
		TechnicianID: w.TechnicianID,
		SyncedAt:     &syncedAt,
	}
	a.ValueDate = parseWireTime(w.ValueDate)
	return a, nil
}

func (checklistAnswerAdapter) FromServer(raw json.RawMessage) (interface{}, string, error) {
	var w answerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, "", fmt.Errorf("checklist answer: %w", err)
	}
	a, err := w.toModel("")
	if err != nil {
		return nil, "", err
	}
	return &a, w.UpdatedAt, nil
}

func (checklistAnswerAdapter) ToServer(item models.MutationQueueItem) (json.RawMessage, error) {
	return json.RawMessage(item.Payload), nil
}

// MarkSynced rewrites the local row under the server id when the server
// assigned one, or just flags it synced when the ids already agree.
func (checklistAnswerAdapter) MarkSynced(st *store.Store, item models.MutationQueueItem, res api.PushResult) error {
	localID := res.LocalID
	if localID == "" {
		localID = payloadLocalID(item.Payload)
	}
	if localID == "" {
		localID = item.EntityID
	}
	serverID := res.ID
	if serverID == "" {
		serverID = item.EntityID
	}
	return repo.MarkAnswerSyncedWithServerID(st, localID, serverID)
}
