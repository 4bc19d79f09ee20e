package syncer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/repo"
	"github.com/zulandar/fieldsync/internal/store"
)

// checklistInstanceAdapter syncs instances with their answers nested in the
// same record, so an instance and its answers land in one transaction.
type checklistInstanceAdapter struct{}

func (checklistInstanceAdapter) Name() string             { return repo.EntityChecklistInstances }
func (checklistInstanceAdapter) Endpoint() string         { return "/api/sync/checklist_instances" }
func (checklistInstanceAdapter) MutationEndpoint() string { return "/api/sync/checklist_instances" }
func (checklistInstanceAdapter) CursorField() string      { return "updatedAt" }

func (checklistInstanceAdapter) ScopeParams(cfg *config.Config, _ time.Time) url.Values {
	v := url.Values{}
	v.Set("technician_id", cfg.TechnicianID)
	return v
}

type instanceWire struct {
	ID               string          `json:"id"`
	WorkOrderID      string          `json:"workOrderId"`
	TemplateID       string          `json:"templateId"`
	TemplateSnapshot json.RawMessage `json:"templateSnapshot"`
	Status           string          `json:"status"`
	Progress         int             `json:"progress"`
	CompletedAt      string          `json:"completedAt"`
	CompletedBy      string          `json:"completedBy"`
	TechnicianID     string          `json:"technicianId"`
	UpdatedAt        string          `json:"updatedAt"`
	Answers          []answerWire    `json:"answers"`
}

// instancePull pairs a decoded instance with its nested answers until
// SaveBatch lands both.
type instancePull struct {
	instance models.ChecklistInstance
	answers  []models.ChecklistAnswer
}

func (checklistInstanceAdapter) FromServer(raw json.RawMessage) (interface{}, string, error) {
	var w instanceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, "", fmt.Errorf("checklist instance: %w", err)
	}
	if w.ID == "" {
		return nil, "", fmt.Errorf("checklist instance record without id")
	}
	syncedAt := time.Now().UTC()
	pull := &instancePull{
		instance: models.ChecklistInstance{
			ID:               w.ID,
			WorkOrderID:      w.WorkOrderID,
			TemplateID:       w.TemplateID,
			TemplateSnapshot: string(w.TemplateSnapshot),
			Status:           w.Status,
			Progress:         w.Progress,
			CompletedBy:      w.CompletedBy,
			TechnicianID:     w.TechnicianID,
			SyncedAt:         &syncedAt,
		},
	}
	pull.instance.CompletedAt = parseWireTime(w.CompletedAt)
	for _, aw := range w.Answers {
		a, err := aw.toModel(w.ID)
		if err != nil {
			return nil, "", err
		}
		pull.answers = append(pull.answers, a)
	}
	return pull, w.UpdatedAt, nil
}

func (checklistInstanceAdapter) SaveBatch(tx *store.Store, records []interface{}) error {
	for _, rec := range records {
		pull, ok := rec.(*instancePull)
		if !ok {
			return fmt.Errorf("syncer: unexpected instance record type %T", rec)
		}
		if err := tx.Upsert(&pull.instance); err != nil {
			return fmt.Errorf("syncer: upsert checklist instance: %w", err)
		}
		for i := range pull.answers {
			if err := tx.Upsert(&pull.answers[i]); err != nil {
				return fmt.Errorf("syncer: upsert nested answer: %w", err)
			}
		}
	}
	return nil
}

func (checklistInstanceAdapter) ToServer(item models.MutationQueueItem) (json.RawMessage, error) {
	return json.RawMessage(item.Payload), nil
}
