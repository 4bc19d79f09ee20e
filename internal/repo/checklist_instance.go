package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/fieldsync/internal/logic"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/outbox"
	"github.com/zulandar/fieldsync/internal/store"
)

// EntityChecklistInstances is the outbox/sync entity name for instances.
const EntityChecklistInstances = "checklist_instances"

// InstanceTransitions is the allowed-transition table for checklist
// instances. COMPLETED and CANCELLED are terminal.
var InstanceTransitions = map[string][]string{
	models.InstancePending:    {models.InstanceInProgress, models.InstanceCancelled},
	models.InstanceInProgress: {models.InstanceCompleted, models.InstanceCancelled},
}

// CreateInstanceOpts holds parameters for starting a checklist against a
// work order. Questions is the live template schema; it is frozen into the
// instance as a snapshot so template edits never change this execution.
type CreateInstanceOpts struct {
	WorkOrderID  string
	TemplateID   string
	TechnicianID string
	Questions    []logic.Question
}

// CreateInstance freezes the template and inserts a PENDING instance.
func CreateInstance(st *store.Store, opts CreateInstanceOpts) (*models.ChecklistInstance, error) {
	if opts.WorkOrderID == "" || opts.TemplateID == "" {
		return nil, validation("work order id and template id are required")
	}
	snapshot, err := json.Marshal(opts.Questions)
	if err != nil {
		return nil, fmt.Errorf("repo: freeze template %s: %w", opts.TemplateID, err)
	}

	inst := models.ChecklistInstance{
		ID:               uuid.NewString(),
		WorkOrderID:      opts.WorkOrderID,
		TemplateID:       opts.TemplateID,
		TemplateSnapshot: string(snapshot),
		Status:           models.InstancePending,
		TechnicianID:     opts.TechnicianID,
	}

	err = st.Transaction(func(tx *store.Store) error {
		if err := tx.Insert(&inst); err != nil {
			return err
		}
		return outbox.Enqueue(tx, EntityChecklistInstances, inst.ID, models.OpCreate, InstancePayload(&inst))
	})
	if err != nil {
		return nil, fmt.Errorf("repo: create checklist instance: %w", err)
	}
	return &inst, nil
}

// GetInstance loads one checklist instance within the technician's scope.
func GetInstance(st *store.Store, technicianID, id string) (*models.ChecklistInstance, error) {
	var inst models.ChecklistInstance
	err := st.FindOne(&inst, "id = ? AND technician_id = ?", id, technicianID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("checklist instance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get instance %s: %w", id, err)
	}
	return &inst, nil
}

// InstancesForWorkOrder returns the checklists attached to a work order.
func InstancesForWorkOrder(st *store.Store, technicianID, workOrderID string) ([]models.ChecklistInstance, error) {
	var instances []models.ChecklistInstance
	err := st.FindAll(&instances, "work_order_id = ? AND technician_id = ?", workOrderID, technicianID)
	if err != nil {
		return nil, fmt.Errorf("repo: instances for work order %s: %w", workOrderID, err)
	}
	return instances, nil
}

// SnapshotQuestions decodes the instance's frozen question schema.
func SnapshotQuestions(inst *models.ChecklistInstance) ([]logic.Question, error) {
	var questions []logic.Question
	if err := json.Unmarshal([]byte(inst.TemplateSnapshot), &questions); err != nil {
		return nil, fmt.Errorf("repo: decode template snapshot of %s: %w", inst.ID, err)
	}
	return questions, nil
}

// UpdateInstanceProgress stores a derived progress value, clamped to
// [0,100].
func UpdateInstanceProgress(st *store.Store, technicianID, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	err := st.UpdateWhere(&models.ChecklistInstance{}, map[string]interface{}{"progress": progress},
		"id = ? AND technician_id = ?", id, technicianID)
	if err != nil {
		return fmt.Errorf("repo: update instance progress: %w", err)
	}
	return nil
}

// RecomputeInstanceProgress re-evaluates the instance's conditional logic
// against its stored answers and persists the resulting progress. A PENDING
// instance with any answer moves to IN_PROGRESS.
func RecomputeInstanceProgress(st *store.Store, technicianID, id string) (int, error) {
	inst, err := GetInstance(st, technicianID, id)
	if err != nil {
		return 0, err
	}
	questions, err := SnapshotQuestions(inst)
	if err != nil {
		return 0, err
	}
	values, err := AnswerValues(st, technicianID, id)
	if err != nil {
		return 0, err
	}

	result := logic.Evaluate(questions, values)
	updates := map[string]interface{}{"progress": result.Progress}
	if inst.Status == models.InstancePending && len(values) > 0 {
		updates["status"] = models.InstanceInProgress
	}
	if err := st.Update(&models.ChecklistInstance{}, id, updates); err != nil {
		return 0, fmt.Errorf("repo: store recomputed progress: %w", err)
	}
	return result.Progress, nil
}

// UpdateInstanceStatus applies a lifecycle transition. Completing requires
// every currently-visible required question to be answered; completion
// forces progress to 100 and stamps completedAt/completedBy.
func UpdateInstanceStatus(st *store.Store, technicianID, id, next, completedBy string) (*models.ChecklistInstance, error) {
	inst, err := GetInstance(st, technicianID, id)
	if err != nil {
		return nil, err
	}
	if !canTransitionInstance(inst.Status, next) {
		return nil, invalidTransition(inst.Status, next)
	}

	updates := map[string]interface{}{"status": next}
	if next == models.InstanceCompleted {
		questions, err := SnapshotQuestions(inst)
		if err != nil {
			return nil, err
		}
		values, err := AnswerValues(st, technicianID, id)
		if err != nil {
			return nil, err
		}
		if result := logic.Evaluate(questions, values); !result.Complete {
			return nil, validation("checklist has unanswered required questions")
		}
		now := time.Now()
		updates["progress"] = 100
		updates["completed_at"] = now
		updates["completed_by"] = completedBy
		inst.Progress = 100
		inst.CompletedAt = &now
		inst.CompletedBy = completedBy
	}
	inst.Status = next

	err = st.Transaction(func(tx *store.Store) error {
		if err := tx.Update(&models.ChecklistInstance{}, id, updates); err != nil {
			return err
		}
		return outbox.Enqueue(tx, EntityChecklistInstances, id, models.OpUpdate, InstancePayload(inst))
	})
	if err != nil {
		return nil, fmt.Errorf("repo: update instance status: %w", err)
	}
	return inst, nil
}

func canTransitionInstance(from, to string) bool {
	for _, next := range InstanceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InstancePayload shapes the outbox payload for an instance mutation.
func InstancePayload(inst *models.ChecklistInstance) map[string]interface{} {
	p := map[string]interface{}{
		"id":          inst.ID,
		"workOrderId": inst.WorkOrderID,
		"templateId":  inst.TemplateID,
		"status":      inst.Status,
		"progress":    inst.Progress,
	}
	if inst.CompletedAt != nil {
		p["completedAt"] = inst.CompletedAt.UTC().Format(time.RFC3339)
		p["completedBy"] = inst.CompletedBy
	}
	return p
}
