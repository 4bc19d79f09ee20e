// Package repo holds the typed data-access layer. Each repository wraps one
// table, enforces the entity's invariants, and mirrors every accepted local
// write into the mutation outbox inside the same transaction.
package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/outbox"
	"github.com/zulandar/fieldsync/internal/store"
)

// EntityWorkOrders is the outbox/sync entity name for work orders.
const EntityWorkOrders = "work_orders"

// WorkOrderTransitions is the static allowed-transition table. DONE and
// CANCELED are terminal.
var WorkOrderTransitions = map[string][]string{
	models.WorkOrderScheduled:  {models.WorkOrderInProgress, models.WorkOrderCanceled},
	models.WorkOrderInProgress: {models.WorkOrderDone, models.WorkOrderCanceled},
}

var workOrderEditable = map[string]bool{
	models.WorkOrderScheduled:  true,
	models.WorkOrderInProgress: true,
}

// CanTransitionWorkOrder reports whether from -> to is in the transition
// table.
func CanTransitionWorkOrder(from, to string) bool {
	for _, next := range WorkOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateWorkOrderOpts holds parameters for creating a work order locally.
type CreateWorkOrderOpts struct {
	ClientID      string
	Title         string
	Description   string
	ScheduledDate *time.Time
	WindowStart   string
	WindowEnd     string
	TechnicianID  string
}

// CreateWorkOrder inserts a SCHEDULED work order and queues its creation for
// the server.
func CreateWorkOrder(st *store.Store, opts CreateWorkOrderOpts) (*models.WorkOrder, error) {
	if opts.Title == "" {
		return nil, validation("title is required")
	}
	if opts.TechnicianID == "" {
		return nil, validation("technician id is required")
	}

	wo := models.WorkOrder{
		ID:            uuid.NewString(),
		ClientID:      opts.ClientID,
		Title:         opts.Title,
		Description:   opts.Description,
		Status:        models.WorkOrderScheduled,
		ScheduledDate: opts.ScheduledDate,
		WindowStart:   opts.WindowStart,
		WindowEnd:     opts.WindowEnd,
		IsActive:      true,
		TechnicianID:  opts.TechnicianID,
	}

	err := st.Transaction(func(tx *store.Store) error {
		if err := tx.Insert(&wo); err != nil {
			return err
		}
		return outbox.Enqueue(tx, EntityWorkOrders, wo.ID, models.OpCreate, WorkOrderPayload(&wo))
	})
	if err != nil {
		return nil, fmt.Errorf("repo: create work order: %w", err)
	}
	return &wo, nil
}

// GetWorkOrder loads one active work order scoped to the technician.
func GetWorkOrder(st *store.Store, technicianID, id string) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := st.FindOne(&wo, "id = ? AND technician_id = ? AND is_active = ?", id, technicianID, true)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("work order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get work order %s: %w", id, err)
	}
	return &wo, nil
}

// WorkOrderFilters narrows ListWorkOrders.
type WorkOrderFilters struct {
	Status   string
	ClientID string
	From     *time.Time
	To       *time.Time
}

// ListWorkOrders returns the technician's active work orders, newest
// scheduled first.
func ListWorkOrders(st *store.Store, technicianID string, f WorkOrderFilters) ([]models.WorkOrder, error) {
	tx := st.DB().
		Where("technician_id = ? AND is_active = ?", technicianID, true).
		Order("scheduled_date DESC, created_at DESC")
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.ClientID != "" {
		tx = tx.Where("client_id = ?", f.ClientID)
	}
	if f.From != nil {
		tx = tx.Where("scheduled_date >= ?", *f.From)
	}
	if f.To != nil {
		tx = tx.Where("scheduled_date <= ?", *f.To)
	}

	var orders []models.WorkOrder
	if err := tx.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("repo: list work orders: %w", err)
	}
	return orders, nil
}

// UpdateWorkOrderStatus applies a status transition. Invalid transitions
// fail fast: no mutation, no outbox entry, no network. ExecutionStart is
// stamped on the first transition into IN_PROGRESS and never overwritten;
// ExecutionEnd is stamped on the transition into DONE.
func UpdateWorkOrderStatus(st *store.Store, technicianID, id, next string) (*models.WorkOrder, error) {
	wo, err := GetWorkOrder(st, technicianID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionWorkOrder(wo.Status, next) {
		return nil, invalidTransition(wo.Status, next)
	}

	now := time.Now()
	updates := map[string]interface{}{"status": next}
	if next == models.WorkOrderInProgress && wo.ExecutionStart == nil {
		updates["execution_start"] = now
		wo.ExecutionStart = &now
	}
	if next == models.WorkOrderDone {
		updates["execution_end"] = now
		wo.ExecutionEnd = &now
	}
	wo.Status = next

	err = st.Transaction(func(tx *store.Store) error {
		if err := tx.Update(&models.WorkOrder{}, id, updates); err != nil {
			return err
		}
		return outbox.Enqueue(tx, EntityWorkOrders, id, models.OpUpdate, WorkOrderPayload(wo))
	})
	if err != nil {
		return nil, fmt.Errorf("repo: update work order status: %w", err)
	}
	return wo, nil
}

// UpdateWorkOrderOpts is the editable subset of a work order.
type UpdateWorkOrderOpts struct {
	Title         *string
	Description   *string
	ScheduledDate *time.Time
	WindowStart   *string
	WindowEnd     *string
}

// UpdateWorkOrder edits mutable fields. Editing is permitted only while the
// order is SCHEDULED or IN_PROGRESS.
func UpdateWorkOrder(st *store.Store, technicianID, id string, opts UpdateWorkOrderOpts) (*models.WorkOrder, error) {
	wo, err := GetWorkOrder(st, technicianID, id)
	if err != nil {
		return nil, err
	}
	if !workOrderEditable[wo.Status] {
		return nil, &Error{Code: CodeCannotEdit, Message: "work order is not editable", From: wo.Status}
	}

	updates := map[string]interface{}{}
	if opts.Title != nil {
		if *opts.Title == "" {
			return nil, validation("title cannot be empty")
		}
		updates["title"] = *opts.Title
		wo.Title = *opts.Title
	}
	if opts.Description != nil {
		updates["description"] = *opts.Description
		wo.Description = *opts.Description
	}
	if opts.ScheduledDate != nil {
		updates["scheduled_date"] = *opts.ScheduledDate
		wo.ScheduledDate = opts.ScheduledDate
	}
	if opts.WindowStart != nil {
		updates["window_start"] = *opts.WindowStart
		wo.WindowStart = *opts.WindowStart
	}
	if opts.WindowEnd != nil {
		updates["window_end"] = *opts.WindowEnd
		wo.WindowEnd = *opts.WindowEnd
	}
	if len(updates) == 0 {
		return wo, nil
	}

	err = st.Transaction(func(tx *store.Store) error {
		if err := tx.Update(&models.WorkOrder{}, id, updates); err != nil {
			return err
		}
		return outbox.Enqueue(tx, EntityWorkOrders, id, models.OpUpdate, WorkOrderPayload(wo))
	})
	if err != nil {
		return nil, fmt.Errorf("repo: update work order: %w", err)
	}
	return wo, nil
}

// DeleteWorkOrder soft-deletes a work order. Deletion is permitted only
// while SCHEDULED.
func DeleteWorkOrder(st *store.Store, technicianID, id string) error {
	wo, err := GetWorkOrder(st, technicianID, id)
	if err != nil {
		return err
	}
	if wo.Status != models.WorkOrderScheduled {
		return &Error{Code: CodeCannotDelete, Message: "only scheduled work orders can be deleted", From: wo.Status}
	}

	err = st.Transaction(func(tx *store.Store) error {
		if err := tx.Update(&models.WorkOrder{}, id, map[string]interface{}{"is_active": false}); err != nil {
			return err
		}
		return outbox.Enqueue(tx, EntityWorkOrders, id, models.OpDelete, map[string]string{"id": id})
	})
	if err != nil {
		return fmt.Errorf("repo: delete work order: %w", err)
	}
	return nil
}

// MarkWorkOrderSynced stamps the first (or latest) server acknowledgment.
func MarkWorkOrderSynced(st *store.Store, id string, at time.Time) error {
	if err := st.Update(&models.WorkOrder{}, id, map[string]interface{}{"synced_at": at}); err != nil {
		return fmt.Errorf("repo: mark work order synced: %w", err)
	}
	return nil
}

// WorkOrderPayload shapes the outbox payload for a work order mutation. Only
// client-mutable fields go in; server-owned fields (technician scope,
// soft-delete flag, sync stamps) stay out.
func WorkOrderPayload(wo *models.WorkOrder) map[string]interface{} {
	p := map[string]interface{}{
		"id":          wo.ID,
		"clientId":    wo.ClientID,
		"title":       wo.Title,
		"description": wo.Description,
		"status":      wo.Status,
		"windowStart": wo.WindowStart,
		"windowEnd":   wo.WindowEnd,
	}
	if wo.ScheduledDate != nil {
		p["scheduledDate"] = wo.ScheduledDate.UTC().Format(time.RFC3339)
	}
	if wo.ExecutionStart != nil {
		p["executionStart"] = wo.ExecutionStart.UTC().Format(time.RFC3339)
	}
	if wo.ExecutionEnd != nil {
		p["executionEnd"] = wo.ExecutionEnd.UTC().Format(time.RFC3339)
	}
	return p
}
