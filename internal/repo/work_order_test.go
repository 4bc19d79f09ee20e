package repo

import (
	"testing"

	"go.uber.org/zap"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/outbox"
	"github.com/zulandar/fieldsync/internal/store"
)

const testTech = "tech-1"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func createTestWorkOrder(t *testing.T, st *store.Store) *models.WorkOrder {
	t.Helper()
	wo, err := CreateWorkOrder(st, CreateWorkOrderOpts{
		ClientID:     "client-1",
		Title:        "service furnace",
		TechnicianID: testTech,
	})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	return wo
}

func TestCreateWorkOrder_EnqueuesMutation(t *testing.T) {
	st := openTestStore(t)
	wo := createTestWorkOrder(t, st)

	if wo.Status != models.WorkOrderScheduled {
		t.Errorf("Status = %q, want SCHEDULED", wo.Status)
	}
	n, err := outbox.CountPending(st, EntityWorkOrders)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 1 {
		t.Errorf("pending mutations = %d, want 1", n)
	}
}

func TestUpdateWorkOrderStatus_ValidTransitions(t *testing.T) {
	st := openTestStore(t)
	wo := createTestWorkOrder(t, st)

	got, err := UpdateWorkOrderStatus(st, testTech, wo.ID, models.WorkOrderInProgress)
	if err != nil {
		t.Fatalf("to IN_PROGRESS: %v", err)
	}
	if got.ExecutionStart == nil {
		t.Error("ExecutionStart not stamped on first IN_PROGRESS")
	}
	firstStart := *got.ExecutionStart

	got, err = UpdateWorkOrderStatus(st, testTech, wo.ID, models.WorkOrderDone)
	if err != nil {
		t.Fatalf("to DONE: %v", err)
	}
	if got.ExecutionEnd == nil {
		t.Error("ExecutionEnd not stamped on DONE")
	}
	if !got.ExecutionStart.Equal(firstStart) {
		t.Error("ExecutionStart was overwritten")
	}
}

func TestUpdateWorkOrderStatus_InvalidTransitionClosure(t *testing.T) {
	st := openTestStore(t)

	invalid := []struct{ from, to string }{
		{models.WorkOrderScheduled, models.WorkOrderDone},
		{models.WorkOrderScheduled, models.WorkOrderScheduled},
		{models.WorkOrderInProgress, models.WorkOrderScheduled},
		{models.WorkOrderDone, models.WorkOrderInProgress},
		{models.WorkOrderDone, models.WorkOrderCanceled},
		{models.WorkOrderCanceled, models.WorkOrderScheduled},
		{models.WorkOrderCanceled, models.WorkOrderDone},
	}

	for _, tt := range invalid {
		wo := createTestWorkOrder(t, st)
		if err := st.Update(&models.WorkOrder{}, wo.ID, map[string]interface{}{"status": tt.from}); err != nil {
			t.Fatalf("seed status: %v", err)
		}
		before, err := outbox.CountPending(st, EntityWorkOrders)
		if err != nil {
			t.Fatalf("count: %v", err)
		}

		_, err = UpdateWorkOrderStatus(st, testTech, wo.ID, tt.to)
		if !IsCode(err, CodeInvalidTransition) {
			t.Errorf("%s -> %s: err = %v, want INVALID_TRANSITION", tt.from, tt.to, err)
		}

		var got models.WorkOrder
		if err := st.FindByID(&got, wo.ID); err != nil {
			t.Fatalf("reload: %v", err)
		}
		if got.Status != tt.from {
			t.Errorf("%s -> %s mutated status to %q", tt.from, tt.to, got.Status)
		}
		after, _ := outbox.CountPending(st, EntityWorkOrders)
		if after != before {
			t.Errorf("%s -> %s enqueued an outbox row", tt.from, tt.to)
		}
	}
}

func TestUpdateWorkOrder_EditGate(t *testing.T) {
	st := openTestStore(t)
	wo := createTestWorkOrder(t, st)

	title := "service furnace, bring ladder"
	if _, err := UpdateWorkOrder(st, testTech, wo.ID, UpdateWorkOrderOpts{Title: &title}); err != nil {
		t.Fatalf("edit while SCHEDULED: %v", err)
	}

	if _, err := UpdateWorkOrderStatus(st, testTech, wo.ID, models.WorkOrderInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := UpdateWorkOrder(st, testTech, wo.ID, UpdateWorkOrderOpts{Title: &title}); err != nil {
		t.Fatalf("edit while IN_PROGRESS: %v", err)
	}

	if _, err := UpdateWorkOrderStatus(st, testTech, wo.ID, models.WorkOrderDone); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := UpdateWorkOrder(st, testTech, wo.ID, UpdateWorkOrderOpts{Title: &title})
	if !IsCode(err, CodeCannotEdit) {
		t.Errorf("edit while DONE: err = %v, want CANNOT_EDIT", err)
	}
}

func TestDeleteWorkOrder_OnlyScheduled(t *testing.T) {
	st := openTestStore(t)
	wo := createTestWorkOrder(t, st)

	if _, err := UpdateWorkOrderStatus(st, testTech, wo.ID, models.WorkOrderInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := DeleteWorkOrder(st, testTech, wo.ID); !IsCode(err, CodeCannotDelete) {
		t.Errorf("delete IN_PROGRESS: err = %v, want CANNOT_DELETE", err)
	}

	wo2 := createTestWorkOrder(t, st)
	if err := DeleteWorkOrder(st, testTech, wo2.ID); err != nil {
		t.Fatalf("delete SCHEDULED: %v", err)
	}
	if _, err := GetWorkOrder(st, testTech, wo2.ID); !IsCode(err, CodeNotFound) {
		t.Errorf("soft-deleted order still readable: %v", err)
	}

	// The row survives as inactive, with a delete mutation queued.
	var raw models.WorkOrder
	if err := st.FindByID(&raw, wo2.ID); err != nil {
		t.Fatalf("raw reload: %v", err)
	}
	if raw.IsActive {
		t.Error("IsActive should be false after delete")
	}
}

func TestGetWorkOrder_TenantScoped(t *testing.T) {
	st := openTestStore(t)
	wo := createTestWorkOrder(t, st)

	if _, err := GetWorkOrder(st, "tech-other", wo.ID); !IsCode(err, CodeNotFound) {
		t.Errorf("cross-tenant read: err = %v, want NOT_FOUND", err)
	}
}

func TestListWorkOrders_Filters(t *testing.T) {
	st := openTestStore(t)
	createTestWorkOrder(t, st)
	wo := createTestWorkOrder(t, st)
	if _, err := UpdateWorkOrderStatus(st, testTech, wo.ID, models.WorkOrderInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}

	all, err := ListWorkOrders(st, testTech, WorkOrderFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	active, err := ListWorkOrders(st, testTech, WorkOrderFilters{Status: models.WorkOrderInProgress})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(active) != 1 || active[0].ID != wo.ID {
		t.Errorf("filtered = %+v", active)
	}
}
