package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/devserver"
	"github.com/zulandar/fieldsync/internal/logic"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/outbox"
	"github.com/zulandar/fieldsync/internal/repo"
	"github.com/zulandar/fieldsync/internal/store"
)

const testTech = "tech-1"

// newTestEngine wires a migrated in-memory store against a devserver
// instance behind httptest.
func newTestEngine(t *testing.T) (*Engine, *store.Store, *devserver.Server) {
	t.Helper()

	st, err := store.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dev := devserver.New()
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIBaseURL:   srv.URL,
		TechnicianID: testTech,
		BatchSize:    100,
		WorkOrders:   config.WorkOrderWindow{DaysBack: 30, DaysForward: 60},
	}
	client := api.NewClient(srv.URL, "", zap.NewNop())
	eng := New(st, client, api.NewHTTPProbe(srv.URL), cfg, zap.NewNop())
	return eng, st, dev
}

func TestPullLandsServerRecordsAndAdvancesCursor(t *testing.T) {
	eng, st, dev := newTestEngine(t)

	dev.Seed("work_orders", "wo-1", "2026-08-01T10:00:00Z", map[string]interface{}{
		"title":        "Install router",
		"status":       models.WorkOrderScheduled,
		"technicianId": testTech,
	})
	dev.Seed("work_orders", "wo-2", "2026-08-02T09:00:00Z", map[string]interface{}{
		"title":        "Repair antenna",
		"status":       models.WorkOrderScheduled,
		"technicianId": testTech,
	})

	res := eng.SyncEntity(context.Background(), repo.EntityWorkOrders)
	if len(res.Errors) > 0 {
		t.Fatalf("sync errors: %v", res.Errors)
	}
	if res.Pulled != 2 {
		t.Fatalf("Pulled = %d, want 2", res.Pulled)
	}
	if res.Cursor != "2026-08-02T09:00:00Z" {
		t.Fatalf("Cursor = %q, want highest updatedAt", res.Cursor)
	}

	var wo models.WorkOrder
	if err := st.FindByID(&wo, "wo-2"); err != nil {
		t.Fatalf("find pulled work order: %v", err)
	}
	if wo.Title != "Repair antenna" {
		t.Fatalf("Title = %q", wo.Title)
	}

	var meta models.SyncMeta
	if err := st.FindOne(&meta, "entity = ?", repo.EntityWorkOrders); err != nil {
		t.Fatalf("load sync_meta: %v", err)
	}
	if meta.LastCursor != "2026-08-02T09:00:00Z" {
		t.Fatalf("LastCursor = %q", meta.LastCursor)
	}
	if meta.SyncStatus != models.SyncStateIdle {
		t.Fatalf("SyncStatus = %q, want idle", meta.SyncStatus)
	}

	// A second pass with nothing new pulls zero.
	res = eng.SyncEntity(context.Background(), repo.EntityWorkOrders)
	if res.Pulled != 0 {
		t.Fatalf("second pass Pulled = %d, want 0", res.Pulled)
	}
}

func TestServerWinsRowThenQueuedMutationReplays(t *testing.T) {
	eng, st, dev := newTestEngine(t)

	// Local copy with a queued status change.
	dev.Seed("work_orders", "wo-1", "2026-08-01T10:00:00Z", map[string]interface{}{
		"title":        "Install router",
		"status":       models.WorkOrderScheduled,
		"technicianId": testTech,
	})
	if r := eng.SyncEntity(context.Background(), repo.EntityWorkOrders); len(r.Errors) > 0 {
		t.Fatalf("initial sync: %v", r.Errors)
	}
	if _, err := repo.UpdateWorkOrderStatus(st, testTech, "wo-1", models.WorkOrderInProgress); err != nil {
		t.Fatalf("update status: %v", err)
	}

	// Server revises the title before we push.
	dev.Seed("work_orders", "wo-1", "2026-08-03T08:00:00Z", map[string]interface{}{
		"title":        "Install router v2",
		"status":       models.WorkOrderScheduled,
		"technicianId": testTech,
	})

	res := eng.SyncEntity(context.Background(), repo.EntityWorkOrders)
	if len(res.Errors) > 0 {
		t.Fatalf("sync errors: %v", res.Errors)
	}
	if res.Pulled != 1 || res.Pushed != 1 {
		t.Fatalf("Pulled = %d Pushed = %d, want 1/1", res.Pulled, res.Pushed)
	}

	// The pull overwrote the row, and the replayed mutation carried the
	// local status change to the server.
	var wo models.WorkOrder
	if err := st.FindByID(&wo, "wo-1"); err != nil {
		t.Fatalf("find work order: %v", err)
	}
	if wo.Title != "Install router v2" {
		t.Fatalf("local Title = %q, want server version", wo.Title)
	}

	recs := dev.Records("work_orders")
	if len(recs) != 1 {
		t.Fatalf("server rows = %d, want 1", len(recs))
	}
	if got := recs[0]["status"]; got != models.WorkOrderInProgress {
		t.Fatalf("server status = %v, want replayed IN_PROGRESS", got)
	}
}

func TestPushRejectionMarksMutationFailed(t *testing.T) {
	eng, st, dev := newTestEngine(t)

	if _, err := repo.CreateWorkOrder(st, repo.CreateWorkOrderOpts{
		Title:        "Doomed order",
		TechnicianID: testTech,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	dev.RejectNextPush("work_orders", "validation failed")

	res := eng.SyncEntity(context.Background(), repo.EntityWorkOrders)
	if res.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", res.Failed)
	}

	n, err := outbox.CountFailed(st, repo.EntityWorkOrders)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("failed mutations = %d, want 1", n)
	}
}

func TestTransientPushKeepsMutationPending(t *testing.T) {
	st, err := store.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Pulls answer with an empty page; every push gets a 503.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIBaseURL:   srv.URL,
		TechnicianID: testTech,
		BatchSize:    100,
		WorkOrders:   config.WorkOrderWindow{DaysBack: 30, DaysForward: 60},
	}
	eng := New(st, api.NewClient(srv.URL, "", zap.NewNop()), api.NewHTTPProbe(srv.URL), cfg, zap.NewNop())

	if _, err := repo.CreateWorkOrder(st, repo.CreateWorkOrderOpts{
		Title:        "Stalled order",
		TechnicianID: testTech,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res := eng.SyncEntity(context.Background(), repo.EntityWorkOrders)
	if len(res.Errors) == 0 {
		t.Fatal("expected a sync error on 503 push")
	}
	if res.Failed != 0 {
		t.Errorf("Failed = %d; a 503 must not mark the mutation failed", res.Failed)
	}

	// The mutation survives as pending for the next pass.
	if n, _ := outbox.CountPending(st, repo.EntityWorkOrders); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
	if n, _ := outbox.CountFailed(st, repo.EntityWorkOrders); n != 0 {
		t.Errorf("failed = %d, want 0", n)
	}
}

func TestAnswerPushReconcilesServerID(t *testing.T) {
	eng, st, _ := newTestEngine(t)

	wo, err := repo.CreateWorkOrder(st, repo.CreateWorkOrderOpts{Title: "Job", TechnicianID: testTech})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	inst, err := repo.CreateInstance(st, repo.CreateInstanceOpts{
		WorkOrderID:  wo.ID,
		TemplateID:   "tpl-1",
		TechnicianID: testTech,
		Questions: []logic.Question{
			{ID: "q1", Type: logic.TypeText, Title: "Notes", Required: true, Order: 1},
		},
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	ans, err := repo.UpsertAnswer(st, testTech, inst.ID, "q1", logic.TypeText, logic.TextValue("done"))
	if err != nil {
		t.Fatalf("upsert answer: %v", err)
	}

	res := eng.SyncEntity(context.Background(), repo.EntityChecklistAnswers)
	if len(res.Errors) > 0 {
		t.Fatalf("sync errors: %v", res.Errors)
	}
	if res.Pushed != 1 {
		t.Fatalf("Pushed = %d, want 1", res.Pushed)
	}

	// The devserver assigns created answers a fresh id; the local row must
	// now live under that id with no leftover under the old one.
	var rows []models.ChecklistAnswer
	if err := st.FindAll(&rows, "instance_id = ?", inst.ID); err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("answer rows = %d, want 1", len(rows))
	}
	if rows[0].ID == ans.ID {
		t.Fatalf("row still keyed on client id %s", ans.ID)
	}
	if rows[0].SyncStatus != models.SyncSynced {
		t.Fatalf("SyncStatus = %q, want SYNCED", rows[0].SyncStatus)
	}
	if rows[0].LocalID != ans.LocalID {
		t.Fatalf("LocalID changed across reconciliation")
	}
}

func TestAttachmentUploadCycle(t *testing.T) {
	eng, st, dev := newTestEngine(t)

	wo, err := repo.CreateWorkOrder(st, repo.CreateWorkOrderOpts{Title: "Job", TechnicianID: testTech})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	att, err := repo.CreateAttachment(st, repo.CreateAttachmentOpts{
		WorkOrderID:   wo.ID,
		Kind:          models.AttachmentPhoto,
		FileName:      "site.jpg",
		Base64Payload: "aGVsbG8=",
		TechnicianID:  testTech,
	})
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}

	res := eng.SyncEntity(context.Background(), repo.EntityChecklistAttachments)
	if len(res.Errors) > 0 {
		t.Fatalf("sync errors: %v", res.Errors)
	}
	if res.Pushed != 1 {
		t.Fatalf("Pushed = %d, want 1", res.Pushed)
	}

	got, err := repo.GetAttachment(st, testTech, att.ID)
	if err != nil {
		t.Fatalf("get attachment: %v", err)
	}
	if got.SyncStatus != models.SyncSynced {
		t.Fatalf("SyncStatus = %q, want SYNCED", got.SyncStatus)
	}
	if got.RemotePath == "" {
		t.Fatalf("RemotePath not recorded")
	}
	if got.Base64Payload != "" {
		t.Fatalf("payload should be cleared after upload")
	}
	if len(dev.Uploads()) != 1 {
		t.Fatalf("server uploads = %d, want 1", len(dev.Uploads()))
	}
}

func TestSyncAllOfflineTouchesNothing(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	eng.probe = api.StaticProbe(false)

	if _, err := repo.CreateWorkOrder(st, repo.CreateWorkOrderOpts{
		Title:        "Queued offline",
		TechnicianID: testTech,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	results := eng.SyncAll(context.Background())
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4 entities", len(results))
	}
	for _, r := range results {
		if !r.Offline {
			t.Fatalf("entity %s not flagged offline", r.Entity)
		}
	}

	n, err := outbox.CountPending(st, repo.EntityWorkOrders)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 1 {
		t.Fatalf("pending mutations = %d, want the queue untouched", n)
	}
}

func TestInstancePullLandsNestedAnswers(t *testing.T) {
	eng, st, dev := newTestEngine(t)

	dev.Seed("checklist_instances", "inst-1", "2026-08-05T12:00:00Z", map[string]interface{}{
		"workOrderId":  "wo-9",
		"templateId":   "tpl-1",
		"status":       models.InstanceInProgress,
		"progress":     50,
		"technicianId": testTech,
		"answers": []map[string]interface{}{
			{
				"id":           "srv-a1",
				"questionId":   "q1",
				"questionType": logic.TypeText,
				"valueText":    "ok",
				"technicianId": testTech,
			},
		},
	})

	res := eng.SyncEntity(context.Background(), repo.EntityChecklistInstances)
	if len(res.Errors) > 0 {
		t.Fatalf("sync errors: %v", res.Errors)
	}
	if res.Pulled != 1 {
		t.Fatalf("Pulled = %d, want 1", res.Pulled)
	}

	var inst models.ChecklistInstance
	if err := st.FindByID(&inst, "inst-1"); err != nil {
		t.Fatalf("find instance: %v", err)
	}
	if inst.Progress != 50 {
		t.Fatalf("Progress = %d", inst.Progress)
	}

	var ans models.ChecklistAnswer
	if err := st.FindByID(&ans, "srv-a1"); err != nil {
		t.Fatalf("find nested answer: %v", err)
	}
	if ans.InstanceID != "inst-1" || ans.SyncStatus != models.SyncSynced {
		t.Fatalf("nested answer not landed synced: %+v", ans)
	}
}

func TestStatusReportsQueueDepth(t *testing.T) {
	eng, st, _ := newTestEngine(t)

	if _, err := repo.CreateWorkOrder(st, repo.CreateWorkOrderOpts{
		Title:        "Pending push",
		TechnicianID: testTech,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	statuses, err := eng.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 4 {
		t.Fatalf("statuses = %d, want 4", len(statuses))
	}
	for _, s := range statuses {
		if s.Entity == repo.EntityWorkOrders && s.Pending != 1 {
			t.Fatalf("work_orders Pending = %d, want 1", s.Pending)
		}
	}
}

func TestRoundTripPayloadsMatchPullShape(t *testing.T) {
	// What the repos enqueue must decode back through the pull path, so a
	// record pushed from one device lands intact on another.
	now := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	wo := &models.WorkOrder{
		ID:            "wo-1",
		ClientID:      "client-1",
		Title:         "Round trip",
		Status:        models.WorkOrderScheduled,
		ScheduledDate: &now,
		WindowStart:   "09:00",
		WindowEnd:     "12:00",
	}
	payload := repo.WorkOrderPayload(wo)
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	rec, _, err := workOrderAdapter{}.FromServer(raw)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	got := rec.(*models.WorkOrder)
	if got.ID != wo.ID || got.Title != wo.Title || got.WindowStart != wo.WindowStart {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.ScheduledDate == nil || !got.ScheduledDate.Equal(now) {
		t.Fatalf("ScheduledDate did not survive: %v", got.ScheduledDate)
	}
}
