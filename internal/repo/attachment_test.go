package repo

import (
	"testing"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/store"
)

func createTestAttachment(t *testing.T, st *store.Store) *models.ChecklistAttachment {
	t.Helper()
	wo := createTestWorkOrder(t, st)
	att, err := CreateAttachment(st, CreateAttachmentOpts{
		WorkOrderID:   wo.ID,
		Kind:          models.AttachmentPhoto,
		FileName:      "before.jpg",
		Base64Payload: "aGVsbG8=",
		TechnicianID:  testTech,
	})
	if err != nil {
		t.Fatalf("create attachment: %v", err)
	}
	return att
}

func TestAttachment_UploadLifecycle(t *testing.T) {
	st := openTestStore(t)
	att := createTestAttachment(t, st)

	if att.SyncStatus != models.SyncPending {
		t.Errorf("initial SyncStatus = %q, want PENDING", att.SyncStatus)
	}

	if err := MarkAttachmentUploading(st, att.ID); err != nil {
		t.Fatalf("uploading: %v", err)
	}
	if err := MarkAttachmentSynced(st, att.ID, "/files/before.jpg"); err != nil {
		t.Fatalf("synced: %v", err)
	}

	got, err := GetAttachment(st, testTech, att.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.SyncStatus != models.SyncSynced {
		t.Errorf("SyncStatus = %q, want SYNCED", got.SyncStatus)
	}
	if got.RemotePath != "/files/before.jpg" {
		t.Errorf("RemotePath = %q", got.RemotePath)
	}
	if got.Base64Payload != "" {
		t.Error("base64 payload must be cleared after a successful upload")
	}
}

func TestAttachment_FailureBookkeeping(t *testing.T) {
	st := openTestStore(t)
	att := createTestAttachment(t, st)

	if err := MarkAttachmentFailed(st, att.ID, "413 payload too large"); err != nil {
		t.Fatalf("failed: %v", err)
	}
	got, err := GetAttachment(st, testTech, att.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.SyncStatus != models.SyncFailed {
		t.Errorf("SyncStatus = %q, want FAILED", got.SyncStatus)
	}
	if got.UploadAttempts != 1 {
		t.Errorf("UploadAttempts = %d, want 1", got.UploadAttempts)
	}
	if got.LastUploadError != "413 payload too large" {
		t.Errorf("LastUploadError = %q", got.LastUploadError)
	}

	n, err := RetryFailedAttachments(st, testTech)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n != 1 {
		t.Errorf("revived = %d, want 1", n)
	}
	pending, err := PendingAttachments(st, testTech, 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestPendingAttachments_OrderAndLimit(t *testing.T) {
	st := openTestStore(t)
	first := createTestAttachment(t, st)
	createTestAttachment(t, st)

	pending, err := PendingAttachments(st, testTech, 1)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Errorf("pending = %+v, want oldest first", pending)
	}
}

func TestAttachments_ScopedToTechnician(t *testing.T) {
	st := openTestStore(t)
	att := createTestAttachment(t, st)

	if _, err := GetAttachment(st, "tech-2", att.ID); !IsCode(err, CodeNotFound) {
		t.Errorf("foreign technician read: err = %v, want NOT_FOUND", err)
	}
	pending, err := PendingAttachments(st, "tech-2", 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("foreign pending = %d, want 0", len(pending))
	}

	if err := MarkAttachmentFailed(st, att.ID, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	n, err := RetryFailedAttachments(st, "tech-2")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n != 0 {
		t.Errorf("foreign retry revived %d rows, want 0", n)
	}
}
