package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/store"
)

// EntityChecklistAttachments is the sync entity name for attachments.
// Attachments do not ride the mutation outbox: the attachment table is its
// own upload queue, keyed by sync_status.
const EntityChecklistAttachments = "checklist_attachments"

// CreateAttachmentOpts holds parameters for registering local binary
// evidence.
type CreateAttachmentOpts struct {
	AnswerID      string // optional; empty attaches to the work order alone
	WorkOrderID   string
	Kind          string // PHOTO, SIGNATURE, FILE
	FileName      string
	LocalPath     string
	Base64Payload string
	TechnicianID  string
}

// CreateAttachment inserts a PENDING attachment holding the payload until
// its upload succeeds.
func CreateAttachment(st *store.Store, opts CreateAttachmentOpts) (*models.ChecklistAttachment, error) {
	if opts.WorkOrderID == "" {
		return nil, validation("work order id is required")
	}
	if opts.Base64Payload == "" && opts.LocalPath == "" {
		return nil, validation("attachment needs a payload or a local path")
	}

	att := models.ChecklistAttachment{
		ID:            uuid.NewString(),
		WorkOrderID:   opts.WorkOrderID,
		Kind:          opts.Kind,
		FileName:      opts.FileName,
		LocalPath:     opts.LocalPath,
		Base64Payload: opts.Base64Payload,
		SyncStatus:    models.SyncPending,
		TechnicianID:  opts.TechnicianID,
	}
	if opts.AnswerID != "" {
		att.AnswerID = &opts.AnswerID
	}

	if err := st.Insert(&att); err != nil {
		return nil, fmt.Errorf("repo: create attachment: %w", err)
	}
	return &att, nil
}

// PendingAttachments returns the technician's attachments awaiting upload,
// oldest first.
func PendingAttachments(st *store.Store, technicianID string, limit int) ([]models.ChecklistAttachment, error) {
	var atts []models.ChecklistAttachment
	tx := st.DB().
		Where("sync_status = ? AND technician_id = ?", models.SyncPending, technicianID).
		Order("created_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&atts).Error; err != nil {
		return nil, fmt.Errorf("repo: pending attachments: %w", err)
	}
	return atts, nil
}

// MarkAttachmentUploading moves a pending attachment into UPLOADING.
func MarkAttachmentUploading(st *store.Store, id string) error {
	err := st.Update(&models.ChecklistAttachment{}, id, map[string]interface{}{
		"sync_status": models.SyncUploading,
	})
	if err != nil {
		return fmt.Errorf("repo: mark attachment uploading: %w", err)
	}
	return nil
}

// MarkAttachmentSynced records a successful upload: the remote path is
// stored and the transient base64 payload is cleared so local storage stays
// bounded.
func MarkAttachmentSynced(st *store.Store, id, remotePath string) error {
	err := st.Update(&models.ChecklistAttachment{}, id, map[string]interface{}{
		"sync_status":       models.SyncSynced,
		"remote_path":       remotePath,
		"base64_payload":    "",
		"last_upload_error": "",
		"synced_at":         time.Now(),
	})
	if err != nil {
		return fmt.Errorf("repo: mark attachment synced: %w", err)
	}
	return nil
}

// MarkAttachmentFailed records an upload failure for retry bookkeeping.
func MarkAttachmentFailed(st *store.Store, id, message string) error {
	err := st.DB().Model(&models.ChecklistAttachment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":       models.SyncFailed,
			"last_upload_error": message,
			"upload_attempts":   gorm.Expr("upload_attempts + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("repo: mark attachment failed: %w", err)
	}
	return nil
}

// RetryFailedAttachments moves the technician's FAILED attachments back to
// PENDING.
func RetryFailedAttachments(st *store.Store, technicianID string) (int64, error) {
	tx := st.DB().Model(&models.ChecklistAttachment{}).
		Where("sync_status = ? AND technician_id = ?", models.SyncFailed, technicianID).
		Updates(map[string]interface{}{"sync_status": models.SyncPending})
	if tx.Error != nil {
		return 0, fmt.Errorf("repo: retry failed attachments: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// GetAttachment loads one attachment within the technician's scope.
func GetAttachment(st *store.Store, technicianID, id string) (*models.ChecklistAttachment, error) {
	var att models.ChecklistAttachment
	err := st.FindOne(&att, "id = ? AND technician_id = ?", id, technicianID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("attachment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get attachment %s: %w", id, err)
	}
	return &att, nil
}
