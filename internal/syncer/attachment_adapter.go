package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/repo"
)

// attachmentAdapter uploads photos, signatures and files. Attachments never
// come down from the server and never ride the mutation outbox: the
// attachments table is its own upload queue, keyed on sync_status.
type attachmentAdapter struct{}

func (attachmentAdapter) Name() string             { return repo.EntityChecklistAttachments }
func (attachmentAdapter) Endpoint() string         { return "" }
func (attachmentAdapter) MutationEndpoint() string { return "/api/attachments/upload" }
func (attachmentAdapter) CursorField() string      { return "" }

func (attachmentAdapter) ScopeParams(*config.Config, time.Time) url.Values {
	return url.Values{}
}

func (attachmentAdapter) FromServer(json.RawMessage) (interface{}, string, error) {
	return nil, "", fmt.Errorf("attachments are push-only")
}

func (attachmentAdapter) ToServer(models.MutationQueueItem) (json.RawMessage, error) {
	return nil, fmt.Errorf("attachments do not use the mutation queue")
}

type attachmentUpload struct {
	LocalID     string  `json:"localId"`
	AnswerID    *string `json:"answerId,omitempty"`
	WorkOrderID string  `json:"workOrderId"`
	Kind        string  `json:"kind"`
	FileName    string  `json:"fileName"`
	Payload     string  `json:"payload"` // base64
}

// Push uploads pending attachments oldest-first. A transient failure
// reverts the in-flight row to pending and stops the pass; a server
// rejection marks the row failed and continues.
func (ad attachmentAdapter) Push(ctx context.Context, e *Engine) (int, int, error) {
	batch := e.cfg.EntityBatchSize(ad.Name())
	items, err := repo.PendingAttachments(e.st, e.cfg.TechnicianID, batch)
	if err != nil {
		return 0, 0, err
	}

	pushed, failed := 0, 0
	for _, att := range items {
		if err := ctx.Err(); err != nil {
			return pushed, failed, err
		}
		if err := repo.MarkAttachmentUploading(e.st, att.ID); err != nil {
			return pushed, failed, err
		}

		body := attachmentUpload{
			LocalID:     att.ID,
			AnswerID:    att.AnswerID,
			WorkOrderID: att.WorkOrderID,
			Kind:        att.Kind,
			FileName:    att.FileName,
			Payload:     att.Base64Payload,
		}
		res, err := e.client.Upload(ctx, ad.MutationEndpoint(), body)
		if err != nil {
			var reject *api.RejectError
			if errors.As(err, &reject) {
				failed++
				if markErr := repo.MarkAttachmentFailed(e.st, att.ID, reject.Message); markErr != nil {
					e.log.Error("mark attachment failed", zap.String("id", att.ID), zap.Error(markErr))
				}
				continue
			}
			if revertErr := e.st.Update(&models.ChecklistAttachment{}, att.ID, map[string]interface{}{
				"sync_status": models.SyncPending,
			}); revertErr != nil {
				e.log.Error("revert attachment to pending", zap.String("id", att.ID), zap.Error(revertErr))
			}
			return pushed, failed, err
		}

		if !res.Success {
			failed++
			if markErr := repo.MarkAttachmentFailed(e.st, att.ID, res.Error); markErr != nil {
				e.log.Error("mark attachment failed", zap.String("id", att.ID), zap.Error(markErr))
			}
			continue
		}
		if err := repo.MarkAttachmentSynced(e.st, att.ID, res.Path); err != nil {
			return pushed, failed, err
		}
		pushed++
	}
	return pushed, failed, nil
}
