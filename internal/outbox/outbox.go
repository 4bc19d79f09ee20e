// Package outbox implements the durable mutation queue: every local write is
// appended here and drained to the server in creation order. The queue
// survives restarts; retry cadence is the caller's job (there is no internal
// timer).
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/store"
)

// Outcome classifies the server's verdict on one pushed mutation.
type Outcome int

const (
	// Applied means the server accepted the mutation; the row is deleted.
	Applied Outcome = iota
	// Rejected means the server refused the mutation permanently; the row
	// is marked failed and the drain continues past it.
	Rejected
	// Skipped means the server reports the mutation as already applied or
	// superseded; the row is deleted without further action.
	Skipped
	// Retry means a transient failure (network, 5xx): the item reverts to
	// pending and the drain pass stops to preserve ordering.
	Retry
)

// PushFunc delivers one queue item to the server. A Retry outcome or a
// non-nil error means a transient failure: the item stays pending and the
// drain pass stops for this entity to preserve ordering. A Rejected outcome
// carries the server's message.
type PushFunc func(ctx context.Context, item models.MutationQueueItem) (Outcome, string, error)

// DrainResult summarizes one drain pass for one entity.
type DrainResult struct {
	Pushed    int
	Failed    int
	Remaining int
	Stopped   bool  // a transient failure cut the pass short
	Err       error // the transient failure, when Stopped
}

// Enqueue appends a pending mutation for entity/entityID. Call it on the
// same transactional Store as the local write it mirrors so a crash cannot
// separate the write from the intent to sync it.
func Enqueue(st *store.Store, entity, entityID, operation string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload for %s/%s: %w", entity, entityID, err)
	}
	item := models.MutationQueueItem{
		Entity:    entity,
		EntityID:  entityID,
		Operation: operation,
		Payload:   string(data),
		Status:    models.MutationPending,
	}
	if err := st.Insert(&item); err != nil {
		return fmt.Errorf("outbox: enqueue %s %s/%s: %w", operation, entity, entityID, err)
	}
	return nil
}

// Pending returns the pending items for one entity in creation order.
func Pending(st *store.Store, entity string) ([]models.MutationQueueItem, error) {
	var items []models.MutationQueueItem
	err := st.DB().
		Where("entity = ? AND status = ?", entity, models.MutationPending).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("outbox: list pending for %s: %w", entity, err)
	}
	return items, nil
}

// recoverStuck reverts an entity's processing rows to pending. Drains run
// one at a time, so a processing row at drain start can only be a leftover
// from a crash mid-push; without the revert it would sit invisible forever
// while younger mutations overtake it.
func recoverStuck(st *store.Store, log *zap.Logger, entity string) error {
	tx := st.DB().Model(&models.MutationQueueItem{}).
		Where("entity = ? AND status = ?", entity, models.MutationProcessing).
		Update("status", models.MutationPending)
	if tx.Error != nil {
		return fmt.Errorf("outbox: recover stuck items for %s: %w", entity, tx.Error)
	}
	if tx.RowsAffected > 0 {
		log.Warn("recovered interrupted mutations",
			zap.String("entity", entity),
			zap.Int64("count", tx.RowsAffected),
		)
	}
	return nil
}

// Drain pushes the entity's pending items oldest-first. On a transient
// failure the current item reverts to pending and the pass stops; on a
// rejection the item is marked failed and the pass continues.
func Drain(ctx context.Context, st *store.Store, log *zap.Logger, entity string, push PushFunc) DrainResult {
	var res DrainResult

	if err := recoverStuck(st, log, entity); err != nil {
		res.Stopped = true
		res.Err = err
		return res
	}

	items, err := Pending(st, entity)
	if err != nil {
		res.Stopped = true
		res.Err = err
		return res
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			res.Stopped = true
			res.Err = err
			res.Remaining = len(items) - i
			return res
		}

		if err := setStatus(st, item.ID, models.MutationProcessing, ""); err != nil {
			res.Stopped = true
			res.Err = err
			res.Remaining = len(items) - i
			return res
		}

		outcome, message, err := push(ctx, item)
		if outcome == Retry && err == nil {
			err = fmt.Errorf("outbox: transient failure pushing %s/%s", entity, item.EntityID)
		}
		if err != nil {
			// Transient: back to pending, stop the pass for this entity so a
			// later mutation never lands before this one.
			if revertErr := setStatus(st, item.ID, models.MutationPending, ""); revertErr != nil {
				log.Error("revert mutation to pending", zap.Uint("id", item.ID), zap.Error(revertErr))
			}
			log.Warn("drain stopped on transient failure",
				zap.String("entity", entity),
				zap.Uint("id", item.ID),
				zap.Error(err),
			)
			res.Stopped = true
			res.Err = err
			res.Remaining = len(items) - i
			return res
		}

		switch outcome {
		case Rejected:
			if err := markFailed(st, item.ID, message); err != nil {
				res.Stopped = true
				res.Err = err
				res.Remaining = len(items) - i
				return res
			}
			log.Warn("mutation rejected by server",
				zap.String("entity", entity),
				zap.String("entity_id", item.EntityID),
				zap.String("error", message),
			)
			res.Failed++
		default: // Applied or Skipped
			if err := st.Remove(&models.MutationQueueItem{}, "id = ?", item.ID); err != nil {
				res.Stopped = true
				res.Err = err
				res.Remaining = len(items) - i
				return res
			}
			res.Pushed++
		}
	}
	return res
}

// RetryFailed moves an entity's failed items back to pending so the next
// drain attempts them again. Returns the number of items revived.
func RetryFailed(st *store.Store, entity string) (int64, error) {
	tx := st.DB().Model(&models.MutationQueueItem{}).
		Where("entity = ? AND status = ?", entity, models.MutationFailed).
		Updates(map[string]interface{}{"status": models.MutationPending, "last_error": ""})
	if tx.Error != nil {
		return 0, fmt.Errorf("outbox: retry failed for %s: %w", entity, tx.Error)
	}
	return tx.RowsAffected, nil
}

// CountPending returns the number of pending items, optionally per entity
// (empty entity counts all).
func CountPending(st *store.Store, entity string) (int64, error) {
	return countByStatus(st, entity, models.MutationPending)
}

// CountFailed returns the number of permanently failed items awaiting user
// intervention.
func CountFailed(st *store.Store, entity string) (int64, error) {
	return countByStatus(st, entity, models.MutationFailed)
}

// HasPendingData reports whether any local change still awaits the server:
// queued mutations in any state short of delivery, plus attachment uploads,
// which bypass the queue and track their state on their own table.
func HasPendingData(st *store.Store) (bool, error) {
	for _, status := range []string{models.MutationPending, models.MutationProcessing, models.MutationFailed} {
		n, err := countByStatus(st, "", status)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	n, err := st.Count(&models.ChecklistAttachment{},
		"sync_status IN ?", []string{models.SyncPending, models.SyncUploading, models.SyncFailed})
	if err != nil {
		return false, fmt.Errorf("outbox: count unsynced attachments: %w", err)
	}
	return n > 0, nil
}

func countByStatus(st *store.Store, entity, status string) (int64, error) {
	tx := st.DB().Model(&models.MutationQueueItem{}).Where("status = ?", status)
	if entity != "" {
		tx = tx.Where("entity = ?", entity)
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("outbox: count %s: %w", status, err)
	}
	return n, nil
}

func setStatus(st *store.Store, id uint, status, lastError string) error {
	err := st.Update(&models.MutationQueueItem{}, id, map[string]interface{}{
		"status":     status,
		"last_error": lastError,
	})
	if err != nil {
		return fmt.Errorf("outbox: set status %s on %d: %w", status, id, err)
	}
	return nil
}

func markFailed(st *store.Store, id uint, message string) error {
	err := st.DB().Model(&models.MutationQueueItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.MutationFailed,
			"last_error": message,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
	if err != nil {
		return fmt.Errorf("outbox: mark failed %d: %w", id, err)
	}
	return nil
}
