package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/outbox"
	"github.com/zulandar/fieldsync/internal/repo"
	"github.com/zulandar/fieldsync/internal/store"
)

// Engine runs the pull-then-push cycle per entity. Pull lands first so the
// server's view of a row wins locally before queued mutations replay on top
// of it server-side.
type Engine struct {
	st     *store.Store
	client *api.Client
	probe  api.Probe
	cfg    *config.Config
	reg    *Registry
	log    *zap.Logger
	now    func() time.Time
}

// New wires an engine over the default adapter registry.
func New(st *store.Store, client *api.Client, probe api.Probe, cfg *config.Config, log *zap.Logger) *Engine {
	return &Engine{
		st:     st,
		client: client,
		probe:  probe,
		cfg:    cfg,
		reg:    NewRegistry(),
		log:    log,
		now:    time.Now,
	}
}

// Entities returns the entity names in sync order.
func (e *Engine) Entities() []string { return e.reg.Names() }

// Result summarizes one entity's sync pass.
type Result struct {
	Entity  string
	Offline bool
	Pulled  int
	Pushed  int
	Failed  int
	Cursor  string
	Errors  []string
}

// SyncAll runs every registered entity in order. When the probe reports
// offline, nothing runs and each result carries Offline.
func (e *Engine) SyncAll(ctx context.Context) []Result {
	names := e.reg.Names()
	results := make([]Result, 0, len(names))

	if !e.probe.Online() {
		e.log.Info("sync skipped, offline")
		for _, name := range names {
			results = append(results, Result{Entity: name, Offline: true})
		}
		return results
	}

	for _, name := range names {
		results = append(results, e.SyncEntity(ctx, name))
	}
	return results
}

// SyncEntity runs one entity's pull-then-push pass and records the outcome
// in sync_meta.
func (e *Engine) SyncEntity(ctx context.Context, name string) Result {
	res := Result{Entity: name}

	ad := e.reg.Get(name)
	if ad == nil {
		res.Errors = append(res.Errors, fmt.Sprintf("unknown entity %q", name))
		return res
	}

	if !e.probe.Online() {
		res.Offline = true
		return res
	}

	if err := e.setMetaStatus(name, models.SyncStateSyncing, ""); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	if ad.Endpoint() != "" {
		pulled, cursor, err := e.pull(ctx, ad)
		res.Pulled = pulled
		res.Cursor = cursor
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			e.finishMeta(name, res)
			return res
		}
	}

	pushed, failed, err := e.push(ctx, ad)
	res.Pushed = pushed
	res.Failed = failed
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
	}

	e.finishMeta(name, res)
	return res
}

// pull pages the entity's delta feed from the stored cursor and lands each
// page in one transaction. Returns the count and the highest cursor seen.
func (e *Engine) pull(ctx context.Context, ad Adapter) (int, string, error) {
	meta, err := e.meta(ad.Name())
	if err != nil {
		return 0, "", err
	}
	since := meta.LastCursor
	batch := e.cfg.EntityBatchSize(ad.Name())

	total := 0
	cursor := since
	for {
		params := ad.ScopeParams(e.cfg, e.now())
		params.Set("limit", fmt.Sprintf("%d", batch))

		raws, err := e.client.Pull(ctx, ad.Endpoint(), cursor, params)
		if err != nil {
			return total, cursor, fmt.Errorf("syncer: pull %s: %w", ad.Name(), err)
		}
		if len(raws) == 0 {
			break
		}

		records := make([]interface{}, 0, len(raws))
		pageCursor := cursor
		for _, raw := range raws {
			rec, c, err := ad.FromServer(raw)
			if err != nil {
				return total, cursor, fmt.Errorf("syncer: decode %s record: %w", ad.Name(), err)
			}
			records = append(records, rec)
			if c > pageCursor {
				pageCursor = c
			}
		}

		if err := e.saveBatch(ad, records); err != nil {
			return total, cursor, err
		}
		total += len(records)

		if err := e.saveCursor(ad.Name(), pageCursor); err != nil {
			return total, cursor, err
		}

		// A page that cannot advance the cursor would loop forever.
		if pageCursor == cursor || len(raws) < batch {
			cursor = pageCursor
			break
		}
		cursor = pageCursor
	}
	return total, cursor, nil
}

func (e *Engine) saveBatch(ad Adapter, records []interface{}) error {
	return e.st.Transaction(func(tx *store.Store) error {
		if bs, ok := ad.(BatchSaver); ok {
			return bs.SaveBatch(tx, records)
		}
		for _, rec := range records {
			if err := tx.Upsert(rec); err != nil {
				return fmt.Errorf("syncer: upsert %s record: %w", ad.Name(), err)
			}
		}
		return nil
	})
}

// push drains the entity's queued mutations oldest-first, or defers to the
// adapter's own push cycle when it has one.
func (e *Engine) push(ctx context.Context, ad Adapter) (int, int, error) {
	if p, ok := ad.(Pusher); ok {
		return p.Push(ctx, e)
	}

	dr := outbox.Drain(ctx, e.st, e.log, ad.Name(), func(ctx context.Context, item models.MutationQueueItem) (outbox.Outcome, string, error) {
		data, err := ad.ToServer(item)
		if err != nil {
			return outbox.Rejected, err.Error(), nil
		}
		m := api.Mutation{
			Op:       item.Operation,
			EntityID: item.EntityID,
			LocalID:  payloadLocalID(item.Payload),
			Data:     data,
		}
		results, err := e.client.Push(ctx, ad.MutationEndpoint(), []api.Mutation{m})
		if err != nil {
			var reject *api.RejectError
			if errors.As(err, &reject) {
				return outbox.Rejected, reject.Message, nil
			}
			return outbox.Retry, "", err
		}
		// A 2xx with no per-item verdict is a protocol violation, not a
		// connectivity problem: fail the item, keep draining.
		if len(results) == 0 {
			return outbox.Rejected, "empty push response", nil
		}
		r := results[0]
		switch {
		case r.Skipped:
			return outbox.Skipped, "", nil
		case r.Success:
			if rec, ok := ad.(Reconciler); ok {
				if err := rec.MarkSynced(e.st, item, r); err != nil {
					e.log.Error("reconcile after push", zap.String("entity", ad.Name()), zap.Error(err))
				}
			}
			return outbox.Applied, "", nil
		default:
			return outbox.Rejected, r.Error, nil
		}
	})

	if dr.Stopped {
		return dr.Pushed, dr.Failed, dr.Err
	}
	return dr.Pushed, dr.Failed, nil
}

// EntityStatus is one row of the status summary.
type EntityStatus struct {
	Entity     string
	LastSyncAt *time.Time
	Cursor     string
	State      string
	LastError  string
	Pending    int64
	Failed     int64
}

// Status reports cursor and queue depth for every registered entity.
func (e *Engine) Status() ([]EntityStatus, error) {
	out := make([]EntityStatus, 0, len(e.reg.order))
	for _, name := range e.reg.Names() {
		meta, err := e.meta(name)
		if err != nil {
			return nil, err
		}
		st := EntityStatus{
			Entity:     name,
			LastSyncAt: meta.LastSyncAt,
			Cursor:     meta.LastCursor,
			State:      meta.SyncStatus,
			LastError:  meta.LastError,
		}
		if name == repo.EntityChecklistAttachments {
			st.Pending, err = e.st.Count(&models.ChecklistAttachment{},
				"sync_status = ? AND technician_id = ?", models.SyncPending, e.cfg.TechnicianID)
			if err != nil {
				return nil, err
			}
			st.Failed, err = e.st.Count(&models.ChecklistAttachment{},
				"sync_status = ? AND technician_id = ?", models.SyncFailed, e.cfg.TechnicianID)
			if err != nil {
				return nil, err
			}
		} else {
			st.Pending, err = outbox.CountPending(e.st, name)
			if err != nil {
				return nil, err
			}
			st.Failed, err = outbox.CountFailed(e.st, name)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// RetryFailed requeues an entity's failed work: outbox rows back to pending,
// or failed attachment uploads back to the upload queue.
func (e *Engine) RetryFailed(entity string) (int64, error) {
	if entity == repo.EntityChecklistAttachments {
		return repo.RetryFailedAttachments(e.st, e.cfg.TechnicianID)
	}
	return outbox.RetryFailed(e.st, entity)
}

// payloadLocalID pulls the client idempotency token out of a queued payload,
// when the entity carries one.
func payloadLocalID(payload string) string {
	var probe struct {
		LocalID string `json:"localId"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return ""
	}
	return probe.LocalID
}

func (e *Engine) meta(entity string) (*models.SyncMeta, error) {
	var meta models.SyncMeta
	if err := e.st.FindOne(&meta, "entity = ?", entity); err != nil {
		return nil, fmt.Errorf("syncer: load sync_meta for %s: %w", entity, err)
	}
	return &meta, nil
}

func (e *Engine) setMetaStatus(entity, status, lastError string) error {
	err := e.st.UpdateWhere(&models.SyncMeta{}, map[string]interface{}{
		"sync_status": status,
		"last_error":  lastError,
	}, "entity = ?", entity)
	if err != nil {
		return fmt.Errorf("syncer: update sync_meta for %s: %w", entity, err)
	}
	return nil
}

func (e *Engine) saveCursor(entity, cursor string) error {
	err := e.st.UpdateWhere(&models.SyncMeta{}, map[string]interface{}{
		"last_cursor": cursor,
	}, "entity = ?", entity)
	if err != nil {
		return fmt.Errorf("syncer: save cursor for %s: %w", entity, err)
	}
	return nil
}

func (e *Engine) finishMeta(entity string, res Result) {
	now := e.now()
	updates := map[string]interface{}{
		"last_sync_at": now,
		"sync_status":  models.SyncStateIdle,
		"last_error":   "",
	}
	if len(res.Errors) > 0 {
		updates["sync_status"] = models.SyncStateError
		updates["last_error"] = res.Errors[len(res.Errors)-1]
	}
	if err := e.st.UpdateWhere(&models.SyncMeta{}, updates, "entity = ?", entity); err != nil {
		e.log.Error("finalize sync_meta", zap.String("entity", entity), zap.Error(err))
	}
}
