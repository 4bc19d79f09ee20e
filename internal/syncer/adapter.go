// Package syncer drives the per-entity delta-pull/delta-push cycle: cursor
// pulls from the server into the local store, outbox drains back to the
// server, and the sync_meta bookkeeping in between. Each entity type plugs
// in through an Adapter.
package syncer

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/store"
)

// Adapter is the per-entity sync strategy: endpoints, scope, cursoring and
// the two transform directions.
type Adapter interface {
	// Name is the entity key used in sync_meta and the mutation outbox.
	Name() string
	// Endpoint is the pull URL. Empty means the entity is push-only.
	Endpoint() string
	// MutationEndpoint is the push URL.
	MutationEndpoint() string
	// CursorField names the server field the pull cursor advances on.
	CursorField() string
	// ScopeParams returns the tenant/window query params for a pull.
	ScopeParams(cfg *config.Config, now time.Time) url.Values
	// FromServer decodes one server record into a local row ready to
	// upsert, and extracts its cursor value.
	FromServer(raw json.RawMessage) (record interface{}, cursor string, err error)
	// ToServer shapes one queued mutation's payload for the wire. Only
	// client-mutable fields survive; server-owned fields never travel.
	ToServer(item models.MutationQueueItem) (json.RawMessage, error)
}

// BatchSaver is an optional Adapter extension that fully owns persistence
// of a pulled batch, including relational children, inside one transaction.
type BatchSaver interface {
	SaveBatch(tx *store.Store, records []interface{}) error
}

// Reconciler is an optional Adapter extension invoked after the server
// accepts a pushed mutation, e.g. to swap a client-generated id for the
// server-assigned one.
type Reconciler interface {
	MarkSynced(st *store.Store, item models.MutationQueueItem, result api.PushResult) error
}

// Pusher is an optional Adapter extension that replaces the outbox drain
// with a custom push cycle. Attachments use it: their table is its own
// upload queue.
type Pusher interface {
	Push(ctx context.Context, e *Engine) (pushed, failed int, err error)
}

// Registry holds the adapters in their sync order.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds the default registry: work orders first (checklists
// reference them), then instances, answers, attachments.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(&workOrderAdapter{})
	r.Register(&checklistInstanceAdapter{})
	r.Register(&checklistAnswerAdapter{})
	r.Register(&attachmentAdapter{})
	return r
}

// Register adds an adapter at the end of the sync order.
func (r *Registry) Register(ad Adapter) {
	r.adapters[ad.Name()] = ad
	r.order = append(r.order, ad.Name())
}

// Get returns the adapter for an entity name, or nil.
func (r *Registry) Get(name string) Adapter { return r.adapters[name] }

// Names returns the entity names in sync order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }
