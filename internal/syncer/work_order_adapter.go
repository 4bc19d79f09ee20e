package syncer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zulandar/fieldsync/internal/api"
	"github.com/zulandar/fieldsync/internal/config"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/repo"
	"github.com/zulandar/fieldsync/internal/store"
)

// workOrderAdapter syncs the technician's scheduling window. The scope is
// date-bounded so a long-lived install never accumulates the whole backlog.
type workOrderAdapter struct{}

func (workOrderAdapter) Name() string             { return repo.EntityWorkOrders }
func (workOrderAdapter) Endpoint() string         { return "/api/sync/work_orders" }
func (workOrderAdapter) MutationEndpoint() string { return "/api/sync/work_orders" }
func (workOrderAdapter) CursorField() string      { return "updatedAt" }

func (workOrderAdapter) ScopeParams(cfg *config.Config, now time.Time) url.Values {
	v := url.Values{}
	v.Set("technician_id", cfg.TechnicianID)
	v.Set("date_from", now.AddDate(0, 0, -cfg.WorkOrders.DaysBack).Format("2006-01-02"))
	v.Set("date_to", now.AddDate(0, 0, cfg.WorkOrders.DaysForward).Format("2006-01-02"))
	return v
}

type workOrderWire struct {
	ID             string `json:"id"`
	ClientID       string `json:"clientId"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	ScheduledDate  string `json:"scheduledDate"`
	WindowStart    string `json:"windowStart"`
	WindowEnd      string `json:"windowEnd"`
	ExecutionStart string `json:"executionStart"`
	ExecutionEnd   string `json:"executionEnd"`
	TechnicianID   string `json:"technicianId"`
	IsActive       *bool  `json:"isActive"`
	UpdatedAt      string `json:"updatedAt"`
}

func (workOrderAdapter) FromServer(raw json.RawMessage) (interface{}, string, error) {
	var w workOrderWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, "", fmt.Errorf("work order: %w", err)
	}
	if w.ID == "" {
		return nil, "", fmt.Errorf("work order record without id")
	}
	syncedAt := time.Now().UTC()
	wo := &models.WorkOrder{
		ID:           w.ID,
		ClientID:     w.ClientID,
		Title:        w.Title,
		Description:  w.Description,
		Status:       w.Status,
		WindowStart:  w.WindowStart,
		WindowEnd:    w.WindowEnd,
		TechnicianID: w.TechnicianID,
		IsActive:     w.IsActive == nil || *w.IsActive,
		SyncedAt:     &syncedAt,
	}
	wo.ScheduledDate = parseWireTime(w.ScheduledDate)
	wo.ExecutionStart = parseWireTime(w.ExecutionStart)
	wo.ExecutionEnd = parseWireTime(w.ExecutionEnd)
	return wo, w.UpdatedAt, nil
}

func (workOrderAdapter) ToServer(item models.MutationQueueItem) (json.RawMessage, error) {
	return json.RawMessage(item.Payload), nil
}

func (workOrderAdapter) MarkSynced(st *store.Store, item models.MutationQueueItem, _ api.PushResult) error {
	return repo.MarkWorkOrderSynced(st, item.EntityID, time.Now().UTC())
}

// parseWireTime accepts RFC3339 with or without fractional seconds; empty
// strings stay nil.
func parseWireTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
