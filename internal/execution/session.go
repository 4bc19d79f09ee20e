// Package execution tracks work/pause timers for a work order as a small
// state machine over durable session rows, and aggregates them into time
// summaries. Every read is scoped to the owning technician.
package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/store"
)

// State is the tracker state derived from the open session, if any.
type State string

const (
	StateNone        State = "NO_SESSION"
	StateWorkActive  State = "WORK_ACTIVE"
	StatePauseActive State = "PAUSE_ACTIVE"
)

// StartWork opens a WORK session for the work order. Any session still open
// for that work order is ended first; a crash can leave one behind, so this
// cleanup runs unconditionally.
func StartWork(st *store.Store, technicianID, workOrderID string) (*models.ExecutionSession, error) {
	return startSession(st, technicianID, workOrderID, models.SessionWork)
}

// StartPause opens a PAUSE session, ending whatever is open first.
func StartPause(st *store.Store, technicianID, workOrderID string) (*models.ExecutionSession, error) {
	return startSession(st, technicianID, workOrderID, models.SessionPause)
}

func startSession(st *store.Store, technicianID, workOrderID, sessionType string) (*models.ExecutionSession, error) {
	if workOrderID == "" {
		return nil, fmt.Errorf("execution: work order id is required")
	}

	now := time.Now()
	session := models.ExecutionSession{
		ID:           uuid.NewString(),
		WorkOrderID:  workOrderID,
		SessionType:  sessionType,
		StartedAt:    now,
		TechnicianID: technicianID,
	}

	err := st.Transaction(func(tx *store.Store) error {
		if err := closeOpenSessions(tx, technicianID, workOrderID, now); err != nil {
			return err
		}
		return tx.Insert(&session)
	})
	if err != nil {
		return nil, fmt.Errorf("execution: start %s session: %w", sessionType, err)
	}
	return &session, nil
}

// EndOpen closes the work order's open session and returns it with its
// duration filled in. Ending when nothing is open is not an error; it
// returns nil.
func EndOpen(st *store.Store, technicianID, workOrderID string) (*models.ExecutionSession, error) {
	open, err := openSession(st, technicianID, workOrderID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, nil
	}

	now := time.Now()
	duration := int64(now.Sub(open.StartedAt).Seconds())
	err = st.Update(&models.ExecutionSession{}, open.ID, map[string]interface{}{
		"ended_at":         now,
		"duration_seconds": duration,
	})
	if err != nil {
		return nil, fmt.Errorf("execution: end session %s: %w", open.ID, err)
	}
	open.EndedAt = &now
	open.DurationSeconds = duration
	return open, nil
}

// StateOf derives the tracker state from the open session.
func StateOf(st *store.Store, technicianID, workOrderID string) (State, error) {
	open, err := openSession(st, technicianID, workOrderID)
	if err != nil {
		return StateNone, err
	}
	switch {
	case open == nil:
		return StateNone, nil
	case open.SessionType == models.SessionPause:
		return StatePauseActive, nil
	default:
		return StateWorkActive, nil
	}
}

// Summary aggregates a work order's sessions. When a session is open its
// elapsed time counts toward the matching total.
type Summary struct {
	WorkSeconds  int64
	PauseSeconds int64
	Sessions     int
	Open         bool
	OpenType     string
}

// Summarize computes the time summary as of now.
func Summarize(st *store.Store, technicianID, workOrderID string, now time.Time) (*Summary, error) {
	var sessions []models.ExecutionSession
	err := st.FindAll(&sessions, "work_order_id = ? AND technician_id = ?", workOrderID, technicianID)
	if err != nil {
		return nil, fmt.Errorf("execution: load sessions: %w", err)
	}

	sum := Summary{Sessions: len(sessions)}
	for i := range sessions {
		s := &sessions[i]
		seconds := s.DurationSeconds
		if s.Open() {
			sum.Open = true
			sum.OpenType = s.SessionType
			seconds = int64(now.Sub(s.StartedAt).Seconds())
		}
		if s.SessionType == models.SessionPause {
			sum.PauseSeconds += seconds
		} else {
			sum.WorkSeconds += seconds
		}
	}
	return &sum, nil
}

// openSession finds the work order's open session, nil when there is none.
func openSession(st *store.Store, technicianID, workOrderID string) (*models.ExecutionSession, error) {
	var sessions []models.ExecutionSession
	err := st.FindAll(&sessions,
		"work_order_id = ? AND technician_id = ? AND ended_at IS NULL", workOrderID, technicianID)
	if err != nil {
		return nil, fmt.Errorf("execution: find open session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// closeOpenSessions ends every open session for the work order at the given
// instant.
func closeOpenSessions(tx *store.Store, technicianID, workOrderID string, now time.Time) error {
	var open []models.ExecutionSession
	err := tx.FindAll(&open,
		"work_order_id = ? AND technician_id = ? AND ended_at IS NULL", workOrderID, technicianID)
	if err != nil {
		return err
	}
	for i := range open {
		duration := int64(now.Sub(open[i].StartedAt).Seconds())
		err := tx.Update(&models.ExecutionSession{}, open[i].ID, map[string]interface{}{
			"ended_at":         now,
			"duration_seconds": duration,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
