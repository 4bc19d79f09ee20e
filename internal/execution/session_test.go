package execution

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/store"
)

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

func TestStartWork_ThenPause_ThenResume(t *testing.T) {
	st := openTestStore(t)

	work, err := StartWork(st, "tech-1", "wo-1")
	if err != nil {
		t.Fatalf("start work: %v", err)
	}
	if state, _ := StateOf(st, "tech-1", "wo-1"); state != StateWorkActive {
		t.Errorf("state = %q, want WORK_ACTIVE", state)
	}

	pause, err := StartPause(st, "tech-1", "wo-1")
	if err != nil {
		t.Fatalf("start pause: %v", err)
	}
	if state, _ := StateOf(st, "tech-1", "wo-1"); state != StatePauseActive {
		t.Errorf("state = %q, want PAUSE_ACTIVE", state)
	}

	// Starting the pause must have closed the work session.
	var closedWork models.ExecutionSession
	if err := st.FindByID(&closedWork, work.ID); err != nil {
		t.Fatalf("reload work session: %v", err)
	}
	if closedWork.Open() {
		t.Error("work session still open after pause started")
	}

	if _, err := StartWork(st, "tech-1", "wo-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	var closedPause models.ExecutionSession
	if err := st.FindByID(&closedPause, pause.ID); err != nil {
		t.Fatalf("reload pause session: %v", err)
	}
	if closedPause.Open() {
		t.Error("pause session still open after resume")
	}

	n, err := st.Count(&models.ExecutionSession{}, "work_order_id = ? AND ended_at IS NULL", "wo-1")
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if n != 1 {
		t.Errorf("open sessions = %d, want exactly 1", n)
	}
}

func TestStartWork_ClosesCrashLeftovers(t *testing.T) {
	st := openTestStore(t)

	// Two open sessions should never happen, but a crash mid-write can
	// leave stale rows. Seeding them directly simulates that.
	for _, id := range []string{"s-1", "s-2"} {
		session := models.ExecutionSession{
			ID: id, WorkOrderID: "wo-1", SessionType: models.SessionWork,
			StartedAt: time.Now().Add(-time.Hour), TechnicianID: "tech-1",
		}
		if err := st.Insert(&session); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if _, err := StartWork(st, "tech-1", "wo-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	n, _ := st.Count(&models.ExecutionSession{}, "work_order_id = ? AND ended_at IS NULL", "wo-1")
	if n != 1 {
		t.Errorf("open sessions = %d, want 1 after defensive cleanup", n)
	}
}

func TestEndOpen_NoopWhenNothingOpen(t *testing.T) {
	st := openTestStore(t)

	session, err := EndOpen(st, "tech-1", "wo-1")
	if err != nil {
		t.Fatalf("end with nothing open: %v", err)
	}
	if session != nil {
		t.Errorf("session = %+v, want nil", session)
	}
}

func TestEndOpen_ComputesWholeSecondDuration(t *testing.T) {
	st := openTestStore(t)

	started := time.Now().Add(-90 * time.Second)
	seed := models.ExecutionSession{
		ID: "s-1", WorkOrderID: "wo-1", SessionType: models.SessionWork,
		StartedAt: started, TechnicianID: "tech-1",
	}
	if err := st.Insert(&seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	session, err := EndOpen(st, "tech-1", "wo-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if session == nil {
		t.Fatal("expected the open session back")
	}
	if session.DurationSeconds < 90 || session.DurationSeconds > 92 {
		t.Errorf("DurationSeconds = %d, want ~90", session.DurationSeconds)
	}
}

func TestSummarize(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()

	closedAt := now.Add(-10 * time.Minute)
	closed := []models.ExecutionSession{
		{ID: "w1", WorkOrderID: "wo-1", SessionType: models.SessionWork, TechnicianID: "tech-1",
			StartedAt: now.Add(-30 * time.Minute), EndedAt: &closedAt, DurationSeconds: 1200},
		{ID: "p1", WorkOrderID: "wo-1", SessionType: models.SessionPause, TechnicianID: "tech-1",
			StartedAt: now.Add(-40 * time.Minute), EndedAt: &closedAt, DurationSeconds: 300},
	}
	for i := range closed {
		if err := st.Insert(&closed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	open := models.ExecutionSession{
		ID: "w2", WorkOrderID: "wo-1", SessionType: models.SessionWork,
		TechnicianID: "tech-1", StartedAt: now.Add(-60 * time.Second),
	}
	if err := st.Insert(&open); err != nil {
		t.Fatalf("seed open: %v", err)
	}

	sum, err := Summarize(st, "tech-1", "wo-1", now)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Sessions != 3 {
		t.Errorf("Sessions = %d, want 3", sum.Sessions)
	}
	if !sum.Open || sum.OpenType != models.SessionWork {
		t.Errorf("Open = %v/%s, want open WORK", sum.Open, sum.OpenType)
	}
	if sum.WorkSeconds != 1200+60 {
		t.Errorf("WorkSeconds = %d, want 1260 (closed + live elapsed)", sum.WorkSeconds)
	}
	if sum.PauseSeconds != 300 {
		t.Errorf("PauseSeconds = %d, want 300", sum.PauseSeconds)
	}
}

func TestSessions_ScopedToTechnician(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()

	// Another technician's open session on the same work order must stay
	// invisible: it neither shows in the state nor gets closed.
	other := models.ExecutionSession{
		ID: "s-other", WorkOrderID: "wo-1", SessionType: models.SessionWork,
		TechnicianID: "tech-2", StartedAt: now.Add(-time.Hour),
	}
	if err := st.Insert(&other); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if state, err := StateOf(st, "tech-1", "wo-1"); err != nil || state != StateNone {
		t.Errorf("StateOf = %q, %v, want NO_SESSION", state, err)
	}
	if session, err := EndOpen(st, "tech-1", "wo-1"); err != nil || session != nil {
		t.Errorf("EndOpen = %+v, %v, want nil", session, err)
	}
	sum, err := Summarize(st, "tech-1", "wo-1", now)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0", sum.Sessions)
	}

	var reloaded models.ExecutionSession
	if err := st.FindByID(&reloaded, "s-other"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Open() {
		t.Error("other technician's session was closed")
	}
}
