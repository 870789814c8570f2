package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "wabot/pkg/logx"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "wabot.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSessionRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateSession(ctx, Session{OwnerID: 9, Name: "acct"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := st.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "acct" || got.OwnerID != 9 {
		t.Fatalf("got %+v", got)
	}
	if got.Status != SessionDisconnected {
		t.Fatalf("default status = %s, want disconnected", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not populated")
	}
}

func TestUpdateSessionStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateSession(ctx, Session{Name: "acct"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.UpdateSessionStatus(ctx, id, SessionConnected, "Connected as A (1)"); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}

	got, err := st.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != SessionConnected || got.LastLog != "Connected as A (1)" {
		t.Fatalf("got %s %q", got.Status, got.LastLog)
	}

	if err := st.UpdateSessionStatus(ctx, 9999, SessionConnected, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of missing row = %v, want ErrNotFound", err)
	}
}

func TestListSessionsByOwner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, s := range []Session{
		{OwnerID: 1, Name: "a"},
		{OwnerID: 1, Name: "b"},
		{OwnerID: 2, Name: "c"},
	} {
		if _, err := st.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	mine, err := st.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("owner 1 sessions = %d, want 2", len(mine))
	}
	all, err := st.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions(all): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all sessions = %d, want 3", len(all))
	}
}

func TestTaskRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sid, err := st.CreateSession(ctx, Session{Name: "acct"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	id, err := st.CreateTask(ctx, Task{
		OwnerID:         1,
		SessionID:       sid,
		Name:            "promo",
		Target:          "628123",
		TargetType:      TargetGroup,
		Messages:        []string{"A", "", "B"},
		IntervalSeconds: 30,
		PrefixName:      "Shop",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := st.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.SessionID != sid || got.TargetType != TargetGroup || got.IntervalSeconds != 30 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[0] != "A" || got.Messages[1] != "" {
		t.Fatalf("messages = %v", got.Messages)
	}
	if got.Status != TaskStopped {
		t.Fatalf("default status = %s, want stopped", got.Status)
	}

	got.Name = "promo2"
	got.Messages = []string{"C"}
	if err := st.UpdateTask(ctx, got); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, err = st.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask after update: %v", err)
	}
	if got.Name != "promo2" || len(got.Messages) != 1 || got.Messages[0] != "C" {
		t.Fatalf("after update: %+v", got)
	}

	if err := st.DeleteTask(ctx, id); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := st.GetTask(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := st.DeleteTask(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
}

func TestListTasksFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	s1, _ := st.CreateSession(ctx, Session{OwnerID: 1, Name: "a"})
	s2, _ := st.CreateSession(ctx, Session{OwnerID: 2, Name: "b"})

	mk := func(owner, session int64, status TaskStatus) int64 {
		id, err := st.CreateTask(ctx, Task{
			OwnerID:         owner,
			SessionID:       session,
			Target:          "628",
			Messages:        []string{"m"},
			IntervalSeconds: 10,
			Status:          status,
		})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		return id
	}
	running1 := mk(1, s1, TaskRunning)
	mk(1, s1, TaskStopped)
	mk(2, s2, TaskRunning)

	bySession, err := st.ListTasks(ctx, TaskFilter{SessionID: s1})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(bySession) != 2 {
		t.Fatalf("session filter = %d rows, want 2", len(bySession))
	}

	runningOfS1, err := st.ListTasks(ctx, TaskFilter{SessionID: s1, Status: TaskRunning})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(runningOfS1) != 1 || runningOfS1[0].ID != running1 {
		t.Fatalf("combined filter = %+v", runningOfS1)
	}

	byOwner, err := st.ListTasks(ctx, TaskFilter{OwnerID: 2})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(byOwner) != 1 {
		t.Fatalf("owner filter = %d rows, want 1", len(byOwner))
	}

	allRunning, err := st.ListTasks(ctx, TaskFilter{Status: TaskRunning})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(allRunning) != 2 {
		t.Fatalf("status filter = %d rows, want 2", len(allRunning))
	}
}

func TestGetMissingRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.GetSession(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSession = %v, want ErrNotFound", err)
	}
	if _, err := st.GetTask(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask = %v, want ErrNotFound", err)
	}
}

func TestOpenIsIdempotentOnSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wabot.db")

	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	id, err := st.CreateSession(context.Background(), Session{Name: "acct"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_ = st.Close()

	// Reopening must run migrations without clobbering existing rows.
	st2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer st2.Close()
	if _, err := st2.GetSession(context.Background(), id); err != nil {
		t.Fatalf("row lost across reopen: %v", err)
	}
}
