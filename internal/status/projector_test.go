package status

import (
	"context"
	"errors"
	"strings"
	"testing"

	"wabot/internal/eventbus"
	"wabot/internal/notifier"
	"wabot/internal/storage"
	logx "wabot/pkg/logx"
)

type recordingStore struct {
	storage.Store // panics on everything not overridden

	err         error
	sessionID   int64
	sessionSt   storage.SessionStatus
	sessionLog  string
	taskID      int64
	taskSt      storage.TaskStatus
	taskLog     string
	updateCalls int
}

func (r *recordingStore) UpdateSessionStatus(ctx context.Context, id int64, st storage.SessionStatus, log string) error {
	r.updateCalls++
	if r.err != nil {
		return r.err
	}
	r.sessionID, r.sessionSt, r.sessionLog = id, st, log
	return nil
}

func (r *recordingStore) UpdateTaskStatus(ctx context.Context, id int64, st storage.TaskStatus, log string) error {
	r.updateCalls++
	if r.err != nil {
		return r.err
	}
	r.taskID, r.taskSt, r.taskLog = id, st, log
	return nil
}

type recordingPublisher struct {
	events []notifier.Event
}

func (r *recordingPublisher) Publish(e notifier.Event) {
	r.events = append(r.events, e)
}

func (r *recordingPublisher) byKind(kind string) []notifier.Event {
	var out []notifier.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestSessionStatusWriteAndFanout(t *testing.T) {
	st := &recordingStore{}
	pub := &recordingPublisher{}
	p := New(st, pub, logx.Nop())

	if err := p.SessionStatus(context.Background(), 7, storage.SessionConnected, "Connected as A (1)"); err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if st.sessionID != 7 || st.sessionSt != storage.SessionConnected || st.sessionLog != "Connected as A (1)" {
		t.Fatalf("store write = %d %s %q", st.sessionID, st.sessionSt, st.sessionLog)
	}

	logs := pub.byKind(eventbus.KindLog)
	if len(logs) != 1 || !strings.Contains(logs[0].Message, "session 7:") {
		t.Fatalf("log events = %+v", logs)
	}
	updates := pub.byKind(eventbus.KindStatusUpdate)
	if len(updates) != 1 {
		t.Fatalf("status updates = %+v", updates)
	}
	u := updates[0]
	if u.Entity != notifier.EntitySession || u.EntityID != 7 || u.Status != "connected" {
		t.Fatalf("status update = %+v", u)
	}
}

func TestSessionLevels(t *testing.T) {
	tests := []struct {
		st   storage.SessionStatus
		want notifier.Level
	}{
		{storage.SessionConnected, notifier.LevelInfo},
		{storage.SessionDisconnected, notifier.LevelError},
		{storage.SessionConnecting, notifier.LevelWarning},
		{storage.SessionLoggedOut, notifier.LevelWarning},
	}
	for _, tt := range tests {
		pub := &recordingPublisher{}
		p := New(&recordingStore{}, pub, logx.Nop())
		if err := p.SessionStatus(context.Background(), 1, tt.st, "x"); err != nil {
			t.Fatalf("SessionStatus(%s): %v", tt.st, err)
		}
		for _, e := range pub.events {
			if e.Level != tt.want {
				t.Fatalf("%s: level = %s, want %s", tt.st, e.Level, tt.want)
			}
		}
	}
}

func TestTaskLevels(t *testing.T) {
	tests := []struct {
		st   storage.TaskStatus
		want notifier.Level
	}{
		{storage.TaskRunning, notifier.LevelInfo},
		{storage.TaskStopped, notifier.LevelWarning},
	}
	for _, tt := range tests {
		pub := &recordingPublisher{}
		p := New(&recordingStore{}, pub, logx.Nop())
		if err := p.TaskStatus(context.Background(), 1, tt.st, "x"); err != nil {
			t.Fatalf("TaskStatus(%s): %v", tt.st, err)
		}
		for _, e := range pub.events {
			if e.Level != tt.want {
				t.Fatalf("%s: level = %s, want %s", tt.st, e.Level, tt.want)
			}
		}
	}
}

func TestEmptyLogSkipsLogEvent(t *testing.T) {
	pub := &recordingPublisher{}
	p := New(&recordingStore{}, pub, logx.Nop())

	if err := p.SessionStatus(context.Background(), 1, storage.SessionConnecting, ""); err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if got := pub.byKind(eventbus.KindLog); len(got) != 0 {
		t.Fatalf("expected no log event for empty message, got %+v", got)
	}
	if got := pub.byKind(eventbus.KindStatusUpdate); len(got) != 1 {
		t.Fatalf("expected one status update, got %+v", got)
	}
}

func TestStoreErrorPropagatesAndSkipsFanout(t *testing.T) {
	boom := errors.New("db locked")
	st := &recordingStore{err: boom}
	pub := &recordingPublisher{}
	p := New(st, pub, logx.Nop())

	if err := p.TaskStatus(context.Background(), 3, storage.TaskRunning, "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if len(pub.events) != 0 {
		t.Fatalf("events published despite store failure: %+v", pub.events)
	}
}

func TestNilPublisher(t *testing.T) {
	p := New(&recordingStore{}, nil, logx.Nop())
	if err := p.SessionStatus(context.Background(), 1, storage.SessionConnected, "ok"); err != nil {
		t.Fatalf("SessionStatus with nil publisher: %v", err)
	}
}
