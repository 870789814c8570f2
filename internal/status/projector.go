// Package status persists session/task status transitions and forwards them
// to observers.
//
// The store write is the transition: it happens first and its error
// propagates, because rows are the restart-recovery source of truth.
// Observer notification is best-effort and can never fail the caller.
package status

import (
	"context"
	"fmt"

	"wabot/internal/eventbus"
	"wabot/internal/notifier"
	"wabot/internal/storage"
	logx "wabot/pkg/logx"
)

// Reporter is the write-through surface the session manager and task
// scheduler use for every transition.
type Reporter interface {
	SessionStatus(ctx context.Context, id int64, st storage.SessionStatus, log string) error
	TaskStatus(ctx context.Context, id int64, st storage.TaskStatus, log string) error
}

// Publisher is the notifier surface the projector needs.
type Publisher interface {
	Publish(e notifier.Event)
}

type Projector struct {
	store storage.Store
	pub   Publisher
	log   logx.Logger
}

func New(store storage.Store, pub Publisher, log logx.Logger) *Projector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Projector{store: store, pub: pub, log: log}
}

func (p *Projector) SessionStatus(ctx context.Context, id int64, st storage.SessionStatus, logMsg string) error {
	if err := p.store.UpdateSessionStatus(ctx, id, st, logMsg); err != nil {
		return fmt.Errorf("update session %d status: %w", id, err)
	}
	p.emit(notifier.EntitySession, id, string(st), logMsg, sessionLevel(st))
	return nil
}

func (p *Projector) TaskStatus(ctx context.Context, id int64, st storage.TaskStatus, logMsg string) error {
	if err := p.store.UpdateTaskStatus(ctx, id, st, logMsg); err != nil {
		return fmt.Errorf("update task %d status: %w", id, err)
	}
	p.emit(notifier.EntityTask, id, string(st), logMsg, taskLevel(st))
	return nil
}

func (p *Projector) emit(entity notifier.EntityKind, id int64, st, logMsg string, lvl notifier.Level) {
	if p.pub == nil {
		return
	}
	if logMsg != "" {
		p.pub.Publish(notifier.Event{
			Kind:    eventbus.KindLog,
			Message: fmt.Sprintf("%s %d: %s", entity, id, logMsg),
			Level:   lvl,
		})
	}
	p.pub.Publish(notifier.Event{
		Kind:     eventbus.KindStatusUpdate,
		Entity:   entity,
		EntityID: id,
		Status:   st,
		Message:  logMsg,
		Level:    lvl,
	})
}

func sessionLevel(st storage.SessionStatus) notifier.Level {
	switch st {
	case storage.SessionConnected:
		return notifier.LevelInfo
	case storage.SessionDisconnected:
		return notifier.LevelError
	default:
		return notifier.LevelWarning
	}
}

func taskLevel(st storage.TaskStatus) notifier.Level {
	if st == storage.TaskRunning {
		return notifier.LevelInfo
	}
	return notifier.LevelWarning
}
