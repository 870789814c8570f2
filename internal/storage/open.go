package storage

import (
	"context"
	"errors"
	"strings"

	logx "wabot/pkg/logx"
)

// Store is the persistence API used by the session manager, task scheduler
// and status projector. All methods return an error on I/O failure; callers
// treat that as fatal for the current operation (no silent retries).
type Store interface {
	CreateSession(ctx context.Context, s Session) (int64, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, ownerID int64) ([]Session, error)
	UpdateSessionStatus(ctx context.Context, id int64, status SessionStatus, log string) error

	CreateTask(ctx context.Context, t Task) (int64, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id int64) error
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status TaskStatus, log string) error

	Close() error
}

// Open initializes the sqlite store at cfg.Path.
//
// Unlike most of the app's services, storage is not optional: session and
// task rows are the restart-recovery source of truth.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
