// Package task schedules recurring send jobs ("tasks") bound to sessions.
//
// The registry of active cron entries, keyed by task id, is the sole source
// of truth for "is this task running"; store rows carry the last projected
// status and are reconciled on process start via InitializeRunning.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"wabot/internal/status"
	"wabot/internal/storage"
	logx "wabot/pkg/logx"
)

type Scheduler struct {
	store    storage.Store
	sessions Sessions
	reporter status.Reporter
	log      logx.Logger

	c     *cron.Cron
	chain cron.Chain

	mu      sync.Mutex
	running map[int64]*runner
	baseCtx context.Context
}

func NewScheduler(store storage.Store, sessions Sessions, reporter status.Reporter, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	cl := cronLogger{log: log.With(logx.String("comp", "cron"))}
	s := &Scheduler{
		store:    store,
		sessions: sessions,
		reporter: reporter,
		log:      log,
		running:  map[int64]*runner{},
		baseCtx:  context.Background(),
	}
	s.c = cron.New(cron.WithLogger(cl))
	// Recover isolates a panicking tick to its own task; SkipIfStillRunning
	// guarantees at most one in-flight tick per entry.
	s.chain = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))
	return s
}

// Run starts the timer wheel. Ticks inherit ctx, so canceling it aborts
// in-flight sends on shutdown.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if ctx != nil {
		s.baseCtx = ctx
	}
	s.mu.Unlock()
	s.c.Start()
}

// Shutdown stops the timer wheel and waits for in-flight ticks, bounded by
// ctx. Registry entries are left in place: on a restart the store rows
// (still "running") drive recovery.
func (s *Scheduler) Shutdown(ctx context.Context) {
	stopped := s.c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// Active reports whether a timer is currently registered for the task.
func (s *Scheduler) Active(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *Scheduler) tickCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
