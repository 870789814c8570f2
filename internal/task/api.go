package task

import (
	"context"
	"fmt"
	"strings"

	"wabot/internal/storage"
	logx "wabot/pkg/logx"
)

// StartTask loads the task row, ensures its session is started, and
// registers the periodic timer.
//
// Idempotent: a task with a registered timer is a no-op. Invalid
// configuration and an unstartable session end in status "stopped" with an
// explanatory log, not an error; only store failures surface as errors.
func (s *Scheduler) StartTask(ctx context.Context, id int64) error {
	s.mu.Lock()
	if _, ok := s.running[id]; ok {
		s.mu.Unlock()
		return nil
	}
	// Placeholder reserves the id so concurrent starts don't race the
	// blocking load/connect below.
	r := &runner{taskID: id}
	s.running[id] = r
	s.mu.Unlock()

	ok, err := s.prepare(ctx, id, r)
	if !ok {
		s.mu.Lock()
		if s.running[id] == r {
			delete(s.running, id)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// prepare does the fallible part of StartTask. Returns ok=false when the
// placeholder must be removed again (invalid config, session not started,
// store failure).
func (s *Scheduler) prepare(ctx context.Context, id int64, r *runner) (bool, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load task %d: %w", id, err)
	}

	if len(t.Messages) == 0 || strings.TrimSpace(t.Target) == "" {
		if err := s.reporter.TaskStatus(ctx, id, storage.TaskStopped, "No target or messages configured."); err != nil {
			return false, err
		}
		return false, nil
	}
	if t.IntervalSeconds <= 0 {
		if err := s.reporter.TaskStatus(ctx, id, storage.TaskStopped, "Invalid task configuration."); err != nil {
			return false, err
		}
		return false, nil
	}

	h, err := s.sessions.Start(ctx, t.SessionID)
	if err != nil {
		return false, err
	}
	if h == nil {
		if err := s.reporter.TaskStatus(ctx, id, storage.TaskStopped, "Associated session is invalid."); err != nil {
			return false, err
		}
		return false, nil
	}

	r.sessionID = t.SessionID
	r.target, r.display, r.kind = normalizeTarget(t.Target, t.TargetType)
	r.messages = t.Messages
	r.prefix = strings.TrimSpace(t.PrefixName)

	spec := fmt.Sprintf("@every %ds", t.IntervalSeconds)
	entryID, err := s.c.AddJob(spec, s.chain.Then(jobFunc(func() { s.tick(r) })))
	if err != nil {
		// Should not happen for a positive interval; surface as stopped
		// rather than leaving a half-started task.
		if rerr := s.reporter.TaskStatus(ctx, id, storage.TaskStopped, fmt.Sprintf("Invalid schedule: %v", err)); rerr != nil {
			return false, rerr
		}
		return false, nil
	}

	// The running projection happens under the registry lock, after the
	// registry commit. A concurrent StopTask either removed the placeholder
	// already (we never write running) or is blocked on the lock and writes
	// stopped after us; the stop's row write always lands last.
	s.mu.Lock()
	if s.running[id] != r {
		s.mu.Unlock()
		s.c.Remove(entryID)
		return true, nil
	}
	r.entryID = entryID
	if err := s.reporter.TaskStatus(ctx, id, storage.TaskRunning, "Task started."); err != nil {
		delete(s.running, id)
		s.mu.Unlock()
		s.c.Remove(entryID)
		return false, err
	}
	s.mu.Unlock()

	s.log.Info("task started", logx.Int64("task", id), logx.Int64("session", t.SessionID), logx.Int("interval_s", t.IntervalSeconds))
	return true, nil
}

// StopTask cancels the task's timer and marks the row stopped.
// Stopping a non-running task still updates the row (idempotent).
func (s *Scheduler) StopTask(ctx context.Context, id int64) error {
	return s.stop(ctx, id, "Task stopped by user.")
}

func (s *Scheduler) stop(ctx context.Context, id int64, logMsg string) error {
	s.mu.Lock()
	r, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	s.mu.Unlock()

	if ok && r.entryID != 0 {
		s.c.Remove(r.entryID)
	}
	if err := s.reporter.TaskStatus(ctx, id, storage.TaskStopped, logMsg); err != nil {
		return err
	}
	if ok {
		s.log.Info("task stopped", logx.Int64("task", id))
	}
	return nil
}

// StopForSession stops every running task bound to the session — the
// cascade triggered when a session's credentials are invalidated.
// Per-task failures are logged and do not abort the cascade.
func (s *Scheduler) StopForSession(ctx context.Context, sessionID int64) {
	ids := map[int64]struct{}{}

	// The registry knows its runners' sessions even if a row update raced.
	s.mu.Lock()
	for id, r := range s.running {
		if r.sessionID == sessionID {
			ids[id] = struct{}{}
		}
	}
	s.mu.Unlock()

	rows, err := s.store.ListTasks(ctx, storage.TaskFilter{SessionID: sessionID, Status: storage.TaskRunning})
	if err != nil {
		s.log.Error("failed listing tasks for cascade stop", logx.Int64("session", sessionID), logx.Err(err))
	}
	for _, t := range rows {
		ids[t.ID] = struct{}{}
	}

	for id := range ids {
		if err := s.stop(ctx, id, "Associated session logged out."); err != nil {
			s.log.Error("failed stopping task", logx.Int64("task", id), logx.Err(err))
		}
	}
}

// InitializeRunning restarts every task the store still marks "running" —
// the sole recovery path after a process restart. Per-task failures are
// isolated.
func (s *Scheduler) InitializeRunning(ctx context.Context) error {
	rows, err := s.store.ListTasks(ctx, storage.TaskFilter{Status: storage.TaskRunning})
	if err != nil {
		return fmt.Errorf("list running tasks: %w", err)
	}

	s.log.Info("initializing tasks marked running from previous process", logx.Int("count", len(rows)))
	for _, t := range rows {
		if err := s.StartTask(ctx, t.ID); err != nil {
			s.log.Error("failed restarting task", logx.Int64("task", t.ID), logx.Err(err))
		}
	}
	return nil
}

// jobFunc adapts a closure to cron.Job.
type jobFunc func()

func (f jobFunc) Run() { f() }
