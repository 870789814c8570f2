package task

import (
	"context"
	"fmt"
	"strings"

	"wabot/internal/storage"
	logx "wabot/pkg/logx"
)

// tick sends the current rotation message for one task.
//
// Ticks for the same task never overlap (SkipIfStillRunning). Session
// liveness is re-checked every tick on purpose: a session reconnecting
// independently of task state just makes the next tick succeed, without
// any event subscription.
func (s *Scheduler) tick(r *runner) {
	ctx := s.tickCtx()
	if ctx.Err() != nil {
		return
	}

	h, ok := s.sessions.Live(r.sessionID)
	st, _ := s.sessions.Status(r.sessionID)
	if !ok || st != storage.SessionConnected {
		s.projectIfActive(ctx, r, "Waiting for session to connect.")
		return
	}

	msg := r.messages[r.index%len(r.messages)]
	if strings.TrimSpace(msg) == "" {
		// Blank entries are skipped but still consume a rotation slot.
		r.index++
		return
	}

	text := msg
	if r.prefix != "" {
		text = r.prefix + ": " + msg
	}

	if err := h.Send(ctx, r.target, text); err != nil {
		// Send failures never stop a task: it stays running and retries
		// the same message on the next tick.
		s.log.Warn("send failed", logx.Int64("task", r.taskID), logx.String("to", r.display), logx.Err(err))
		s.projectIfActive(ctx, r, fmt.Sprintf("Error occurred, continuing task: %v", err))
		return
	}

	s.projectIfActive(ctx, r, fmt.Sprintf("Message sent to %s (%s): %q", r.kind, r.display, text))
	r.index++
}

// projectIfActive writes (running, log) only if the runner is still the
// registered one for its task id. This closes the race where a send
// completing after StopTask would resurrect a stopped task's status: the
// write happens under the registry lock, so a concurrent stop either
// already removed the runner (no write) or removes it after and its
// stopped write lands last.
func (s *Scheduler) projectIfActive(ctx context.Context, r *runner, logMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[r.taskID] != r {
		return
	}
	if err := s.reporter.TaskStatus(ctx, r.taskID, storage.TaskRunning, logMsg); err != nil {
		s.log.Error("failed projecting task status", logx.Int64("task", r.taskID), logx.Err(err))
	}
}

// normalizeTarget appends the type-appropriate domain suffix when missing
// and returns the wire target, a display form (suffix stripped) and the
// kind label used in logs.
func normalizeTarget(target string, tt storage.TargetType) (wire, display, kind string) {
	wire = strings.TrimSpace(target)
	suffix := contactSuffix
	kind = "Contact"
	if tt == storage.TargetGroup {
		suffix = groupSuffix
		kind = "Group"
	}
	if !strings.Contains(wire, suffix) {
		wire += suffix
	}
	display = strings.TrimSuffix(wire, suffix)
	return wire, display, kind
}
