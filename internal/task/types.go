package task

import (
	"context"

	"github.com/robfig/cron/v3"

	"wabot/internal/storage"
	"wabot/internal/transport"
)

// Sessions is the session-manager surface the scheduler needs: ensure a
// session is started when a task starts, and re-check liveness on each tick.
type Sessions interface {
	Start(ctx context.Context, id int64) (transport.Handle, error)
	Live(id int64) (transport.Handle, bool)
	Status(id int64) (storage.SessionStatus, bool)
}

// runner is one active task: a cron entry plus the in-memory send state.
//
// index is only touched from tick, and ticks for one task are serialized by
// the SkipIfStillRunning chain, so it needs no lock. It resets to 0 on
// every (re)start of the task; rotation position deliberately does not
// survive restarts.
type runner struct {
	taskID    int64
	sessionID int64
	entryID   cron.EntryID

	target  string // normalized (suffix included)
	display string // suffix stripped, for logs
	kind    string // "Contact" or "Group"

	messages []string
	prefix   string

	index int
}

// Address domain suffixes appended to bare targets.
const (
	contactSuffix = "@c.us"
	groupSuffix   = "@g.us"
)
