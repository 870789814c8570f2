// Package session owns the registry of live transport handles and drives
// the per-session status state machine.
//
// The registry is the sole source of truth for "is this session currently
// live"; store rows only record the last projected status. At most one
// handle exists per session id: Start inserts a placeholder under the lock
// before connecting, so concurrent starts for the same id wait on the same
// attempt instead of opening a second transport.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wabot/internal/creds"
	rtsup "wabot/internal/runtime/supervisor"
	"wabot/internal/status"
	"wabot/internal/storage"
	"wabot/internal/transport"
	logx "wabot/pkg/logx"
)

// TaskStopper is implemented by the task scheduler; it stops every running
// task bound to a session (the logged-out cascade).
type TaskStopper interface {
	StopForSession(ctx context.Context, sessionID int64)
}

// eventBuffer sizes the per-session transport event channel. Providers
// must never be blocked for long; the pump drains continuously.
const eventBuffer = 16

type Manager struct {
	store    storage.Store
	creds    *creds.Dir
	provider transport.Provider
	reporter status.Reporter
	log      logx.Logger
	sup      *rtsup.Supervisor

	connectTimeout time.Duration

	mu   sync.Mutex
	live map[int64]*active

	// tasks is set after construction (the scheduler depends on this
	// manager, so the cycle is broken with an interface).
	tasksMu sync.Mutex
	tasks   TaskStopper
}

// active is one registry entry. It is inserted as a placeholder before the
// transport connect; ready is closed once handle is set (or the entry was
// removed again on failure, leaving handle nil).
type active struct {
	ready  chan struct{}
	handle transport.Handle
	events chan transport.Event
	status storage.SessionStatus // guarded by Manager.mu
}

type Options struct {
	Store          storage.Store
	Creds          *creds.Dir
	Provider       transport.Provider
	Reporter       status.Reporter
	Supervisor     *rtsup.Supervisor
	Log            logx.Logger
	ConnectTimeout time.Duration
}

func NewManager(opts Options) *Manager {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	ct := opts.ConnectTimeout
	if ct <= 0 {
		ct = 60 * time.Second
	}
	return &Manager{
		store:          opts.Store,
		creds:          opts.Creds,
		provider:       opts.Provider,
		reporter:       opts.Reporter,
		sup:            opts.Supervisor,
		log:            log,
		connectTimeout: ct,
		live:           map[int64]*active{},
	}
}

// SetTaskStopper wires the cascade-stop callback. Must be called before any
// transport event can arrive (i.e. before Start/InitializeRunning).
func (m *Manager) SetTaskStopper(ts TaskStopper) {
	m.tasksMu.Lock()
	m.tasks = ts
	m.tasksMu.Unlock()
}

// Start ensures the session has a live handle and returns it.
//
// Idempotent: an already-live session returns its existing handle, and
// concurrent starts for the same id share one connect attempt. A session
// that cannot be started (missing credentials, connect failure) ends up in
// logged_out/disconnected with the reason projected, and Start returns
// (nil, nil) — only store failures surface as errors.
func (m *Manager) Start(ctx context.Context, id int64) (transport.Handle, error) {
	m.mu.Lock()
	if a, ok := m.live[id]; ok {
		m.mu.Unlock()
		select {
		case <-a.ready:
			return a.handle, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a := &active{ready: make(chan struct{}), status: storage.SessionConnecting}
	m.live[id] = a
	m.mu.Unlock()

	h, err := m.connect(ctx, id, a)
	if h == nil {
		// Failed attempt: remove the placeholder so a later Start can retry.
		m.mu.Lock()
		if m.live[id] == a {
			delete(m.live, id)
		}
		m.mu.Unlock()
	}
	close(a.ready)
	return h, err
}

func (m *Manager) connect(ctx context.Context, id int64, a *active) (transport.Handle, error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return nil, fmt.Errorf("load session %d: %w", id, err)
	}

	if !m.creds.Exists(id) {
		if err := m.reporter.SessionStatus(ctx, id, storage.SessionLoggedOut, "Credential bundle missing."); err != nil {
			return nil, err
		}
		return nil, nil
	}

	bundle, err := m.creds.Load(id)
	if err != nil {
		if rerr := m.reporter.SessionStatus(ctx, id, storage.SessionDisconnected, fmt.Sprintf("Failed to read credentials: %v", err)); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}

	if err := m.reporter.SessionStatus(ctx, id, storage.SessionConnecting, ""); err != nil {
		return nil, err
	}

	events := make(chan transport.Event, eventBuffer)
	cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	h, err := m.provider.Connect(cctx, transport.Credentials(bundle), events)
	cancel()
	if err != nil {
		if rerr := m.reporter.SessionStatus(ctx, id, storage.SessionDisconnected, fmt.Sprintf("Failed to start session: %v", err)); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}

	m.mu.Lock()
	a.handle = h
	a.events = events
	m.mu.Unlock()

	m.sup.Go0(fmt.Sprintf("session.%d.events", id), func(c context.Context) {
		m.pump(c, id, a)
	})

	m.log.Info("session started", logx.Int64("session", id))
	return h, nil
}

// Live returns the session's handle if one is registered and connected to
// the transport (i.e. the connect attempt finished successfully).
func (m *Manager) Live(id int64) (transport.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[id]
	if !ok || a.handle == nil {
		return nil, false
	}
	return a.handle, true
}

// Status returns the in-memory status of a live session. ok is false when
// the session has no registry entry (its last projected status lives only
// in the store).
func (m *Manager) Status(id int64) (storage.SessionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.live[id]
	if !ok {
		return "", false
	}
	return a.status, true
}

// Logout is the operator-initiated teardown: close the handle, delete the
// credential bundle, mark the row logged_out, cascade-stop tasks.
func (m *Manager) Logout(ctx context.Context, id int64) error {
	m.mu.Lock()
	a := m.live[id]
	if a != nil {
		delete(m.live, id)
	}
	m.mu.Unlock()

	if a != nil && a.handle != nil {
		_ = a.handle.Close()
	}
	if err := m.creds.Delete(id); err != nil {
		m.log.Warn("failed deleting credentials", logx.Int64("session", id), logx.Err(err))
	}
	if err := m.reporter.SessionStatus(ctx, id, storage.SessionLoggedOut, "Logged out by user."); err != nil {
		return err
	}
	m.stopTasks(ctx, id)
	return nil
}

// pump consumes one session's transport events in order. It exits on the
// final Closed event or on shutdown.
func (m *Manager) pump(ctx context.Context, id int64, a *active) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.events:
			if !ok {
				return
			}
			if done := m.dispatch(ctx, id, a, ev); done {
				return
			}
		}
	}
}

// dispatch applies one transport event to the session state machine.
// Returns true when the session is finished (Closed observed).
func (m *Manager) dispatch(ctx context.Context, id int64, a *active, ev transport.Event) bool {
	switch e := ev.(type) {
	case transport.Opened:
		name, number := e.Name, e.Number
		if name == "" && a.handle != nil {
			name, number = a.handle.Identity()
		}
		m.setStatus(a, storage.SessionConnected)
		m.project(ctx, id, storage.SessionConnected, fmt.Sprintf("Connected as %s (%s)", name, number))
		return false

	case transport.CredentialsChanged:
		if err := m.creds.Save(id, e.Data); err != nil {
			m.log.Error("failed persisting rotated credentials", logx.Int64("session", id), logx.Err(err))
		}
		return false

	case transport.Closed:
		// If another teardown path (Logout) already removed this entry,
		// it owns the status writes; just stop pumping.
		if !m.deregister(id, a) {
			return true
		}
		if e.Reason == transport.ReasonLoggedOut {
			if err := m.creds.Delete(id); err != nil {
				m.log.Warn("failed deleting credentials", logx.Int64("session", id), logx.Err(err))
			}
			m.project(ctx, id, storage.SessionLoggedOut, "Logged out from device.")
			m.stopTasks(ctx, id)
		} else {
			msg := "Connection closed."
			if e.Err != nil {
				msg = fmt.Sprintf("Connection closed: %v", e.Err)
			}
			// No automatic reconnect: the session stays disconnected until
			// an external actor starts it again.
			m.project(ctx, id, storage.SessionDisconnected, msg)
		}
		return true

	default:
		m.log.Warn("unknown transport event", logx.Int64("session", id), logx.Any("event", ev))
		return false
	}
}

func (m *Manager) setStatus(a *active, st storage.SessionStatus) {
	m.mu.Lock()
	a.status = st
	m.mu.Unlock()
}

// deregister removes the entry if it is still the current one for id.
func (m *Manager) deregister(id int64, a *active) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[id] == a {
		delete(m.live, id)
		return true
	}
	return false
}

// project writes a transition from the event pump, where there is no caller
// to propagate a store failure to; it is logged instead.
func (m *Manager) project(ctx context.Context, id int64, st storage.SessionStatus, logMsg string) {
	if err := m.reporter.SessionStatus(ctx, id, st, logMsg); err != nil {
		m.log.Error("failed projecting session status", logx.Int64("session", id), logx.String("status", string(st)), logx.Err(err))
	}
}

func (m *Manager) stopTasks(ctx context.Context, id int64) {
	m.tasksMu.Lock()
	ts := m.tasks
	m.tasksMu.Unlock()
	if ts != nil {
		ts.StopForSession(ctx, id)
	}
}
