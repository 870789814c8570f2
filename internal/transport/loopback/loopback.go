// Package loopback is an in-process transport driver.
//
// It accepts any non-empty credential bundle, reports a fixed identity and
// logs every send instead of putting it on a wire. It exists so the daemon
// can run end-to-end without a protocol implementation (dry runs, local
// development) and so tests have a registered driver path.
package loopback

import (
	"context"
	"errors"
	"sync"

	"wabot/internal/transport"
	logx "wabot/pkg/logx"
)

const DriverName = "loopback"

func init() {
	transport.Register(DriverName, func(opts transport.Options) (transport.Provider, error) {
		return &provider{log: opts.Log.With(logx.String("driver", DriverName))}, nil
	})
}

type provider struct {
	log logx.Logger
}

func (p *provider) Connect(ctx context.Context, creds transport.Credentials, events chan<- transport.Event) (transport.Handle, error) {
	if len(creds) == 0 {
		return nil, errors.New("loopback: empty credential bundle")
	}
	h := &handle{
		log:    p.log,
		events: events,
		name:   "Loopback",
		number: "0",
	}
	// Loopback has no wire handshake; the connection is open immediately.
	events <- transport.Opened{Name: h.name, Number: h.number}
	return h, nil
}

type handle struct {
	log    logx.Logger
	events chan<- transport.Event
	name   string
	number string

	mu     sync.Mutex
	closed bool
}

func (h *handle) Send(ctx context.Context, address, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return errors.New("loopback: handle closed")
	}
	h.log.Info("loopback send", logx.String("to", address), logx.String("text", text))
	return nil
}

func (h *handle) Identity() (string, string) {
	return h.name, h.number
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.events <- transport.Closed{Reason: transport.ReasonClosed}
	return nil
}
