// Package transport defines the contracts between the session manager and a
// messaging-protocol implementation.
//
// The wire protocol itself lives outside this repository; drivers register
// themselves by name (see registry.go) and the session manager only ever
// talks to the Provider/Handle interfaces plus the event stream below.
package transport

import "context"

// Credentials is an opaque durable bundle the provider needs to
// re-establish a connection without re-pairing.
type Credentials []byte

// CloseReason classifies a Closed event.
//
// ReasonLoggedOut is special: it means the remote side invalidated the
// credentials, and the session manager reacts by deleting the bundle and
// cascade-stopping the session's tasks. Every other reason leaves the
// bundle in place so the session can be started again.
type CloseReason int

const (
	ReasonClosed CloseReason = iota
	ReasonError
	ReasonLoggedOut
)

func (r CloseReason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonError:
		return "error"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Event is the connection-state stream a provider emits for one handle.
//
// Contract:
//   - Events for one handle are emitted in observation order.
//   - After Closed, the provider emits nothing more for that handle.
//   - Providers must not block forever on the event channel; the session
//     manager consumes it with a dedicated goroutine per session.
type Event interface {
	isEvent()
}

// Opened reports that the connection is authenticated and live.
type Opened struct {
	Name   string // account display name
	Number string // account address/number
}

// Closed reports that the connection ended.
type Closed struct {
	Reason CloseReason
	Err    error // optional detail, nil for clean closes
}

// CredentialsChanged carries a rotated credential bundle that must be
// persisted so the next connect doesn't need re-pairing.
type CredentialsChanged struct {
	Data []byte
}

func (Opened) isEvent()             {}
func (Closed) isEvent()             {}
func (CredentialsChanged) isEvent() {}

// Handle is a live connection.
type Handle interface {
	// Send delivers text to a normalized address (suffix included).
	Send(ctx context.Context, address, text string) error

	// Identity returns the connected account's display name and number.
	// Valid after Opened has been observed.
	Identity() (name, number string)

	// Close tears the connection down. The provider still emits a final
	// Closed event on the stream.
	Close() error
}

// Provider opens connections from stored credentials.
type Provider interface {
	// Connect authenticates and returns a live handle. Lifecycle events,
	// including the initial Opened, arrive on the events channel.
	Connect(ctx context.Context, creds Credentials, events chan<- Event) (Handle, error)
}
