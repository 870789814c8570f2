package notifier

import "time"

// Config controls the async publish pipeline.
type Config struct {
	Enabled     bool
	Workers     int
	QueueSize   int
	RatePerSec  int
	HistorySize int
}

// Level classifies a human-readable event for observers.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// EntityKind names what an event is about.
type EntityKind string

const (
	EntitySession EntityKind = "session"
	EntityTask    EntityKind = "task"
)

// Event is one observer-facing notification. The status projector emits a
// "log" event (message + level) and a "status_update" event (entity, id,
// status, log) per transition; both use this shape.
type Event struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"` // eventbus.KindLog / eventbus.KindStatusUpdate
	Entity   EntityKind `json:"entity,omitempty"`
	EntityID int64      `json:"entity_id,omitempty"`
	Status   string     `json:"status,omitempty"`
	Message  string     `json:"message,omitempty"`
	Level    Level      `json:"level,omitempty"`
	At       time.Time  `json:"at"`
}
