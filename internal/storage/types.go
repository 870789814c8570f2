package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// SessionStatus is the persisted connection state of a session row.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
	SessionLoggedOut    SessionStatus = "logged_out"
)

// TaskStatus is the persisted state of a task row.
//
// "running" is a last-known signal: the in-memory scheduler registry is the
// source of truth for what is actually active, reconciled on process start.
type TaskStatus string

const (
	TaskStopped TaskStatus = "stopped"
	TaskRunning TaskStatus = "running"
)

// TargetType selects the address domain suffix for a task target.
type TargetType string

const (
	TargetContact TargetType = "contact"
	TargetGroup   TargetType = "group"
)

// Session is one account's connection context.
type Session struct {
	ID        int64
	OwnerID   int64
	Name      string
	Status    SessionStatus
	LastLog   string
	CreatedAt time.Time
}

// Task is a recurring send job bound to a session.
type Task struct {
	ID              int64
	OwnerID         int64
	SessionID       int64
	Name            string
	Target          string
	TargetType      TargetType
	Messages        []string
	IntervalSeconds int
	PrefixName      string
	Status          TaskStatus
	LastLog         string
	CreatedAt       time.Time
}

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	OwnerID   int64
	SessionID int64
	Status    TaskStatus
}
