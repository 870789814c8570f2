// Package storage persists session and task rows in sqlite.
//
// Rows are the durable half of the system: the in-memory registries in
// internal/session and internal/task hold the live handles/timers, and are
// reconciled against these rows on process start (tasks still marked
// "running" from a previous process get restarted).
package storage
