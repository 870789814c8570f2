// Package notifier publishes human-readable status/log events to external
// observers via the in-process event bus.
//
// Delivery is best-effort: Publish never blocks, never errors, and drops
// under backpressure. Core state transitions must not depend on it.
package notifier
