// Package telemetry implements the in-process event hub.
//
// Sessions and queues publish status changes and operation outcomes to the
// hub. Subscribers receive them on a channel, optionally filtered to one
// instance, and can resume after the last event ID they saw from a bounded
// per-instance buffer.
package telemetry
