// Package session implements the per-instance modem session.
//
// A Session owns one transport connection. It serializes lifecycle calls
// against that transport, maps raw status codes from the service into
// semantic events and hands them to the single subscribed listener.
//
// Listener methods run on the transport's delivery goroutine. They must not
// call Subscribe, Disconnect or any other synchronous Session method; submit
// follow-up work through the command queue instead.
package session
