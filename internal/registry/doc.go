// Package registry keeps one session per modem instance.
//
// The registry is an explicit value owned by the application. Sessions are
// built on first use through a transport factory and torn down by Remove or
// Close. Each session gets at most one async queue, built by Queue.
package registry
