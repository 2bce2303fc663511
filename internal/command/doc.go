// Package command runs session operations asynchronously.
//
// A Queue owns one worker goroutine per session. Submissions run in FIFO
// order, one at a time, and each resolves its result handler exactly once,
// with the outcome of the matching synchronous session call or with the
// reason the submission was refused.
package command
