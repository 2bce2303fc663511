// Package fake provides a recording transport for tests.
//
// FakeTransport keeps every call with its parameters, can fail selected
// operations and lets a test push raw status codes through the registered
// handler with Emit.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/transport"
)

// Call is one recorded transport invocation.
type Call struct {
	Op         modem.OperationKind
	ClientName string
	Instance   modem.InstanceID
	Causes     []string
	Logs       modem.LogRequest
	DebugType  modem.DebugInfoType
}

// FakeTransport implements transport.Transport for testing purposes.
type FakeTransport struct {
	mu       sync.Mutex
	calls    []Call
	open     bool
	closes   int
	instance modem.InstanceID

	// Error simulation
	simulateErrors bool
	errorType      string
	opErrors       map[modem.OperationKind]error
	delay          time.Duration

	// Inbound delivery
	events  chan modem.RawCode
	stop    chan struct{}
	pending sync.WaitGroup
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport creates a fake transport that is not yet open.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		opErrors: make(map[modem.OperationKind]error),
	}
}

// Open records the connection and starts the delivery goroutine.
func (f *FakeTransport) Open(ctx context.Context, clientName string, id modem.InstanceID, onStatus transport.StatusHandler) error {
	if err := f.begin(ctx, Call{Op: modem.OpConnect, ClientName: clientName, Instance: id}); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		return fmt.Errorf("BUSY: instance %d already connected", id)
	}
	f.open = true
	f.instance = id
	f.events = make(chan modem.RawCode, 64)
	f.stop = make(chan struct{})
	go f.deliver(f.events, f.stop, onStatus)
	return nil
}

// Close stops delivery. Events still queued are dropped; call Flush first to
// have them delivered. Close does not wait for a delivery in progress, so the
// handler may call it.
func (f *FakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: modem.OpDisconnect, Instance: f.instance})
	f.closes++
	if !f.open {
		return
	}
	f.open = false
	close(f.stop)
	close(f.events)
}

// Acquire records the call.
func (f *FakeTransport) Acquire(ctx context.Context) error {
	return f.invoke(ctx, Call{Op: modem.OpAcquireModem})
}

// Release records the call.
func (f *FakeTransport) Release(ctx context.Context) error {
	return f.invoke(ctx, Call{Op: modem.OpReleaseModem})
}

// Reset records the call with its causes and log request.
func (f *FakeTransport) Reset(ctx context.Context, causes []string, logs modem.LogRequest) error {
	return f.invoke(ctx, Call{Op: modem.OpResetModem, Causes: causes, Logs: logs})
}

// Update records the call.
func (f *FakeTransport) Update(ctx context.Context) error {
	return f.invoke(ctx, Call{Op: modem.OpUpdateModem})
}

// NotifyDebug records the call with its parameters.
func (f *FakeTransport) NotifyDebug(ctx context.Context, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) error {
	return f.invoke(ctx, Call{Op: modem.OpNotifyDebugInfo, Causes: causes, DebugType: typ, Logs: logs})
}

// Shutdown records the call.
func (f *FakeTransport) Shutdown(ctx context.Context) error {
	return f.invoke(ctx, Call{Op: modem.OpShutdownModem})
}

// Emit queues a raw code for delivery to the handler registered at Open.
// It reports false when the transport is not open.
func (f *FakeTransport) Emit(code modem.RawCode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return false
	}
	f.pending.Add(1)
	f.events <- code
	return true
}

// Flush waits until every emitted code has been handed to the handler.
func (f *FakeTransport) Flush() {
	f.pending.Wait()
}

func (f *FakeTransport) deliver(events <-chan modem.RawCode, stop <-chan struct{}, onStatus transport.StatusHandler) {
	for code := range events {
		select {
		case <-stop:
		default:
			if onStatus != nil {
				onStatus(code)
			}
		}
		f.pending.Done()
	}
}

func (f *FakeTransport) invoke(ctx context.Context, call Call) error {
	if err := f.begin(ctx, call); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("UNAVAILABLE: not connected to service")
	}
	return nil
}

// begin records the call, waits for the configured delay and applies error
// simulation.
func (f *FakeTransport) begin(ctx context.Context, call Call) error {
	// Check for context cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f.mu.Lock()
	if call.Causes != nil {
		call.Causes = append([]string{}, call.Causes...)
	}
	f.calls = append(f.calls, call)
	delay := f.delay
	err := f.opErrors[call.Op]
	if err == nil && f.simulateErrors {
		err = f.getSimulatedError()
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Helper methods for testing

// SetErrorSimulation makes every call fail with the given error type.
func (f *FakeTransport) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
}

// DisableErrorSimulation clears the error type and every per-operation error.
func (f *FakeTransport) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
	f.opErrors = make(map[modem.OperationKind]error)
}

// FailOperation makes calls of kind op return err. A nil err clears it.
func (f *FakeTransport) FailOperation(op modem.OperationKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.opErrors, op)
		return
	}
	f.opErrors[op] = err
}

// SetDelay makes every call block for d or until its context ends.
func (f *FakeTransport) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// getSimulatedError returns a simulated error based on the configured error type.
func (f *FakeTransport) getSimulatedError() error {
	switch f.errorType {
	case "INVALID_PARAMETER":
		return fmt.Errorf("INVALID_PARAMETER: simulated parameter error")
	case "BUSY":
		return fmt.Errorf("BUSY: simulated busy error")
	case "UNAVAILABLE":
		return fmt.Errorf("UNAVAILABLE: simulated unavailable error")
	case "TIMEOUT":
		return fmt.Errorf("TIMEOUT: simulated timeout error")
	case "INTERNAL":
		return fmt.Errorf("INTERNAL: simulated internal error")
	default:
		return fmt.Errorf("INTERNAL: unknown simulated error")
	}
}

// Calls returns a copy of every recorded call in order.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many calls of kind op were recorded.
func (f *FakeTransport) CallCount(op modem.OperationKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call of kind op.
func (f *FakeTransport) LastCall(op modem.OperationKind) (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Op == op {
			return f.calls[i], true
		}
	}
	return Call{}, false
}

// IsOpen reports whether Open succeeded and Close has not been called since.
func (f *FakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// CloseCount returns how many times Close was called.
func (f *FakeTransport) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
