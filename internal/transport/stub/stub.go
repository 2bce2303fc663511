// Package stub provides an in-process simulation of the modem management
// service, usable where no real service is reachable.
//
// The simulation follows the service's observable behaviour: a new client
// sees the modem out of service until it acquires it, acquisition boots the
// modem, releasing the last acquisition powers it down, and restarts go
// through a down/up cycle. Status codes are delivered from the stub's own
// goroutine, never from the caller's.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/transport"
)

// Power is the simulated modem power state.
type Power string

const (
	PowerOff     Power = "off"
	PowerBooting Power = "booting"
	PowerOn      Power = "on"
)

// Fault modes understood by SetFaultMode.
const (
	FaultBusy        = "ReturnBusy"
	FaultUnavailable = "ReturnUnavailable"
	FaultInvalid     = "ReturnInvalidParameter"
)

// DefaultBootDelay is how long the simulated modem takes to come up.
const DefaultBootDelay = 200 * time.Millisecond

type event struct {
	code  modem.RawCode
	after time.Duration
}

// StubTransport implements transport.Transport against a simulated service.
type StubTransport struct {
	mu sync.Mutex

	// Configuration
	bootDelay time.Duration
	failOpen  bool
	logger    *zap.Logger

	// Simulated service state
	open       bool
	clientName string
	instance   modem.InstanceID
	acquired   bool
	power      Power
	faultMode  string
	lastCauses []string
	lastLogs   modem.LogRequest

	// Event worker
	events chan event
	stop   chan struct{}
}

var _ transport.Transport = (*StubTransport)(nil)

// Option configures a StubTransport.
type Option func(*StubTransport)

// WithBootDelay sets the simulated boot time. Negative values mean zero.
func WithBootDelay(d time.Duration) Option {
	return func(s *StubTransport) {
		if d < 0 {
			d = 0
		}
		s.bootDelay = d
	}
}

// WithFailOpen makes every Open fail as if the service socket were missing.
func WithFailOpen(fail bool) Option {
	return func(s *StubTransport) {
		s.failOpen = fail
	}
}

// WithLogger sets the logger used for simulated service traces.
func WithLogger(logger *zap.Logger) Option {
	return func(s *StubTransport) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStubTransport creates a stub whose modem is powered off.
func NewStubTransport(opts ...Option) *StubTransport {
	s := &StubTransport{
		bootDelay: DefaultBootDelay,
		logger:    zap.NewNop(),
		power:     PowerOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("stub")
	return s
}

// NewFactory returns a transport.Factory building one stub per instance.
func NewFactory(opts ...Option) transport.Factory {
	return func(id modem.InstanceID) (transport.Transport, error) {
		if !id.Valid() {
			return nil, fmt.Errorf("INVALID_PARAMETER: instance %d", id)
		}
		return NewStubTransport(opts...), nil
	}
}

// Open connects the simulated client and reports the modem out of service
// until it is acquired.
func (s *StubTransport) Open(ctx context.Context, clientName string, id modem.InstanceID, onStatus transport.StatusHandler) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failOpen {
		return fmt.Errorf("UNAVAILABLE: no such file: mmgr socket for instance %d", id)
	}
	if err := s.checkFaultMode("Open"); err != nil {
		return err
	}
	if s.open {
		return fmt.Errorf("BUSY: instance %d already connected as %q", s.instance, s.clientName)
	}

	s.open = true
	s.clientName = clientName
	s.instance = id
	s.events = make(chan event, 64)
	s.stop = make(chan struct{})
	go s.eventWorker(s.events, s.stop, onStatus)

	s.logger.Debug("client connected", zap.String("client", clientName), zap.Int("instance", int(id)))
	s.enqueue(modem.RawOOS, 0)
	return nil
}

// Close disconnects the client. Pending events are dropped and the client's
// acquisition is released without a status change. It does not wait for a
// delivery in progress, so the status handler may call it.
func (s *StubTransport) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.open = false
	s.acquired = false
	close(s.stop)
	s.logger.Debug("client disconnected", zap.Int("instance", int(s.instance)))
}

// Acquire powers the modem on. A second acquisition by the same client is a
// no-op.
func (s *StubTransport) Acquire(ctx context.Context) error {
	return s.command(ctx, "Acquire", func() {
		if s.acquired {
			return
		}
		s.acquired = true
		if s.power == PowerOff {
			s.boot()
		}
	})
}

// Release drops the client's acquisition and powers the modem off.
func (s *StubTransport) Release(ctx context.Context) error {
	return s.command(ctx, "Release", func() {
		if !s.acquired {
			return
		}
		s.acquired = false
		s.power = PowerOff
		s.enqueue(modem.RawDown, 0)
	})
}

// Reset restarts the modem.
func (s *StubTransport) Reset(ctx context.Context, causes []string, logs modem.LogRequest) error {
	return s.command(ctx, "Reset", func() {
		s.lastCauses = append([]string(nil), causes...)
		s.lastLogs = logs
		s.restart()
	})
}

// Update restarts the modem to apply new firmware.
func (s *StubTransport) Update(ctx context.Context) error {
	return s.command(ctx, "Update", func() {
		s.lastCauses = nil
		s.lastLogs = modem.NoLogRequest()
		s.restart()
	})
}

// NotifyDebug records the report. The modem state is unchanged.
func (s *StubTransport) NotifyDebug(ctx context.Context, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) error {
	if !typ.Valid() {
		return fmt.Errorf("INVALID_PARAMETER: debug type %d", typ)
	}
	return s.command(ctx, "NotifyDebug", func() {
		s.lastCauses = append([]string(nil), causes...)
		s.lastLogs = logs
		s.logger.Debug("debug info", zap.Int("type", int(typ)), zap.Strings("causes", causes))
	})
}

// Shutdown powers the modem off regardless of acquisitions.
func (s *StubTransport) Shutdown(ctx context.Context) error {
	return s.command(ctx, "Shutdown", func() {
		s.power = PowerOff
		s.enqueue(modem.RawDown, 0)
	})
}

// command runs fn under the state lock once the common checks pass.
func (s *StubTransport) command(ctx context.Context, operation string, fn func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFaultMode(operation); err != nil {
		return err
	}
	if !s.open {
		return fmt.Errorf("UNAVAILABLE: %s: not connected to service", operation)
	}
	fn()
	return nil
}

// boot schedules the modem up after the boot delay. Caller holds mu.
func (s *StubTransport) boot() {
	s.power = PowerBooting
	s.enqueue(modem.RawUp, s.bootDelay)
}

// settle applies a due event to the power state and reports whether it is
// still worth delivering. Nothing is delivered once stop is closed, and an up
// event is stale once the modem was powered off during boot.
func (s *StubTransport) settle(code modem.RawCode, stop <-chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	if code != modem.RawUp {
		return true
	}
	switch s.power {
	case PowerBooting:
		s.power = PowerOn
		return true
	case PowerOn:
		return true
	default:
		return false
	}
}

// restart cycles the modem through down and, if still acquired, up.
// Caller holds mu.
func (s *StubTransport) restart() {
	s.power = PowerOff
	s.enqueue(modem.RawDown, 0)
	if s.acquired {
		s.boot()
	}
}

// enqueue schedules code for delivery. Caller holds mu. Events are dropped
// when the worker is too far behind.
func (s *StubTransport) enqueue(code modem.RawCode, after time.Duration) {
	if !s.open {
		return
	}
	select {
	case s.events <- event{code: code, after: after}:
	default:
		s.logger.Warn("event dropped", zap.Stringer("code", code))
	}
}

// eventWorker delivers events in FIFO order, honouring each event's delay.
func (s *StubTransport) eventWorker(events <-chan event, stop <-chan struct{}, onStatus transport.StatusHandler) {
	for {
		select {
		case ev := <-events:
			if ev.after > 0 {
				timer := time.NewTimer(ev.after)
				select {
				case <-timer.C:
				case <-stop:
					timer.Stop()
					return
				}
			}
			if !s.settle(ev.code, stop) {
				continue
			}
			if onStatus != nil {
				onStatus(ev.code)
			}
		case <-stop:
			return
		}
	}
}

// Fault injection methods

// SetFaultMode sets the fault injection mode.
func (s *StubTransport) SetFaultMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultMode = mode
}

// ClearFaultMode clears the fault injection mode.
func (s *StubTransport) ClearFaultMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultMode = ""
}

// checkFaultMode checks if a fault should be injected. Caller holds mu.
func (s *StubTransport) checkFaultMode(operation string) error {
	switch s.faultMode {
	case FaultBusy:
		return fmt.Errorf("BUSY: stub simulated busy error for %s", operation)
	case FaultUnavailable:
		return fmt.Errorf("UNAVAILABLE: stub simulated unavailable error for %s", operation)
	case FaultInvalid:
		return fmt.Errorf("INVALID_PARAMETER: stub simulated parameter error for %s", operation)
	default:
		return nil
	}
}

// InjectStatus delivers an unsolicited raw code, as the service does when the
// modem crashes or a core dump starts.
func (s *StubTransport) InjectStatus(code modem.RawCode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	switch code {
	case modem.RawDown, modem.RawOOS:
		s.power = PowerOff
	case modem.RawUp:
		s.power = PowerOn
	}
	s.enqueue(code, 0)
	return true
}

// Helper methods for testing

// Power returns the simulated power state.
func (s *StubTransport) Power() Power {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// IsOpen reports whether a client is connected.
func (s *StubTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Acquired reports whether the connected client holds the modem.
func (s *StubTransport) Acquired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

// LastReport returns the causes and log request of the last reset, update or
// debug notification.
func (s *StubTransport) LastReport() ([]string, modem.LogRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastCauses...), s.lastLogs
}
