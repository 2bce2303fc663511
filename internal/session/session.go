package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modem-control/mdmcli/internal/audit"
	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/telemetry"
	"github.com/modem-control/mdmcli/internal/transport"
)

// ConnState is the connection state of a session.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// AuditLogger records lifecycle calls. *audit.Logger satisfies it.
type AuditLogger interface {
	LogOperation(ctx context.Context, action string, instance modem.InstanceID, params map[string]interface{}, err error, latency time.Duration)
}

var _ AuditLogger = (*audit.Logger)(nil)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditLogger records every lifecycle call.
func WithAuditLogger(a AuditLogger) Option {
	return func(s *Session) {
		s.audit = a
	}
}

// WithHub publishes status, connection and fault events.
func WithHub(hub *telemetry.Hub) Option {
	return func(s *Session) {
		s.hub = hub
	}
}

// WithCallTimeout bounds every transport call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.callTimeout = d
	}
}

// WithResetTimeout bounds reset and update calls. Zero disables the bound.
func WithResetTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.resetTimeout = d
	}
}

// Session is the client's handle on one modem instance.
//
// LOCK ORDERING:
// 1. stateMu - connection state, serializes calls on the transport
// 2. dispatchMu - listener, last status and waiters
// The listener runs with neither lock held, so it may call back into the
// session. Status from an earlier connection is dropped by generation.
type Session struct {
	id        modem.InstanceID
	transport transport.Transport

	logger       *zap.Logger
	audit        AuditLogger
	hub          *telemetry.Hub
	callTimeout  time.Duration
	resetTimeout time.Duration

	stateMu    sync.Mutex
	state      ConnState
	clientName string
	closed     bool

	dispatchMu sync.Mutex
	listener   modem.Listener
	live       bool   // connected, as seen by waiters
	gen        uint64 // bumped on every Connect and Disconnect
	seq        uint64 // statuses accepted on this connection
	lastStatus modem.Status
	waiters    map[*waiter]struct{}
}

// New creates a session for instance id over t. A nil transport yields a
// session whose calls fail with ErrNoTransport.
func New(id modem.InstanceID, t transport.Transport, opts ...Option) *Session {
	s := &Session{
		id:        id,
		transport: t,
		logger:    zap.NewNop(),
		waiters:   make(map[*waiter]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session").With(zap.Int("instance", int(id)))
	return s
}

// InstanceID returns the instance this session manages.
func (s *Session) InstanceID() modem.InstanceID {
	return s.id
}

// State returns the connection state.
func (s *Session) State() ConnState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// ClientName returns the name given to the last successful Connect.
func (s *Session) ClientName() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.clientName
}

// Connect opens the transport as clientName. Connecting an already connected
// session is a no-op.
func (s *Session) Connect(ctx context.Context, clientName string) error {
	start := time.Now()
	params := map[string]interface{}{"clientName": clientName}

	if err := modem.ValidateClientName(clientName); err != nil {
		return s.finish(ctx, modem.OpConnect, clientName, params, err, start)
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.closed {
		return s.finish(ctx, modem.OpConnect, clientName, params, modem.ErrSessionClosed, start)
	}
	if s.transport == nil {
		return s.finish(ctx, modem.OpConnect, clientName, params, modem.ErrNoTransport, start)
	}
	if s.state == Connected {
		s.logger.Debug("Already connected", zap.String("client", s.clientName))
		return nil
	}

	callCtx, cancel := s.withTimeout(ctx, s.callTimeout)
	defer cancel()

	// Open may deliver the first status before it returns.
	s.dispatchMu.Lock()
	s.gen++
	gen := s.gen
	s.live = true
	s.lastStatus = modem.StatusNone
	s.dispatchMu.Unlock()

	if err := s.transport.Open(callCtx, clientName, s.id, s.statusHandler(gen)); err != nil {
		s.dispatchMu.Lock()
		s.gen++
		s.live = false
		s.lastStatus = modem.StatusNone
		s.releaseWaitersLocked(false)
		s.dispatchMu.Unlock()

		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			err = &modem.InitError{Instance: s.id, Cause: err}
		}
		return s.finish(ctx, modem.OpConnect, clientName, params, err, start)
	}

	s.state = Connected
	s.clientName = clientName
	s.logger.Info("Connected", zap.String("client", clientName))
	s.publish(telemetry.EventConnection, map[string]interface{}{
		"state":  Connected.String(),
		"client": clientName,
	})
	return s.finish(ctx, modem.OpConnect, clientName, params, nil, start)
}

// Disconnect closes the transport connection if one is open and clears the
// listener. It is idempotent and never fails. A listener may call it.
func (s *Session) Disconnect(ctx context.Context) error {
	start := time.Now()

	s.stateMu.Lock()
	wasConnected := s.state == Connected
	client := s.clientName
	s.state = Disconnected

	s.dispatchMu.Lock()
	s.gen++
	s.live = false
	s.listener = nil
	s.lastStatus = modem.StatusNone
	s.releaseWaitersLocked(false)
	s.dispatchMu.Unlock()

	// Transport Close does not wait for a status callback in progress.
	if wasConnected {
		s.transport.Close()
	}
	s.stateMu.Unlock()

	if wasConnected {
		s.logger.Info("Disconnected", zap.String("client", client))
		s.publish(telemetry.EventConnection, map[string]interface{}{
			"state":  Disconnected.String(),
			"client": client,
		})
		s.record(ctx, modem.OpDisconnect, client, nil, nil, time.Since(start))
	}
	return nil
}

// Close disconnects and rejects every later call with ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	_ = s.Disconnect(ctx)

	s.stateMu.Lock()
	s.closed = true
	s.stateMu.Unlock()
	return nil
}

func (s *Session) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// finish wraps err, audits the call and publishes a fault event on failure.
func (s *Session) finish(ctx context.Context, op modem.OperationKind, client string, params map[string]interface{}, err error, start time.Time) error {
	err = modem.NewClientError(op, s.id, err)
	latency := time.Since(start)
	s.record(ctx, op, client, params, err, latency)

	if err != nil {
		s.logger.Warn("Operation failed",
			zap.Stringer("op", op),
			zap.Error(err),
			zap.Duration("latency", latency))
		s.publish(telemetry.EventFault, map[string]interface{}{
			"op":    op.String(),
			"code":  audit.CodeFromError(err),
			"error": err.Error(),
		})
		return err
	}

	s.logger.Debug("Operation completed", zap.Stringer("op", op), zap.Duration("latency", latency))
	return nil
}

func (s *Session) record(ctx context.Context, op modem.OperationKind, client string, params map[string]interface{}, err error, latency time.Duration) {
	if s.audit == nil {
		return
	}
	s.audit.LogOperation(audit.WithClient(ctx, client), op.String(), s.id, params, err, latency)
}

func (s *Session) publish(eventType string, data map[string]interface{}) {
	if s.hub == nil {
		return
	}
	if err := s.hub.PublishInstance(s.id, telemetry.Event{Type: eventType, Data: data}); err != nil {
		s.logger.Debug("Telemetry publish dropped", zap.String("type", eventType), zap.Error(err))
	}
}
