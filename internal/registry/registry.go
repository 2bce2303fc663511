package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/modem-control/mdmcli/internal/command"
	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/session"
	"github.com/modem-control/mdmcli/internal/telemetry"
	"github.com/modem-control/mdmcli/internal/transport"
)

// Factory builds the transport of a new session.
type Factory = transport.Factory

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Sessions inherit it unless
// WithSessionOptions overrides it.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHub attaches a telemetry hub to every session.
func WithHub(hub *telemetry.Hub) Option {
	return func(r *Registry) {
		r.hub = hub
	}
}

// WithSessionOptions applies opts to every session the registry builds.
func WithSessionOptions(opts ...session.Option) Option {
	return func(r *Registry) {
		r.sessionOpts = append(r.sessionOpts, opts...)
	}
}

// WithQueueOptions applies opts to every queue the registry builds.
func WithQueueOptions(opts ...command.Option) Option {
	return func(r *Registry) {
		r.queueOpts = append(r.queueOpts, opts...)
	}
}

// Registry maps instance IDs to sessions and their async queues.
type Registry struct {
	mu          sync.Mutex
	factory     Factory
	sessions    map[modem.InstanceID]*session.Session
	queues      map[modem.InstanceID]*command.Queue
	closed      bool
	logger      *zap.Logger
	hub         *telemetry.Hub
	sessionOpts []session.Option
	queueOpts   []command.Option
}

// New creates an empty registry that builds transports with factory.
func New(factory Factory, opts ...Option) *Registry {
	r := &Registry{
		factory:  factory,
		sessions: make(map[modem.InstanceID]*session.Session),
		queues:   make(map[modem.InstanceID]*command.Queue),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session of id, building it on first use. Every
// call for the same id returns the same pointer. A failed construction is
// not cached, so a later call retries it.
func (r *Registry) GetOrCreate(id modem.InstanceID) (*session.Session, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: instance id %d", modem.ErrInvalidParameter, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionLocked(id)
}

// Queue returns the async queue of id, building the session and the queue on
// first use. Every session has at most one queue, so its asynchronous calls
// run one at a time.
func (r *Registry) Queue(id modem.InstanceID) (*command.Queue, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: instance id %d", modem.ErrInvalidParameter, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[id]; ok {
		return q, nil
	}
	s, err := r.sessionLocked(id)
	if err != nil {
		return nil, err
	}

	opts := []command.Option{command.WithLogger(r.logger)}
	if r.hub != nil {
		opts = append(opts, command.WithHub(r.hub))
	}
	opts = append(opts, r.queueOpts...)

	q := command.NewQueue(s, opts...)
	r.queues[id] = q
	return q, nil
}

// sessionLocked returns or builds the session of id. Caller holds mu.
func (r *Registry) sessionLocked(id modem.InstanceID) (*session.Session, error) {
	if r.closed {
		return nil, modem.ErrRegistryClosed
	}
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	if r.factory == nil {
		return nil, &modem.InitError{Instance: id, Cause: errors.New("no transport factory")}
	}
	t, err := r.factory(id)
	if err != nil {
		r.logger.Warn("Transport construction failed", zap.Int("instance", int(id)), zap.Error(err))
		return nil, &modem.InitError{Instance: id, Cause: err}
	}

	opts := []session.Option{session.WithLogger(r.logger)}
	if r.hub != nil {
		opts = append(opts, session.WithHub(r.hub))
	}
	opts = append(opts, r.sessionOpts...)

	s := session.New(id, t, opts...)
	r.sessions[id] = s
	r.logger.Info("Session created", zap.Int("instance", int(id)))
	return s, nil
}

// GetDefault returns the session of the default instance.
func (r *Registry) GetDefault() (*session.Session, error) {
	return r.GetOrCreate(modem.DefaultInstanceID())
}

// Lookup returns an existing session without building one.
func (r *Registry) Lookup(id modem.InstanceID) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// IDs returns the instances that have a session, in ascending order.
func (r *Registry) IDs() []modem.InstanceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]modem.InstanceID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Remove drains the queue of id, closes its session and forgets both.
// Removing an unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id modem.InstanceID) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	q := r.queues[id]
	delete(r.sessions, id)
	delete(r.queues, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if q != nil {
		q.Close()
	}
	r.logger.Info("Session removed", zap.Int("instance", int(id)))
	return s.Close(ctx)
}

// Close drains every queue and tears down every session. Later GetOrCreate
// and Queue calls fail with ErrRegistryClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := r.sessions
	queues := r.queues
	r.sessions = make(map[modem.InstanceID]*session.Session)
	r.queues = make(map[modem.InstanceID]*command.Queue)
	r.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}

	var errs []error
	for id, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("instance %d: %w", id, err))
		}
	}
	r.logger.Info("Registry closed", zap.Int("sessions", len(sessions)))
	return errors.Join(errs...)
}
