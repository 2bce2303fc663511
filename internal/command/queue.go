package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/modem-control/mdmcli/internal/audit"
	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/telemetry"
)

// DefaultDepth is the number of submissions a queue buffers.
const DefaultDepth = 32

// OperationID identifies one accepted submission.
type OperationID string

// Operation describes one asynchronous call. Fields that the kind does not
// use are ignored.
type Operation struct {
	Kind       modem.OperationKind
	ClientName string
	Causes     []string
	DebugType  modem.DebugInfoType
	Logs       modem.LogRequest
}

type job struct {
	id        OperationID
	op        Operation
	handler   modem.ResultHandler
	submitted time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithHub publishes an operation event per executed submission.
func WithHub(hub *telemetry.Hub) Option {
	return func(q *Queue) {
		q.hub = hub
	}
}

// WithDepth sets the submission buffer size. Non-positive values keep
// DefaultDepth.
func WithDepth(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.depth = n
		}
	}
}

// Queue serializes asynchronous operations on one session.
type Queue struct {
	session SessionPort
	logger  *zap.Logger
	hub     *telemetry.Hub
	depth   int

	mu     sync.RWMutex // guards closed and sends on jobs
	closed bool
	jobs   chan job
	done   chan struct{}
}

// NewQueue starts the worker for s. Calls are serialized only within one
// queue, so a session should have a single queue; the registry keeps one per
// instance.
func NewQueue(s SessionPort, opts ...Option) *Queue {
	q := &Queue{
		session: s,
		logger:  zap.NewNop(),
		depth:   DefaultDepth,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.Named("queue").With(zap.Int("instance", int(s.InstanceID())))
	q.jobs = make(chan job, q.depth)

	go q.worker()
	return q
}

// Submit enqueues op and returns without waiting for it. The handler is
// called exactly once: with the result of the call, or with the reason the
// submission was refused. A refusal is also returned, wrapped in a
// *modem.ClientError, and reaches the handler on a separate goroutine. A nil
// handler is allowed.
func (q *Queue) Submit(op Operation, h modem.ResultHandler) (OperationID, error) {
	if !op.Kind.Valid() {
		return "", q.reject(op, h, fmt.Errorf("%w: operation kind %d", modem.ErrInvalidParameter, op.Kind))
	}

	j := job{
		id:        OperationID(uuid.NewString()),
		op:        op,
		handler:   h,
		submitted: time.Now(),
	}
	if op.Causes != nil {
		j.op.Causes = append([]string{}, op.Causes...)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", q.reject(op, h, modem.ErrQueueClosed)
	}
	select {
	case q.jobs <- j:
	default:
		q.logger.Warn("Queue full, rejecting submission", zap.Stringer("op", op.Kind))
		return "", q.reject(op, h, modem.ErrQueueFull)
	}

	q.logger.Debug("Operation accepted", zap.String("id", string(j.id)), zap.Stringer("op", op.Kind))
	return j.id, nil
}

// reject wraps cause, hands it to h without blocking the caller and returns
// it.
func (q *Queue) reject(op Operation, h modem.ResultHandler, cause error) error {
	err := modem.NewClientError(op.Kind, q.session.InstanceID(), cause)
	if h != nil {
		go q.deliver("", h, err)
	}
	return err
}

// Pending returns the number of accepted submissions not yet started.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Close stops accepting submissions, runs everything already accepted and
// returns once the worker has finished. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	<-q.done
}

// worker processes jobs sequentially in FIFO order.
func (q *Queue) worker() {
	defer close(q.done)
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	start := time.Now()
	id := q.session.InstanceID()

	var err error
	var catcher panics.Catcher
	catcher.Try(func() { err = q.execute(context.Background(), j.op) })
	if r := catcher.Recovered(); r != nil {
		q.logger.Error("Operation panicked", zap.String("id", string(j.id)), zap.Error(r.AsError()))
		err = modem.NewClientError(j.op.Kind, id, fmt.Errorf("%w: %v", modem.ErrInternal, r.AsError()))
	}
	latency := time.Since(start)

	if q.hub != nil {
		data := map[string]interface{}{
			"operationId": string(j.id),
			"op":          j.op.Kind.String(),
			"outcome":     "SUCCESS",
			"latencyMs":   latency.Milliseconds(),
			"queuedMs":    start.Sub(j.submitted).Milliseconds(),
		}
		if err != nil {
			data["outcome"] = "ERROR"
			data["code"] = audit.CodeFromError(err)
		}
		if perr := q.hub.PublishInstance(id, telemetry.Event{Type: telemetry.EventOperation, Data: data}); perr != nil {
			q.logger.Debug("Telemetry publish dropped", zap.Error(perr))
		}
	}

	q.deliver(j.id, j.handler, err)
}

// deliver calls h with err, recovering a panicking handler.
func (q *Queue) deliver(id OperationID, h modem.ResultHandler, err error) {
	var catcher panics.Catcher
	catcher.Try(func() { modem.Result{Err: err}.Deliver(h) })
	if r := catcher.Recovered(); r != nil {
		q.logger.Error("Result handler panicked", zap.String("id", string(id)), zap.Error(r.AsError()))
	}
}

// execute dispatches op to the matching synchronous call.
func (q *Queue) execute(ctx context.Context, op Operation) error {
	s := q.session
	switch op.Kind {
	case modem.OpConnect:
		return s.Connect(ctx, op.ClientName)
	case modem.OpDisconnect:
		return s.Disconnect(ctx)
	case modem.OpAcquireModem:
		return s.AcquireModem(ctx)
	case modem.OpReleaseModem:
		return s.ReleaseModem(ctx)
	case modem.OpResetModem:
		return s.ResetModem(ctx, op.Causes, op.Logs)
	case modem.OpUpdateModem:
		return s.UpdateModem(ctx)
	case modem.OpShutdownModem:
		return s.ShutdownModem(ctx)
	case modem.OpNotifyDebugInfo:
		return s.NotifyDebugInfo(ctx, op.Causes, op.DebugType, op.Logs)
	default:
		return modem.NewClientError(op.Kind, s.InstanceID(), modem.ErrInvalidParameter)
	}
}
