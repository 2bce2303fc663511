package command

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/modem-control/mdmcli/internal/config"
	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/session"
	"github.com/modem-control/mdmcli/internal/telemetry"
	"github.com/modem-control/mdmcli/internal/transport/fake"
)

// MockSession is a SessionPort whose calls are recorded and optionally
// overridden.
type MockSession struct {
	mu    sync.Mutex
	calls []Operation

	CallFunc func(op Operation) error
}

func (m *MockSession) InstanceID() modem.InstanceID { return 1 }

func (m *MockSession) record(op Operation) error {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	fn := m.CallFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(op)
	}
	return nil
}

func (m *MockSession) Calls() []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Operation(nil), m.calls...)
}

func (m *MockSession) Connect(ctx context.Context, clientName string) error {
	return m.record(Operation{Kind: modem.OpConnect, ClientName: clientName})
}

func (m *MockSession) Disconnect(ctx context.Context) error {
	return m.record(Operation{Kind: modem.OpDisconnect})
}

func (m *MockSession) AcquireModem(ctx context.Context) error {
	return m.record(Operation{Kind: modem.OpAcquireModem})
}

func (m *MockSession) ReleaseModem(ctx context.Context) error {
	return m.record(Operation{Kind: modem.OpReleaseModem})
}

func (m *MockSession) ResetModem(ctx context.Context, causes []string, logs modem.LogRequest) error {
	return m.record(Operation{Kind: modem.OpResetModem, Causes: causes, Logs: logs})
}

func (m *MockSession) UpdateModem(ctx context.Context) error {
	return m.record(Operation{Kind: modem.OpUpdateModem})
}

func (m *MockSession) ShutdownModem(ctx context.Context) error {
	return m.record(Operation{Kind: modem.OpShutdownModem})
}

func (m *MockSession) NotifyDebugInfo(ctx context.Context, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) error {
	return m.record(Operation{Kind: modem.OpNotifyDebugInfo, Causes: causes, DebugType: typ, Logs: logs})
}

// outcome collects handler invocations.
type outcome struct {
	mu        sync.Mutex
	completes int
	errs      []error
	done      chan struct{}
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{}, 64)}
}

func (o *outcome) OnComplete() {
	o.mu.Lock()
	o.completes++
	o.mu.Unlock()
	o.done <- struct{}{}
}

func (o *outcome) OnError(cause error) {
	o.mu.Lock()
	o.errs = append(o.errs, cause)
	o.mu.Unlock()
	o.done <- struct{}{}
}

func (o *outcome) wait(t *testing.T) {
	t.Helper()
	select {
	case <-o.done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for result")
	}
}

func (o *outcome) counts() (int, []error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completes, append([]error(nil), o.errs...)
}

func TestSubmitCompletesOnce(t *testing.T) {
	ft := fake.NewFakeTransport()
	s := session.New(1, ft)
	q := NewQueue(s)
	defer q.Close()

	out := newOutcome()
	if _, err := q.ConnectAsync(out, "async-client"); err != nil {
		t.Fatalf("ConnectAsync() failed: %v", err)
	}
	out.wait(t)
	q.Close()

	completes, errs := out.counts()
	if completes != 1 || len(errs) != 0 {
		t.Errorf("Expected exactly one completion, got %d completions and %d errors", completes, len(errs))
	}
	if s.State() != session.Connected {
		t.Errorf("Expected session connected, got %s", s.State())
	}
	_ = s.Disconnect(context.Background())
}

func TestErrorMatchesSynchronousCall(t *testing.T) {
	ft := fake.NewFakeTransport()
	s := session.New(1, ft)

	syncErr := s.AcquireModem(context.Background())
	if syncErr == nil {
		t.Fatal("Expected synchronous acquire to fail when not connected")
	}

	q := NewQueue(s)
	out := newOutcome()
	if _, err := q.AcquireModemAsync(out); err != nil {
		t.Fatalf("AcquireModemAsync() failed: %v", err)
	}
	q.Close()

	completes, errs := out.counts()
	if completes != 0 || len(errs) != 1 {
		t.Fatalf("Expected exactly one error, got %d completions and %d errors", completes, len(errs))
	}
	if errs[0].Error() != syncErr.Error() {
		t.Errorf("Expected %q, got %q", syncErr, errs[0])
	}
	if !errors.Is(errs[0], modem.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", errs[0])
	}
}

func TestHandlerReceivesSameError(t *testing.T) {
	failure := errors.New("BUSY: service busy")
	mock := &MockSession{CallFunc: func(Operation) error { return failure }}
	q := NewQueue(mock)

	out := newOutcome()
	_, _ = q.ShutdownModemAsync(out)
	q.Close()

	_, errs := out.counts()
	if len(errs) != 1 || errs[0] != failure {
		t.Errorf("Expected the session error unchanged, got %v", errs)
	}
}

func TestFIFOOrder(t *testing.T) {
	mock := &MockSession{}
	q := NewQueue(mock)

	kinds := []modem.OperationKind{
		modem.OpConnect, modem.OpAcquireModem, modem.OpResetModem,
		modem.OpNotifyDebugInfo, modem.OpUpdateModem, modem.OpReleaseModem,
		modem.OpShutdownModem, modem.OpDisconnect,
	}
	for _, k := range kinds {
		op := Operation{Kind: k, ClientName: "c", DebugType: modem.DebugInfo}
		if _, err := q.Submit(op, nil); err != nil {
			t.Fatalf("Submit(%s) failed: %v", k, err)
		}
	}
	q.Close()

	calls := mock.Calls()
	if len(calls) != len(kinds) {
		t.Fatalf("Expected %d calls, got %d", len(kinds), len(calls))
	}
	for i, k := range kinds {
		if calls[i].Kind != k {
			t.Errorf("Position %d: expected %s, got %s", i, k, calls[i].Kind)
		}
	}
}

func TestOneOperationInFlight(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	mock := &MockSession{CallFunc: func(Operation) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}}
	q := NewQueue(mock)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.AcquireModemAsync(nil)
		}()
	}
	wg.Wait()
	q.Close()

	if maxInFlight != 1 {
		t.Errorf("Expected at most 1 operation in flight, got %d", maxInFlight)
	}
}

func TestCloseDrainsAccepted(t *testing.T) {
	mock := &MockSession{CallFunc: func(Operation) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}}
	q := NewQueue(mock)

	out := newOutcome()
	for i := 0; i < 5; i++ {
		if _, err := q.ReleaseModemAsync(out); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	q.Close()

	completes, _ := out.counts()
	if completes != 5 {
		t.Errorf("Expected 5 completions after Close, got %d", completes)
	}
	if q.Pending() != 0 {
		t.Errorf("Expected empty queue, got %d pending", q.Pending())
	}
}

func TestSubmitAfterClose(t *testing.T) {
	q := NewQueue(&MockSession{})
	q.Close()
	q.Close()

	out := newOutcome()
	id, err := q.AcquireModemAsync(out)
	if !errors.Is(err, modem.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if id != "" {
		t.Errorf("Expected no operation id, got %q", id)
	}
	out.wait(t)

	completes, errs := out.counts()
	if completes != 0 || len(errs) != 1 {
		t.Fatalf("Expected one error delivery, got %d completes and %d errors", completes, len(errs))
	}
	var ce *modem.ClientError
	if !errors.As(errs[0], &ce) || ce.Op != modem.OpAcquireModem || ce.Code() != modem.ErrQueueClosed {
		t.Errorf("Expected acquireModem ClientError with QUEUE_CLOSED, got %v", errs[0])
	}
}

func TestQueueFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mock := &MockSession{CallFunc: func(Operation) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}}
	q := NewQueue(mock, WithDepth(1))

	if _, err := q.AcquireModemAsync(nil); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	<-started

	if _, err := q.AcquireModemAsync(nil); err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}

	out := newOutcome()
	if _, err := q.AcquireModemAsync(out); !errors.Is(err, modem.ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	out.wait(t)
	close(release)
	q.Close()

	completes, errs := out.counts()
	if completes != 0 || len(errs) != 1 {
		t.Fatalf("Expected one error delivery, got %d completes and %d errors", completes, len(errs))
	}
	if modem.CodeOf(errs[0]) != modem.ErrQueueFull {
		t.Errorf("Expected QUEUE_FULL, got %v", errs[0])
	}
	if got := len(mock.Calls()); got != 2 {
		t.Errorf("Expected 2 executed operations, got %d", got)
	}
}

func TestPanicDeliveredAsError(t *testing.T) {
	mock := &MockSession{CallFunc: func(Operation) error { panic("transport exploded") }}
	q := NewQueue(mock)

	out := newOutcome()
	_, _ = q.UpdateModemAsync(out)
	_, _ = q.UpdateModemAsync(out)
	q.Close()

	_, errs := out.counts()
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(errs))
	}
	var ce *modem.ClientError
	if !errors.As(errs[0], &ce) {
		t.Fatalf("Expected ClientError, got %T", errs[0])
	}
	if ce.Op != modem.OpUpdateModem {
		t.Errorf("Expected op updateModem, got %s", ce.Op)
	}
	if ce.Code() != modem.ErrInternal {
		t.Errorf("Expected INTERNAL, got %v", ce.Code())
	}
}

type panickyHandler struct{}

func (panickyHandler) OnComplete()    { panic("handler failure") }
func (panickyHandler) OnError(error) { panic("handler failure") }

func TestHandlerPanicDoesNotStopWorker(t *testing.T) {
	q := NewQueue(&MockSession{})

	_, _ = q.AcquireModemAsync(panickyHandler{})
	out := newOutcome()
	_, _ = q.ReleaseModemAsync(out)
	q.Close()

	if completes, _ := out.counts(); completes != 1 {
		t.Errorf("Expected the next operation to complete, got %d", completes)
	}
}

func TestSubmitRejectsInvalidKind(t *testing.T) {
	q := NewQueue(&MockSession{})
	defer q.Close()

	for _, kind := range []modem.OperationKind{0, modem.OpNotifyDebugInfo + 1} {
		out := newOutcome()
		if _, err := q.Submit(Operation{Kind: kind}, out); !errors.Is(err, modem.ErrInvalidParameter) {
			t.Errorf("Kind %d: expected ErrInvalidParameter, got %v", kind, err)
		}
		out.wait(t)
		if _, errs := out.counts(); len(errs) != 1 || !errors.Is(errs[0], modem.ErrInvalidParameter) {
			t.Errorf("Kind %d: expected one ErrInvalidParameter delivery, got %v", kind, errs)
		}
	}
}

func TestEverySubmissionResolvesOnce(t *testing.T) {
	release := make(chan struct{})
	mock := &MockSession{CallFunc: func(Operation) error {
		<-release
		return nil
	}}
	q := NewQueue(mock, WithDepth(1))

	out := newOutcome()
	var refused int
	for i := 0; i < 4; i++ {
		if _, err := q.AcquireModemAsync(out); err != nil {
			refused++
		}
	}
	close(release)
	q.Close()
	if _, err := q.AcquireModemAsync(out); !errors.Is(err, modem.ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	refused++

	for i := 0; i < 5; i++ {
		out.wait(t)
	}
	completes, errs := out.counts()
	if completes+len(errs) != 5 {
		t.Errorf("Expected 5 deliveries, got %d completes and %d errors", completes, len(errs))
	}
	if len(errs) != refused {
		t.Errorf("Expected %d error deliveries, got %d", refused, len(errs))
	}
	for _, err := range errs {
		if code := modem.CodeOf(err); code != modem.ErrQueueFull && code != modem.ErrQueueClosed {
			t.Errorf("Expected QUEUE_FULL or QUEUE_CLOSED, got %v", err)
		}
	}

	select {
	case <-out.done:
		t.Error("Expected no extra delivery")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestOperationIDs(t *testing.T) {
	q := NewQueue(&MockSession{})
	defer q.Close()

	seen := make(map[OperationID]bool)
	for i := 0; i < 10; i++ {
		id, err := q.AcquireModemAsync(nil)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if _, err := uuid.Parse(string(id)); err != nil {
			t.Errorf("Expected a uuid, got %q", id)
		}
		if seen[id] {
			t.Errorf("Duplicate operation id %q", id)
		}
		seen[id] = true
	}
}

func TestAsyncWrappersForwardParameters(t *testing.T) {
	logs := modem.LogRequest{APLogSize: 4, BPLogSize: 0, BPLogTime: -1}
	tests := []struct {
		name     string
		submit   func(q *Queue) (OperationID, error)
		expected Operation
	}{
		{
			name:     "connect",
			submit:   func(q *Queue) (OperationID, error) { return q.ConnectAsync(nil, "name") },
			expected: Operation{Kind: modem.OpConnect, ClientName: "name"},
		},
		{
			name:     "reset default",
			submit:   func(q *Queue) (OperationID, error) { return q.ResetModemAsync(nil, "a", "b") },
			expected: Operation{Kind: modem.OpResetModem, Causes: []string{"a", "b"}, Logs: modem.ResetLogRequest()},
		},
		{
			name: "reset with logs",
			submit: func(q *Queue) (OperationID, error) {
				return q.ResetModemWithLogsAsync(nil, []string{"x"}, logs)
			},
			expected: Operation{Kind: modem.OpResetModem, Causes: []string{"x"}, Logs: logs},
		},
		{
			name: "notify",
			submit: func(q *Queue) (OperationID, error) {
				return q.NotifyDebugInfoAsync(nil, []string{"y"}, modem.DebugAPIMR, logs)
			},
			expected: Operation{Kind: modem.OpNotifyDebugInfo, Causes: []string{"y"}, DebugType: modem.DebugAPIMR, Logs: logs},
		},
		{
			name:     "disconnect",
			submit:   func(q *Queue) (OperationID, error) { return q.DisconnectAsync(nil) },
			expected: Operation{Kind: modem.OpDisconnect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockSession{}
			q := NewQueue(mock)
			if _, err := tt.submit(q); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			q.Close()

			calls := mock.Calls()
			if len(calls) != 1 {
				t.Fatalf("Expected 1 call, got %d", len(calls))
			}
			if !reflect.DeepEqual(calls[0], tt.expected) {
				t.Errorf("Expected %+v, got %+v", tt.expected, calls[0])
			}
		})
	}
}

func TestSubmitCopiesCauses(t *testing.T) {
	mock := &MockSession{}
	q := NewQueue(mock)

	causes := []string{"original"}
	_, _ = q.ResetModemWithLogsAsync(nil, causes, modem.NoLogRequest())
	causes[0] = "mutated"
	q.Close()

	if got := mock.Calls()[0].Causes[0]; got != "original" {
		t.Errorf("Expected causes captured at submit, got %q", got)
	}
}

func TestOperationEventsPublished(t *testing.T) {
	cfg := config.Baseline().Telemetry
	cfg.HeartbeatInterval = 0
	hub := telemetry.NewHub(cfg)
	defer hub.Stop()

	mock := &MockSession{CallFunc: func(op Operation) error {
		if op.Kind == modem.OpReleaseModem {
			return errors.New("BUSY")
		}
		return nil
	}}
	q := NewQueue(mock, WithHub(hub))

	acquireID, _ := q.AcquireModemAsync(nil)
	_, _ = q.ReleaseModemAsync(nil)
	q.Close()

	events := hub.Replay(1, 0)
	if len(events) != 2 {
		t.Fatalf("Expected 2 operation events, got %d", len(events))
	}
	if events[0].Data["operationId"] != string(acquireID) {
		t.Errorf("Expected operation id %s, got %v", acquireID, events[0].Data["operationId"])
	}
	if events[0].Data["outcome"] != "SUCCESS" {
		t.Errorf("Expected SUCCESS, got %v", events[0].Data["outcome"])
	}
	if events[1].Data["outcome"] != "ERROR" || events[1].Data["code"] != "BUSY" {
		t.Errorf("Expected ERROR/BUSY, got %v/%v", events[1].Data["outcome"], events[1].Data["code"])
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	ft := fake.NewFakeTransport()
	s := session.New(1, ft)
	if err := s.Connect(context.Background(), "client"); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer func() { _ = s.Disconnect(context.Background()) }()

	q := NewQueue(s, WithDepth(256))
	out := newOutcome()
	out.done = make(chan struct{}, 256)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := q.AcquireModemAsync(out); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := q.ReleaseModemAsync(out); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
	}
	wg.Wait()
	q.Close()

	completes, errs := out.counts()
	if completes != 100 || len(errs) != 0 {
		t.Errorf("Expected 100 completions, got %d completions and %d errors", completes, len(errs))
	}
	if ft.CallCount(modem.OpAcquireModem) != 50 || ft.CallCount(modem.OpReleaseModem) != 50 {
		t.Errorf("Expected 50 acquires and 50 releases on the transport")
	}
}
