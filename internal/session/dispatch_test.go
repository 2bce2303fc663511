package session

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/transport/stub"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code     modem.RawCode
		expected modem.Status
		known    bool
	}{
		{modem.RawDown, modem.StatusDown, true},
		{modem.RawOn, modem.StatusNone, false},
		{modem.RawUp, modem.StatusUp, true},
		{modem.RawOOS, modem.StatusDead, true},
		{modem.RawColdReset, modem.StatusNone, false},
		{modem.RawShutdown, modem.StatusNone, false},
		{modem.RawDebugInfo, modem.StatusNone, false},
		{modem.RawTLVSyncing, modem.StatusNone, false},
		{0, modem.StatusNone, false},
		{99, modem.StatusNone, false},
	}

	for _, tt := range tests {
		status, ok := MapStatus(tt.code)
		if status != tt.expected || ok != tt.known {
			t.Errorf("MapStatus(%d): expected (%s, %v), got (%s, %v)", tt.code, tt.expected, tt.known, status, ok)
		}
	}
}

func TestListenerReceivesMappedEvents(t *testing.T) {
	s, ft := newConnected(t)
	rec := &recorder{}
	s.Subscribe(rec)

	for _, code := range []modem.RawCode{3, 1, 4, 2, 5, 8, 3} {
		ft.Emit(code)
	}
	ft.Flush()

	expected := []modem.Status{modem.StatusUp, modem.StatusDown, modem.StatusDead, modem.StatusUp}
	if got := rec.Events(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if s.LastStatus() != modem.StatusUp {
		t.Errorf("Expected last status up, got %s", s.LastStatus())
	}
}

func TestSubscribeReplacesListener(t *testing.T) {
	s, ft := newConnected(t)
	first, second := &recorder{}, &recorder{}

	s.Subscribe(first)
	ft.Emit(modem.RawUp)
	ft.Flush()

	s.Subscribe(second)
	ft.Emit(modem.RawDown)
	ft.Flush()

	if got := first.Events(); !reflect.DeepEqual(got, []modem.Status{modem.StatusUp}) {
		t.Errorf("First listener: expected [up], got %v", got)
	}
	if got := second.Events(); !reflect.DeepEqual(got, []modem.Status{modem.StatusDown}) {
		t.Errorf("Second listener: expected [down], got %v", got)
	}
}

func TestSubscribeSameListenerTwice(t *testing.T) {
	s, ft := newConnected(t)
	rec := &recorder{}

	s.Subscribe(rec)
	s.Subscribe(rec)
	ft.Emit(modem.RawUp)
	ft.Flush()

	if got := len(rec.Events()); got != 1 {
		t.Errorf("Expected a single delivery, got %d", got)
	}
}

func TestSubscribeNilUnsubscribes(t *testing.T) {
	s, ft := newConnected(t)
	rec := &recorder{}

	s.Subscribe(rec)
	s.Subscribe(nil)
	ft.Emit(modem.RawUp)
	ft.Flush()

	if got := len(rec.Events()); got != 0 {
		t.Errorf("Expected no deliveries, got %d", got)
	}
	if s.LastStatus() != modem.StatusUp {
		t.Errorf("Expected last status tracked without a listener, got %s", s.LastStatus())
	}
}

func TestDisconnectClearsListener(t *testing.T) {
	s, ft := newConnected(t)
	ctx := context.Background()
	rec := &recorder{}
	s.Subscribe(rec)

	_ = s.Disconnect(ctx)
	if s.LastStatus() != modem.StatusNone {
		t.Errorf("Expected last status reset, got %s", s.LastStatus())
	}

	if err := s.Connect(ctx, "again"); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	ft.Emit(modem.RawUp)
	ft.Flush()

	if got := len(rec.Events()); got != 0 {
		t.Errorf("Expected cleared listener never called, got %d deliveries", got)
	}
}

type panicker struct{}

func (panicker) OnUp()   { panic("listener failure") }
func (panicker) OnDown() {}
func (panicker) OnDead() {}

func TestListenerPanicIsRecovered(t *testing.T) {
	s, ft := newConnected(t)
	s.Subscribe(panicker{})

	ft.Emit(modem.RawUp)
	ft.Flush()

	rec := &recorder{}
	s.Subscribe(rec)
	ft.Emit(modem.RawDown)
	ft.Flush()

	if got := rec.Events(); !reflect.DeepEqual(got, []modem.Status{modem.StatusDown}) {
		t.Errorf("Expected delivery to continue after panic, got %v", got)
	}
}

func TestListenerFuncs(t *testing.T) {
	s, ft := newConnected(t)

	var ups int
	s.Subscribe(modem.ListenerFuncs{Up: func() { ups++ }})
	ft.Emit(modem.RawUp)
	ft.Emit(modem.RawDown)
	ft.Flush()

	if ups != 1 {
		t.Errorf("Expected 1 up, got %d", ups)
	}
}

func TestListenerMayDisconnect(t *testing.T) {
	st := stub.NewStubTransport()
	s := New(1, st)
	ctx := context.Background()

	done := make(chan modem.Status, 1)
	s.Subscribe(modem.ListenerFuncs{Dead: func() {
		last := s.LastStatus()
		_ = s.Disconnect(ctx)
		done <- last
	}})

	if err := s.Connect(ctx, "client"); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	select {
	case last := <-done:
		if last != modem.StatusDead {
			t.Errorf("Expected dead seen from the listener, got %s", last)
		}
	case <-time.After(time.Second):
		t.Fatal("Disconnect from the listener did not return")
	}
	if s.State() != Disconnected {
		t.Errorf("Expected disconnected, got %s", s.State())
	}
	if st.IsOpen() {
		t.Error("Expected stub connection closed")
	}
}

func TestListenerMayCallOperations(t *testing.T) {
	s, ft := newConnected(t)

	errs := make(chan error, 1)
	s.Subscribe(modem.ListenerFuncs{Dead: func() {
		errs <- s.AcquireModem(context.Background())
	}})

	ft.Emit(modem.RawOOS)
	select {
	case err := <-errs:
		if err != nil {
			t.Errorf("Expected AcquireModem from the listener to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AcquireModem from the listener did not return")
	}
	if got := ft.CallCount(modem.OpAcquireModem); got != 1 {
		t.Errorf("Expected 1 acquire, got %d", got)
	}
}

func TestStaleConnectionStatusDropped(t *testing.T) {
	s, ft := newConnected(t)
	ctx := context.Background()

	s.dispatchMu.Lock()
	handler := s.statusHandler(s.gen)
	s.dispatchMu.Unlock()
	_ = s.Disconnect(ctx)
	if err := s.Connect(ctx, "again"); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	rec := &recorder{}
	s.Subscribe(rec)

	handler(modem.RawUp)
	if got := len(rec.Events()); got != 0 {
		t.Errorf("Expected status from the old connection dropped, got %d deliveries", got)
	}
	if s.LastStatus() != modem.StatusNone {
		t.Errorf("Expected last status untouched, got %s", s.LastStatus())
	}

	ft.Emit(modem.RawUp)
	ft.Flush()
	if got := rec.Events(); !reflect.DeepEqual(got, []modem.Status{modem.StatusUp}) {
		t.Errorf("Expected current connection delivered, got %v", got)
	}
}
