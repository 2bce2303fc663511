package session

import (
	"context"
	"fmt"
	"time"

	"github.com/modem-control/mdmcli/internal/modem"
)

// AcquireModem asks the service to power the modem for this client.
func (s *Session) AcquireModem(ctx context.Context) error {
	return s.invoke(ctx, modem.OpAcquireModem, s.callTimeout, nil, func(ctx context.Context) error {
		return s.transport.Acquire(ctx)
	})
}

// ReleaseModem drops this client's acquisition.
func (s *Session) ReleaseModem(ctx context.Context) error {
	return s.invoke(ctx, modem.OpReleaseModem, s.callTimeout, nil, func(ctx context.Context) error {
		return s.transport.Release(ctx)
	})
}

// ResetModem restarts the modem after an error. Causes are normalized so that
// nil and empty slices are equivalent.
func (s *Session) ResetModem(ctx context.Context, causes []string, logs modem.LogRequest) error {
	causes = modem.NormalizeCauses(causes)
	params := map[string]interface{}{"causes": causes, "logs": logs}

	if err := logs.Validate(); err != nil {
		return s.finish(ctx, modem.OpResetModem, s.ClientName(), params, err, time.Now())
	}
	return s.invoke(ctx, modem.OpResetModem, s.resetTimeout, params, func(ctx context.Context) error {
		return s.transport.Reset(ctx, causes, logs)
	})
}

// ResetModemDefault resets with the default reset log policy.
func (s *Session) ResetModemDefault(ctx context.Context, causes ...string) error {
	return s.ResetModem(ctx, causes, modem.ResetLogRequest())
}

// UpdateModem restarts the modem to apply a firmware update.
func (s *Session) UpdateModem(ctx context.Context) error {
	return s.invoke(ctx, modem.OpUpdateModem, s.resetTimeout, nil, func(ctx context.Context) error {
		return s.transport.Update(ctx)
	})
}

// ShutdownModem powers the modem off regardless of other clients.
func (s *Session) ShutdownModem(ctx context.Context) error {
	return s.invoke(ctx, modem.OpShutdownModem, s.callTimeout, nil, func(ctx context.Context) error {
		return s.transport.Shutdown(ctx)
	})
}

// NotifyDebugInfo reports a debug event to the service.
func (s *Session) NotifyDebugInfo(ctx context.Context, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) error {
	causes = modem.NormalizeCauses(causes)
	params := map[string]interface{}{"causes": causes, "type": int(typ), "logs": logs}

	if !typ.Valid() {
		err := fmt.Errorf("%w: debug info type %d", modem.ErrInvalidParameter, typ)
		return s.finish(ctx, modem.OpNotifyDebugInfo, s.ClientName(), params, err, time.Now())
	}
	if err := logs.Validate(); err != nil {
		return s.finish(ctx, modem.OpNotifyDebugInfo, s.ClientName(), params, err, time.Now())
	}
	return s.invoke(ctx, modem.OpNotifyDebugInfo, s.callTimeout, params, func(ctx context.Context) error {
		return s.transport.NotifyDebug(ctx, causes, typ, logs)
	})
}

// invoke checks the session preconditions and runs call against the
// transport while holding stateMu.
func (s *Session) invoke(ctx context.Context, op modem.OperationKind, timeout time.Duration, params map[string]interface{}, call func(context.Context) error) error {
	start := time.Now()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	client := s.clientName
	switch {
	case s.closed:
		return s.finish(ctx, op, client, params, modem.ErrSessionClosed, start)
	case s.transport == nil:
		return s.finish(ctx, op, client, params, modem.ErrNoTransport, start)
	case s.state != Connected:
		return s.finish(ctx, op, client, params, modem.ErrNotConnected, start)
	}

	callCtx, cancel := s.withTimeout(ctx, timeout)
	defer cancel()

	restore := s.forgetStatus(op)
	err := call(callCtx)
	if err != nil {
		restore()
	}
	return s.finish(ctx, op, client, params, err, start)
}

// forgetStatus clears the last status before a call that takes the modem
// down, so that a later wait only matches statuses reported after the call.
// The returned func puts the old status back if no status arrived since.
// Caller holds stateMu.
func (s *Session) forgetStatus(op modem.OperationKind) func() {
	switch op {
	case modem.OpReleaseModem, modem.OpResetModem, modem.OpUpdateModem, modem.OpShutdownModem:
	default:
		return func() {}
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	prev, seq := s.lastStatus, s.seq
	s.lastStatus = modem.StatusNone
	return func() {
		s.dispatchMu.Lock()
		defer s.dispatchMu.Unlock()
		if s.seq == seq {
			s.lastStatus = prev
		}
	}
}
