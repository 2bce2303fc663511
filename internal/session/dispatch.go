package session

import (
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/telemetry"
	"github.com/modem-control/mdmcli/internal/transport"
)

// MapStatus converts a raw service code into a semantic status. Codes other
// than DOWN, UP and DEAD report false.
func MapStatus(code modem.RawCode) (modem.Status, bool) {
	switch code {
	case modem.RawDown:
		return modem.StatusDown, true
	case modem.RawUp:
		return modem.StatusUp, true
	case modem.RawOOS:
		return modem.StatusDead, true
	default:
		return modem.StatusNone, false
	}
}

// Subscribe replaces the listener. A nil listener unsubscribes. A delivery
// already running may still reach the previous listener.
func (s *Session) Subscribe(l modem.Listener) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.listener = l
}

// LastStatus returns the last semantic status delivered on this connection.
// It is StatusNone after Connect and while a release, reset, update or
// shutdown is waiting for its first status.
func (s *Session) LastStatus() modem.Status {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.lastStatus
}

// HandleStatus delivers a raw code as if the current connection had
// reported it. Calls must not overlap, as with a transport's callbacks.
func (s *Session) HandleStatus(code modem.RawCode) {
	s.dispatchMu.Lock()
	gen := s.gen
	s.dispatchMu.Unlock()
	s.dispatch(gen, code)
}

// statusHandler returns the transport callback for connection gen.
func (s *Session) statusHandler(gen uint64) transport.StatusHandler {
	return func(code modem.RawCode) {
		s.dispatch(gen, code)
	}
}

func (s *Session) dispatch(gen uint64, code modem.RawCode) {
	status, ok := MapStatus(code)

	s.dispatchMu.Lock()
	if !s.live || gen != s.gen {
		s.dispatchMu.Unlock()
		s.logger.Debug("Dropping status from a closed connection", zap.Stringer("code", code))
		return
	}
	var l modem.Listener
	if ok {
		s.seq++
		s.lastStatus = status
		s.notifyWaitersLocked(status)
		l = s.listener
	}
	s.dispatchMu.Unlock()

	data := map[string]interface{}{"raw": int(code), "code": code.String()}
	if ok {
		data["status"] = status.String()
	}
	s.publish(telemetry.EventStatus, data)

	if !ok {
		s.logger.Debug("Ignoring status", zap.Stringer("code", code))
		return
	}
	if l == nil {
		return
	}

	var catcher panics.Catcher
	catcher.Try(func() { modem.Deliver(l, status) })
	if r := catcher.Recovered(); r != nil {
		s.logger.Error("Listener panicked",
			zap.Stringer("status", status),
			zap.Error(r.AsError()))
	}
}
