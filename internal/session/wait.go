package session

import (
	"context"
	"time"

	"github.com/modem-control/mdmcli/internal/modem"
)

type waiter struct {
	status modem.Status
	ch     chan bool
}

// WaitForModemStatus blocks until status is delivered, timeout elapses or ctx
// ends. It reports true immediately when status is already the last one
// delivered; a release, reset, update or shutdown forgets the last status, so
// a wait issued after one of them only matches what the modem reports next.
// A non-positive timeout waits for ctx only.
//
// It returns (false, nil) on timeout and (false, ctx.Err()) on cancellation.
// A Disconnect while waiting returns ErrNotConnected.
func (s *Session) WaitForModemStatus(ctx context.Context, status modem.Status, timeout time.Duration) (bool, error) {
	if status == modem.StatusNone {
		return false, modem.ErrInvalidParameter
	}

	s.dispatchMu.Lock()
	if !s.live {
		s.dispatchMu.Unlock()
		return false, modem.ErrNotConnected
	}
	if s.lastStatus == status {
		s.dispatchMu.Unlock()
		return true, nil
	}
	w := &waiter{status: status, ch: make(chan bool, 1)}
	s.waiters[w] = struct{}{}
	s.dispatchMu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ok := <-w.ch:
		if !ok {
			return false, modem.ErrNotConnected
		}
		return true, nil
	case <-expired:
		s.dropWaiter(w)
		return false, nil
	case <-ctx.Done():
		s.dropWaiter(w)
		return false, ctx.Err()
	}
}

func (s *Session) dropWaiter(w *waiter) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	delete(s.waiters, w)
}

// notifyWaitersLocked wakes waiters for status. Caller holds dispatchMu.
func (s *Session) notifyWaitersLocked(status modem.Status) {
	for w := range s.waiters {
		if w.status == status {
			w.ch <- true
			delete(s.waiters, w)
		}
	}
}

// releaseWaitersLocked wakes every waiter with ok. Caller holds dispatchMu.
func (s *Session) releaseWaitersLocked(ok bool) {
	for w := range s.waiters {
		w.ch <- ok
		delete(s.waiters, w)
	}
}
