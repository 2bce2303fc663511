package modem

// Listener receives semantic modem events. At most one listener is subscribed
// to a session at a time. Methods are called on the transport's delivery
// goroutine with no session lock held and may call back into the session.
// A method that blocks delays every later event.
type Listener interface {
	OnUp()
	OnDown()
	OnDead()
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Up   func()
	Down func()
	Dead func()
}

func (l ListenerFuncs) OnUp() {
	if l.Up != nil {
		l.Up()
	}
}

func (l ListenerFuncs) OnDown() {
	if l.Down != nil {
		l.Down()
	}
}

func (l ListenerFuncs) OnDead() {
	if l.Dead != nil {
		l.Dead()
	}
}

// Deliver invokes the listener method matching status. StatusNone is ignored.
func Deliver(l Listener, status Status) {
	if l == nil {
		return
	}
	switch status {
	case StatusUp:
		l.OnUp()
	case StatusDown:
		l.OnDown()
	case StatusDead:
		l.OnDead()
	}
}

// ResultHandler receives the outcome of an asynchronous operation. Exactly
// one of its methods is called, exactly once.
type ResultHandler interface {
	OnComplete()
	OnError(cause error)
}

// ResultFuncs adapts plain functions to ResultHandler. Nil fields are skipped.
type ResultFuncs struct {
	Complete func()
	Error    func(cause error)
}

func (r ResultFuncs) OnComplete() {
	if r.Complete != nil {
		r.Complete()
	}
}

func (r ResultFuncs) OnError(cause error) {
	if r.Error != nil {
		r.Error(cause)
	}
}

// Result is the outcome of an operation: complete when Err is nil.
type Result struct {
	Err error
}

// Complete reports whether the operation succeeded.
func (r Result) Complete() bool {
	return r.Err == nil
}

// Deliver hands the result to h.
func (r Result) Deliver(h ResultHandler) {
	if h == nil {
		return
	}
	if r.Err != nil {
		h.OnError(r.Err)
		return
	}
	h.OnComplete()
}
