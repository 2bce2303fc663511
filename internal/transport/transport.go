package transport

import (
	"context"

	"github.com/modem-control/mdmcli/internal/modem"
)

// StatusHandler receives raw status codes from the service. Implementations
// must call it from a single goroutine per connection so that events are
// delivered in order.
type StatusHandler func(code modem.RawCode)

// Transport is the southbound contract of a session. Every blocking call takes
// a context; a transport must honour cancellation before starting work.
type Transport interface {
	// Open connects to the service as clientName for instance id and
	// registers onStatus for inbound events.
	Open(ctx context.Context, clientName string, id modem.InstanceID, onStatus StatusHandler) error

	// Close drops the connection. It is best-effort and safe to call twice.
	// Events not yet delivered are dropped. Close does not wait for a
	// StatusHandler call in progress, so the handler may call it.
	Close()

	// Acquire asks the service to power the modem for this client.
	Acquire(ctx context.Context) error

	// Release drops this client's acquisition.
	Release(ctx context.Context) error

	// Reset restarts the modem after an error. Causes are forwarded verbatim.
	Reset(ctx context.Context, causes []string, logs modem.LogRequest) error

	// Update restarts the modem to apply a firmware update.
	Update(ctx context.Context) error

	// NotifyDebug reports a debug event with optional log attachments.
	NotifyDebug(ctx context.Context, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) error

	// Shutdown powers the modem off regardless of other clients.
	Shutdown(ctx context.Context) error
}

// Factory builds the transport for one instance.
type Factory func(id modem.InstanceID) (Transport, error)
