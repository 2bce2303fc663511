package modem

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized error codes.
var (
	ErrTransportInit    = errors.New("TRANSPORT_INIT")
	ErrNoTransport      = errors.New("NO_TRANSPORT")
	ErrNotConnected     = errors.New("NOT_CONNECTED")
	ErrInvalidParameter = errors.New("INVALID_PARAMETER")
	ErrBusy             = errors.New("BUSY")
	ErrUnavailable      = errors.New("UNAVAILABLE")
	ErrTimeout          = errors.New("TIMEOUT")
	ErrInternal         = errors.New("INTERNAL")
	ErrSessionClosed    = errors.New("SESSION_CLOSED")
	ErrRegistryClosed   = errors.New("REGISTRY_CLOSED")
	ErrQueueClosed      = errors.New("QUEUE_CLOSED")
	ErrQueueFull        = errors.New("QUEUE_FULL")
)

// TokenMap lists the tokens that classify a transport failure.
type TokenMap struct {
	Busy        []string
	Unavailable []string
	Invalid     []string
	Timeout     []string
}

// TransportErrorTokens is the deterministic table used by ClientError.Code.
// Tokens are matched case-insensitively against the cause's message; unknown
// messages map to INTERNAL.
var TransportErrorTokens = TokenMap{
	Busy: []string{
		"BUSY",
		"EAGAIN",
		"RESOURCE TEMPORARILY UNAVAILABLE",
		"OPERATION_IN_PROGRESS",
	},
	Unavailable: []string{
		"UNAVAILABLE",
		"CONNECTION REFUSED",
		"BROKEN PIPE",
		"NOT_READY",
		"OFFLINE",
		"NO SUCH FILE",
	},
	Invalid: []string{
		"INVALID",
		"EINVAL",
		"OUT_OF_RANGE",
	},
	Timeout: []string{
		"TIMEOUT",
		"TIMED OUT",
		"DEADLINE EXCEEDED",
	},
}

// InitError reports that a transport could not be created for an instance.
type InitError struct {
	Instance InstanceID
	Cause    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%v: instance %d: %v", ErrTransportInit, e.Instance, e.Cause)
}

// Is makes errors.Is(err, ErrTransportInit) hold.
func (e *InitError) Is(target error) bool {
	return target == ErrTransportInit
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

// ClientError wraps a failure of a lifecycle call at the transport layer.
type ClientError struct {
	Op       OperationKind
	Instance InstanceID
	Cause    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s on instance %d failed: %v", e.Op, e.Instance, e.Cause)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Code returns the normalized code of the underlying cause.
func (e *ClientError) Code() error {
	return classify(e.Cause)
}

// NewClientError wraps cause unless it is nil or already a ClientError.
func NewClientError(op OperationKind, id InstanceID, cause error) error {
	if cause == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(cause, &ce) {
		return cause
	}
	return &ClientError{Op: op, Instance: id, Cause: cause}
}

// CodeOf returns the normalized code for any error, or nil for a nil error.
func CodeOf(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return classify(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrTransportInit, ErrNoTransport, ErrNotConnected, ErrInvalidParameter,
		ErrBusy, ErrUnavailable, ErrTimeout, ErrSessionClosed,
		ErrRegistryClosed, ErrQueueClosed, ErrQueueFull,
	} {
		if errors.Is(err, known) {
			return known
		}
	}

	msg := strings.ToUpper(err.Error())
	for _, token := range TransportErrorTokens.Timeout {
		if strings.Contains(msg, token) {
			return ErrTimeout
		}
	}
	for _, token := range TransportErrorTokens.Busy {
		if strings.Contains(msg, token) {
			return ErrBusy
		}
	}
	for _, token := range TransportErrorTokens.Unavailable {
		if strings.Contains(msg, token) {
			return ErrUnavailable
		}
	}
	for _, token := range TransportErrorTokens.Invalid {
		if strings.Contains(msg, token) {
			return ErrInvalidParameter
		}
	}
	return ErrInternal
}
