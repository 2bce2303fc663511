package modem

import (
	"fmt"
	"strings"
)

// InstanceID identifies one modem instance managed by the service.
type InstanceID int

// DefaultInstance is the instance used when the application does not pick one.
const DefaultInstance InstanceID = 1

// MaxClientNameLen is the longest client name accepted by the service.
const MaxClientNameLen = 64

// MaxCauses is the largest number of cause strings forwarded to the service.
// Extra causes are dropped.
const MaxCauses = 12

// DefaultInstanceID returns the reserved default instance identifier.
func DefaultInstanceID() InstanceID {
	return DefaultInstance
}

// Valid reports whether the identifier can address a service instance.
func (id InstanceID) Valid() bool {
	return id > 0
}

// RawCode is a status code as reported by the modem management service.
type RawCode int

// Raw codes, aligned with mdm_cli.h.
const (
	RawDown       RawCode = 1
	RawOn         RawCode = 2
	RawUp         RawCode = 3
	RawOOS        RawCode = 4
	RawColdReset  RawCode = 5
	RawShutdown   RawCode = 6
	RawDebugInfo  RawCode = 7
	RawTLVSyncing RawCode = 8
)

// String returns the service-side name of the code.
func (c RawCode) String() string {
	switch c {
	case RawDown:
		return "MDM_DOWN"
	case RawOn:
		return "MDM_ON"
	case RawUp:
		return "MDM_UP"
	case RawOOS:
		return "MDM_OOS"
	case RawColdReset:
		return "MDM_COLD_RESET"
	case RawShutdown:
		return "MDM_SHUTDOWN"
	case RawDebugInfo:
		return "MDM_DBG_INFO"
	case RawTLVSyncing:
		return "MDM_TLV_SYNCING"
	default:
		return fmt.Sprintf("MDM_UNKNOWN(%d)", int(c))
	}
}

// Status is the semantic modem status delivered to listeners.
type Status int

const (
	StatusNone Status = iota
	StatusDown
	StatusUp
	StatusDead
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusDown:
		return "down"
	case StatusUp:
		return "up"
	case StatusDead:
		return "dead"
	default:
		return "none"
	}
}

// ParseStatus parses a status name as produced by Status.String.
func ParseStatus(name string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "up":
		return StatusUp, nil
	case "down":
		return StatusDown, nil
	case "dead", "oos":
		return StatusDead, nil
	default:
		return StatusNone, fmt.Errorf("%w: unknown modem status %q", ErrInvalidParameter, name)
	}
}

// LogSize is a log attachment size (MB) or duration (seconds).
// Negative one and zero are sentinels, see LogSizeDefault and LogSizeOmit.
type LogSize int

const (
	// LogSizeDefault lets the service pick the size.
	LogSizeDefault LogSize = -1
	// LogSizeOmit asks the service not to attach these logs.
	LogSizeOmit LogSize = 0
)

// Valid reports whether the value is a sentinel or a non-negative size.
func (l LogSize) Valid() bool {
	return l >= LogSizeDefault
}

// String renders sentinels by name.
func (l LogSize) String() string {
	switch l {
	case LogSizeDefault:
		return "default"
	case LogSizeOmit:
		return "omit"
	default:
		return fmt.Sprintf("%d", int(l))
	}
}

// LogRequest describes which logs the service attaches to a report.
type LogRequest struct {
	APLogSize LogSize `json:"apLogSize" yaml:"apLogSize"`
	BPLogSize LogSize `json:"bpLogSize" yaml:"bpLogSize"`
	BPLogTime LogSize `json:"bpLogTime" yaml:"bpLogTime"`
}

// DefaultLogRequest lets the service choose every log size.
func DefaultLogRequest() LogRequest {
	return LogRequest{APLogSize: LogSizeDefault, BPLogSize: LogSizeDefault, BPLogTime: LogSizeDefault}
}

// NoLogRequest attaches no logs at all.
func NoLogRequest() LogRequest {
	return LogRequest{APLogSize: LogSizeOmit, BPLogSize: LogSizeOmit, BPLogTime: LogSizeOmit}
}

// ResetLogRequest is the policy of a plain reset: AP logs at the service
// default size, no BP logs.
func ResetLogRequest() LogRequest {
	return LogRequest{APLogSize: LogSizeDefault, BPLogSize: LogSizeOmit, BPLogTime: LogSizeOmit}
}

// Validate checks every field of the request.
func (r LogRequest) Validate() error {
	if !r.APLogSize.Valid() {
		return fmt.Errorf("%w: apLogSize %d", ErrInvalidParameter, r.APLogSize)
	}
	if !r.BPLogSize.Valid() {
		return fmt.Errorf("%w: bpLogSize %d", ErrInvalidParameter, r.BPLogSize)
	}
	if !r.BPLogTime.Valid() {
		return fmt.Errorf("%w: bpLogTime %d", ErrInvalidParameter, r.BPLogTime)
	}
	return nil
}

// DebugInfoType classifies a debug report, aligned with mdm_cli_dbg.h.
type DebugInfoType int

const (
	DebugStats DebugInfoType = iota + 1
	DebugInfo
	DebugError
	DebugPlatformReboot
	DebugDumpStart
	DebugDumpEnd
	DebugDumpSkip
	DebugAPIMR
	DebugSelfReset
	DebugFWSuccess
	DebugFWFailure
	DebugTLVNone
	DebugTLVSuccess
	DebugTLVFailure
	DebugNVMBackupSuccess
	DebugNVMBackupFailure
	DebugCalUpdateSuccess
	DebugCalUpdateFailure
)

// Valid reports whether the type is known to the service.
func (t DebugInfoType) Valid() bool {
	return t >= DebugStats && t <= DebugCalUpdateFailure
}

// RestartCause tells the service why a restart is requested.
type RestartCause int

const (
	// RestartOOS is deprecated on the service side and never sent.
	RestartOOS RestartCause = iota + 1
	RestartModemError
	RestartApplyUpdate
)

// NormalizeCauses returns a non-nil copy of causes holding at most MaxCauses
// entries. A nil slice and an empty slice normalize to the same value.
func NormalizeCauses(causes []string) []string {
	n := len(causes)
	if n > MaxCauses {
		n = MaxCauses
	}
	out := make([]string, n)
	copy(out, causes[:n])
	return out
}

// ValidateClientName checks a name against the service limits.
func ValidateClientName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: client name is empty", ErrInvalidParameter)
	}
	if len(name) > MaxClientNameLen {
		return fmt.Errorf("%w: client name longer than %d bytes", ErrInvalidParameter, MaxClientNameLen)
	}
	return nil
}
