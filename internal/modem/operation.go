package modem

// OperationKind names a lifecycle operation of a session.
type OperationKind int

const (
	OpConnect OperationKind = iota + 1
	OpDisconnect
	OpAcquireModem
	OpReleaseModem
	OpResetModem
	OpUpdateModem
	OpShutdownModem
	OpNotifyDebugInfo
)

// String returns the camel-cased operation name used in logs and audit records.
func (k OperationKind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpDisconnect:
		return "disconnect"
	case OpAcquireModem:
		return "acquireModem"
	case OpReleaseModem:
		return "releaseModem"
	case OpResetModem:
		return "resetModem"
	case OpUpdateModem:
		return "updateModem"
	case OpShutdownModem:
		return "shutdownModem"
	case OpNotifyDebugInfo:
		return "notifyDebugInfo"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known operation.
func (k OperationKind) Valid() bool {
	return k >= OpConnect && k <= OpNotifyDebugInfo
}
