package command

import "github.com/modem-control/mdmcli/internal/modem"

// ConnectAsync queues a Connect as clientName.
func (q *Queue) ConnectAsync(h modem.ResultHandler, clientName string) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpConnect, ClientName: clientName}, h)
}

// DisconnectAsync queues a Disconnect.
func (q *Queue) DisconnectAsync(h modem.ResultHandler) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpDisconnect}, h)
}

// AcquireModemAsync queues an AcquireModem.
func (q *Queue) AcquireModemAsync(h modem.ResultHandler) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpAcquireModem}, h)
}

// ReleaseModemAsync queues a ReleaseModem.
func (q *Queue) ReleaseModemAsync(h modem.ResultHandler) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpReleaseModem}, h)
}

// ResetModemAsync queues a reset with the default reset log policy.
func (q *Queue) ResetModemAsync(h modem.ResultHandler, causes ...string) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpResetModem, Causes: causes, Logs: modem.ResetLogRequest()}, h)
}

// ResetModemWithLogsAsync queues a reset with an explicit log request.
func (q *Queue) ResetModemWithLogsAsync(h modem.ResultHandler, causes []string, logs modem.LogRequest) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpResetModem, Causes: causes, Logs: logs}, h)
}

// UpdateModemAsync queues an UpdateModem.
func (q *Queue) UpdateModemAsync(h modem.ResultHandler) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpUpdateModem}, h)
}

// ShutdownModemAsync queues a ShutdownModem.
func (q *Queue) ShutdownModemAsync(h modem.ResultHandler) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpShutdownModem}, h)
}

// NotifyDebugInfoAsync queues a NotifyDebugInfo.
func (q *Queue) NotifyDebugInfoAsync(h modem.ResultHandler, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) (OperationID, error) {
	return q.Submit(Operation{Kind: modem.OpNotifyDebugInfo, Causes: causes, DebugType: typ, Logs: logs}, h)
}
