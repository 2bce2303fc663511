package command

import (
	"context"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/session"
)

// SessionPort is the part of a session the queue drives.
type SessionPort interface {
	InstanceID() modem.InstanceID
	Connect(ctx context.Context, clientName string) error
	Disconnect(ctx context.Context) error
	AcquireModem(ctx context.Context) error
	ReleaseModem(ctx context.Context) error
	ResetModem(ctx context.Context, causes []string, logs modem.LogRequest) error
	UpdateModem(ctx context.Context) error
	ShutdownModem(ctx context.Context) error
	NotifyDebugInfo(ctx context.Context, causes []string, typ modem.DebugInfoType, logs modem.LogRequest) error
}

// Compile-time assertion that session.Session implements SessionPort
var _ SessionPort = (*session.Session)(nil)
