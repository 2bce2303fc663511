package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/modem-control/mdmcli/internal/audit"
	"github.com/modem-control/mdmcli/internal/command"
	"github.com/modem-control/mdmcli/internal/config"
	"github.com/modem-control/mdmcli/internal/logging"
	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/registry"
	"github.com/modem-control/mdmcli/internal/session"
	"github.com/modem-control/mdmcli/internal/telemetry"
	"github.com/modem-control/mdmcli/internal/transport/stub"
)

// runtime holds the components one command invocation uses.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	logCleanup func()
	hub        *telemetry.Hub
	audit      *audit.Logger
	registry   *registry.Registry
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	logger, logCleanup, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	rt := &runtime{
		cfg:        cfg,
		logger:     logger,
		logCleanup: logCleanup,
		hub:        telemetry.NewHub(cfg.Telemetry),
	}

	sessionOpts := []session.Option{
		session.WithCallTimeout(cfg.Timing.CallTimeout),
		session.WithResetTimeout(cfg.Timing.ResetTimeout),
	}
	if cfg.Audit.Enabled {
		rt.audit, err = audit.NewLogger(cfg.Audit.Dir, audit.Options{
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		})
		if err != nil {
			rt.hub.Stop()
			logCleanup()
			return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
		}
		sessionOpts = append(sessionOpts, session.WithAuditLogger(rt.audit))
	}

	factory := stub.NewFactory(
		stub.WithBootDelay(cfg.Stub.BootDelay),
		stub.WithFailOpen(cfg.Stub.FailOpen),
		stub.WithLogger(logger),
	)
	rt.registry = registry.New(factory,
		registry.WithLogger(logger),
		registry.WithHub(rt.hub),
		registry.WithSessionOptions(sessionOpts...),
		registry.WithQueueOptions(command.WithDepth(cfg.Queue.Depth)),
	)
	return rt, nil
}

// session returns the configured instance's session.
func (rt *runtime) session() (*session.Session, error) {
	return rt.registry.GetOrCreate(rt.cfg.InstanceID())
}

// queue returns the configured instance's async queue.
func (rt *runtime) queue() (*command.Queue, error) {
	return rt.registry.Queue(rt.cfg.InstanceID())
}

// Close tears down every component in reverse order of construction.
func (rt *runtime) Close(ctx context.Context) {
	if err := rt.registry.Close(ctx); err != nil {
		rt.logger.Warn("Registry close failed", zap.Error(err))
	}
	rt.hub.Stop()
	if rt.audit != nil {
		if err := rt.audit.Close(); err != nil {
			rt.logger.Warn("Audit logger close failed", zap.Error(err))
		}
	}
	rt.logCleanup()
}

// acquired connects s, subscribes l and acquires the modem, waiting until it
// is up. The returned release func undoes all of it.
func (rt *runtime) acquired(ctx context.Context, s *session.Session, l modem.Listener) (func(), error) {
	if err := s.Connect(ctx, rt.cfg.Client.Name); err != nil {
		return nil, err
	}
	s.Subscribe(l)

	disconnect := func() { _ = s.Disconnect(context.Background()) }

	if err := s.AcquireModem(ctx); err != nil {
		disconnect()
		return nil, err
	}
	up, err := s.WaitForModemStatus(ctx, modem.StatusUp, rt.cfg.Timing.WaitTimeout)
	if err == nil && !up {
		err = fmt.Errorf("%w: modem not up after %s", modem.ErrTimeout, rt.cfg.Timing.WaitTimeout)
	}
	if err != nil {
		_ = s.ReleaseModem(context.Background())
		disconnect()
		return nil, err
	}

	return func() {
		if err := s.ReleaseModem(context.Background()); err != nil {
			rt.logger.Warn("Release failed", zap.Error(err))
		}
		disconnect()
	}, nil
}
