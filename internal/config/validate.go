package config

import (
	"fmt"
	"strings"

	"github.com/modem-control/mdmcli/internal/modem"
)

// Validate enforces configuration rules. It also fills empty log settings
// with their defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateClient(cfg); err != nil {
		return fmt.Errorf("client validation failed: %w", err)
	}

	if err := validateTiming(cfg); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if cfg.Queue.Depth <= 0 {
		return fmt.Errorf("queue depth must be positive, got %d", cfg.Queue.Depth)
	}

	if err := validateTelemetry(cfg); err != nil {
		return fmt.Errorf("telemetry validation failed: %w", err)
	}

	if err := validateAudit(cfg); err != nil {
		return fmt.Errorf("audit validation failed: %w", err)
	}

	if cfg.Stub.BootDelay < 0 {
		return fmt.Errorf("stub boot delay must be non-negative, got %v", cfg.Stub.BootDelay)
	}

	if err := validateLog(cfg); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	return nil
}

// validateClient checks the client identity against service limits.
func validateClient(cfg *Config) error {
	if err := modem.ValidateClientName(cfg.Client.Name); err != nil {
		return err
	}
	if !cfg.InstanceID().Valid() {
		return fmt.Errorf("%w: instance must be positive, got %d", modem.ErrInvalidParameter, cfg.Client.Instance)
	}
	return nil
}

// validateTiming rejects negative timeouts. Zero disables a timeout.
func validateTiming(cfg *Config) error {
	if cfg.Timing.CallTimeout < 0 {
		return fmt.Errorf("call timeout must be non-negative, got %v", cfg.Timing.CallTimeout)
	}
	if cfg.Timing.ResetTimeout < 0 {
		return fmt.Errorf("reset timeout must be non-negative, got %v", cfg.Timing.ResetTimeout)
	}
	if cfg.Timing.WaitTimeout < 0 {
		return fmt.Errorf("wait timeout must be non-negative, got %v", cfg.Timing.WaitTimeout)
	}
	if cfg.Timing.CallTimeout > 0 && cfg.Timing.ResetTimeout > 0 && cfg.Timing.ResetTimeout < cfg.Timing.CallTimeout {
		return fmt.Errorf("reset timeout %v must be >= call timeout %v", cfg.Timing.ResetTimeout, cfg.Timing.CallTimeout)
	}
	return nil
}

// validateTelemetry validates event hub sizing.
func validateTelemetry(cfg *Config) error {
	if cfg.Telemetry.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", cfg.Telemetry.BufferSize)
	}
	if cfg.Telemetry.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber buffer must be positive, got %d", cfg.Telemetry.SubscriberBuffer)
	}
	if cfg.Telemetry.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat interval must be non-negative, got %v", cfg.Telemetry.HeartbeatInterval)
	}
	return nil
}

// validateAudit requires a directory when auditing is on.
func validateAudit(cfg *Config) error {
	if !cfg.Audit.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Audit.Dir) == "" {
		return fmt.Errorf("audit directory is required when audit is enabled")
	}
	if cfg.Audit.MaxSizeMB < 0 || cfg.Audit.MaxBackups < 0 || cfg.Audit.MaxAgeDays < 0 {
		return fmt.Errorf("audit rotation limits must be non-negative")
	}
	return nil
}

func validateLog(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %q", cfg.Log.Level)
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %q", cfg.Log.Format)
	}

	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stderr"}
	}
	return nil
}
