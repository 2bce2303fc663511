package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MDMCLI_"

// Load merges Baseline() + optional YAML file + env overrides (MDMCLI_*).
// An empty path falls back to $MDMCLI_CONFIG; a missing file is an error
// only when a path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Baseline()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile decodes a YAML file over cfg. Keys absent from the file keep
// their current values.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies MDMCLI_* environment variables to the config.
// Malformed values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if val, ok := lookupEnv("CLIENT_NAME"); ok {
		cfg.Client.Name = val
	}
	if err := envInt("CLIENT_INSTANCE", &cfg.Client.Instance); err != nil {
		return err
	}

	// Timing
	if err := envDuration("TIMING_CALL_TIMEOUT", &cfg.Timing.CallTimeout); err != nil {
		return err
	}
	if err := envDuration("TIMING_RESET_TIMEOUT", &cfg.Timing.ResetTimeout); err != nil {
		return err
	}
	if err := envDuration("TIMING_WAIT_TIMEOUT", &cfg.Timing.WaitTimeout); err != nil {
		return err
	}

	if err := envInt("QUEUE_DEPTH", &cfg.Queue.Depth); err != nil {
		return err
	}

	// Telemetry
	if err := envInt("TELEMETRY_BUFFER_SIZE", &cfg.Telemetry.BufferSize); err != nil {
		return err
	}
	if err := envInt("TELEMETRY_SUBSCRIBER_BUFFER", &cfg.Telemetry.SubscriberBuffer); err != nil {
		return err
	}
	if err := envDuration("TELEMETRY_HEARTBEAT_INTERVAL", &cfg.Telemetry.HeartbeatInterval); err != nil {
		return err
	}

	// Audit
	if err := envBool("AUDIT_ENABLED", &cfg.Audit.Enabled); err != nil {
		return err
	}
	if val, ok := lookupEnv("AUDIT_DIR"); ok {
		cfg.Audit.Dir = val
	}

	// Stub
	if err := envDuration("STUB_BOOT_DELAY", &cfg.Stub.BootDelay); err != nil {
		return err
	}
	if err := envBool("STUB_FAIL_OPEN", &cfg.Stub.FailOpen); err != nil {
		return err
	}

	// Logging
	if val, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = val
	}
	if val, ok := lookupEnv("LOG_FORMAT"); ok {
		cfg.Log.Format = val
	}
	if val, ok := lookupEnv("LOG_OUTPUTS"); ok {
		cfg.Log.Outputs = splitList(val)
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	val := os.Getenv(EnvPrefix + key)
	return val, val != ""
}

func envDuration(key string, dst *time.Duration) error {
	val, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	val, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	val, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
