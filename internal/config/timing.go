package config

import (
	"time"

	"github.com/modem-control/mdmcli/internal/modem"
)

// Config is the root configuration.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	Timing    TimingConfig    `yaml:"timing"`
	Queue     QueueConfig     `yaml:"queue"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Audit     AuditConfig     `yaml:"audit"`
	Stub      StubConfig      `yaml:"stub"`
	Log       LogConfig       `yaml:"log"`
}

// ClientConfig identifies this client to the service.
type ClientConfig struct {
	Name     string `yaml:"name"`
	Instance int    `yaml:"instance"`
}

// TimingConfig holds the client-side call timeouts. A zero value disables
// the corresponding timeout.
type TimingConfig struct {
	// CallTimeout bounds connect, acquire, release, shutdown and debug reports.
	CallTimeout time.Duration `yaml:"callTimeout"`
	// ResetTimeout bounds reset and update, which restart the modem.
	ResetTimeout time.Duration `yaml:"resetTimeout"`
	// WaitTimeout is the default for waiting on a modem status.
	WaitTimeout time.Duration `yaml:"waitTimeout"`
}

// QueueConfig sizes the async operation queue of each session.
type QueueConfig struct {
	Depth int `yaml:"depth"`
}

// TelemetryConfig sizes the event hub.
type TelemetryConfig struct {
	BufferSize        int           `yaml:"bufferSize"`
	SubscriberBuffer  int           `yaml:"subscriberBuffer"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

// AuditConfig controls the JSONL audit trail.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// StubConfig tunes the simulated service.
type StubConfig struct {
	BootDelay time.Duration `yaml:"bootDelay"`
	FailOpen  bool          `yaml:"failOpen"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: console or json
	Format string `yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `yaml:"outputs"`
	Rotation    RotationConfig `yaml:"rotation"`
	Development bool           `yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `yaml:"enable"`
	MaxSizeMB  int  `yaml:"maxSizeMb"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
}

// Baseline returns the built-in configuration.
func Baseline() *Config {
	return &Config{
		Client: ClientConfig{
			Name:     "mdmcli",
			Instance: int(modem.DefaultInstance),
		},
		Timing: TimingConfig{
			CallTimeout:  10 * time.Second,
			ResetTimeout: 30 * time.Second,
			WaitTimeout:  20 * time.Second,
		},
		Queue: QueueConfig{
			Depth: 32,
		},
		Telemetry: TelemetryConfig{
			BufferSize:        50,
			SubscriberBuffer:  100,
			HeartbeatInterval: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Stub: StubConfig{
			BootDelay: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// InstanceID returns the configured instance as a typed identifier.
func (c *Config) InstanceID() modem.InstanceID {
	return modem.InstanceID(c.Client.Instance)
}
