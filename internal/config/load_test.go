package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("MDMCLI_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Client.Name != "mdmcli" {
		t.Errorf("Client.Name = %q, want mdmcli", cfg.Client.Name)
	}
	if cfg.InstanceID() != 1 {
		t.Errorf("InstanceID = %d, want 1", cfg.InstanceID())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdmcli.yaml")
	content := `
client:
  name: telephony
  instance: 2
timing:
  callTimeout: 3s
  resetTimeout: 45s
queue:
  depth: 8
stub:
  bootDelay: 50ms
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) failed: %v", path, err)
	}

	if cfg.Client.Name != "telephony" || cfg.Client.Instance != 2 {
		t.Errorf("Client = %+v, want telephony/2", cfg.Client)
	}
	if cfg.Timing.CallTimeout != 3*time.Second {
		t.Errorf("CallTimeout = %v, want 3s", cfg.Timing.CallTimeout)
	}
	if cfg.Timing.ResetTimeout != 45*time.Second {
		t.Errorf("ResetTimeout = %v, want 45s", cfg.Timing.ResetTimeout)
	}
	if cfg.Timing.WaitTimeout != 20*time.Second {
		t.Errorf("WaitTimeout = %v, want baseline 20s", cfg.Timing.WaitTimeout)
	}
	if cfg.Queue.Depth != 8 {
		t.Errorf("Queue.Depth = %d, want 8", cfg.Queue.Depth)
	}
	if cfg.Stub.BootDelay != 50*time.Millisecond {
		t.Errorf("Stub.BootDelay = %v, want 50ms", cfg.Stub.BootDelay)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MDMCLI_CONFIG", "")
	t.Setenv("MDMCLI_CLIENT_NAME", "env-client")
	t.Setenv("MDMCLI_CLIENT_INSTANCE", "3")
	t.Setenv("MDMCLI_TIMING_CALL_TIMEOUT", "2s")
	t.Setenv("MDMCLI_QUEUE_DEPTH", "4")
	t.Setenv("MDMCLI_AUDIT_ENABLED", "true")
	t.Setenv("MDMCLI_AUDIT_DIR", "/tmp/audit")
	t.Setenv("MDMCLI_LOG_OUTPUTS", "stdout, /tmp/mdmcli.log")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() with env overrides failed: %v", err)
	}

	if cfg.Client.Name != "env-client" || cfg.Client.Instance != 3 {
		t.Errorf("Client = %+v, want env-client/3", cfg.Client)
	}
	if cfg.Timing.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v, want 2s", cfg.Timing.CallTimeout)
	}
	if cfg.Queue.Depth != 4 {
		t.Errorf("Queue.Depth = %d, want 4", cfg.Queue.Depth)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Dir != "/tmp/audit" {
		t.Errorf("Audit = %+v, want enabled in /tmp/audit", cfg.Audit)
	}
	if len(cfg.Log.Outputs) != 2 || cfg.Log.Outputs[1] != "/tmp/mdmcli.log" {
		t.Errorf("Log.Outputs = %v", cfg.Log.Outputs)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdmcli.yaml")
	if err := os.WriteFile(path, []byte("queue:\n  depth: 8\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("MDMCLI_CONFIG", path)
	t.Setenv("MDMCLI_QUEUE_DEPTH", "16")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Queue.Depth != 16 {
		t.Errorf("Queue.Depth = %d, want env value 16", cfg.Queue.Depth)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("queue: [unterminated"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	badValue := filepath.Join(dir, "bad-value.yaml")
	if err := os.WriteFile(badValue, []byte("queue:\n  depth: -1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{name: "missing_explicit_file", path: filepath.Join(dir, "missing.yaml")},
		{name: "malformed_yaml", path: invalid},
		{name: "invalid_value", path: badValue},
		{name: "malformed_env_duration", env: map[string]string{"MDMCLI_TIMING_CALL_TIMEOUT": "soon"}},
		{name: "malformed_env_bool", env: map[string]string{"MDMCLI_STUB_FAIL_OPEN": "perhaps"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MDMCLI_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(tt.path); err == nil {
				t.Error("Expected Load() to fail")
			}
		})
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("MDMCLI_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(""); err != nil {
		t.Errorf("Expected missing $MDMCLI_CONFIG file to be ignored, got %v", err)
	}
}
