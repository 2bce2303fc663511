package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/modem-control/mdmcli/internal/modem"
)

// FileName is the audit file created inside the log directory.
const FileName = "audit.jsonl"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time              `json:"ts"`
	Client    string                 `json:"client"`
	Instance  int                    `json:"instance"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	Error     string                 `json:"error,omitempty"`
	LatencyMs int64                  `json:"latencyMs"`
}

// Options controls file rotation. Zero values use lumberjack defaults.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
}

type clientKey struct{}

// WithClient attaches the acting client name to ctx for audit records.
func WithClient(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, clientKey{}, name)
}

// ClientFromContext returns the client name stored by WithClient.
func ClientFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(clientKey{}).(string); ok && name != "" {
		return name
	}
	return "unknown"
}

// NewLogger creates an audit logger writing to logDir/audit.jsonl.
func NewLogger(logDir string, opts Options) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, FileName)

	// Create the file eagerly so a bad directory fails here rather than on
	// the first record.
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}, nil
}

// LogOperation records one lifecycle call. A nil err is a success.
func (l *Logger) LogOperation(ctx context.Context, action string, instance modem.InstanceID, params map[string]interface{}, err error, latency time.Duration) {
	entry := AuditEntry{
		Timestamp: time.Now().UTC(),
		Client:    ClientFromContext(ctx),
		Instance:  int(instance),
		Action:    action,
		Params:    params,
		Outcome:   "SUCCESS",
		Code:      "SUCCESS",
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		entry.Outcome = "ERROR"
		entry.Code = CodeFromError(err)
		entry.Error = err.Error()
	}

	l.writeEntry(entry)
}

// CodeFromError maps an error to the normalized code name.
func CodeFromError(err error) string {
	code := modem.CodeOf(err)
	if code == nil {
		return "SUCCESS"
	}
	return code.Error()
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry AuditEntry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Close closes the audit logger and its file. Later records are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate closes the current file, renames it with a timestamp and opens a
// fresh one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return fmt.Errorf("audit logger is closed")
	}
	if err := l.out.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}
