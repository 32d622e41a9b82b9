// Package telemetry builds the process logger: structured JSON lines,
// credential redaction on every attribute, and one log file per day so
// the retention sweep can age whole days out by modification time.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/basket/goclaw-bridge/internal/shared"
)

// dailyFile is an io.WriteCloser that appends to logs/bridge-YYYY-MM-DD.log,
// reopening under a new name on the first write after midnight.
type dailyFile struct {
	mu   sync.Mutex
	dir  string
	day  string
	file *os.File
}

func openDailyFile(dir string) (*dailyFile, error) {
	d := &dailyFile{dir: dir}
	if err := d.rotate(time.Now()); err != nil {
		return nil, err
	}
	return d, nil
}

// rotate must be called with mu held (or before the writer escapes).
func (d *dailyFile) rotate(now time.Time) error {
	day := now.Format("2006-01-02")
	if d.file != nil && day == d.day {
		return nil
	}
	if d.file != nil {
		_ = d.file.Close()
	}
	f, err := os.OpenFile(filepath.Join(d.dir, fmt.Sprintf("bridge-%s.log", day)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	d.file = f
	d.day = day
	return nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.rotate(time.Now()); err != nil {
		return 0, err
	}
	return d.file.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// NewLogger returns the process logger writing JSON lines to stdout and to
// the daily log file under homeDir/logs. quiet drops the stdout copy.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	file, err := openDailyFile(logDir)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer
	if quiet {
		w = file
	} else {
		w = io.MultiWriter(os.Stdout, file)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if shouldRedactKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}
			if a.Value.Kind() == slog.KindString {
				if redacted := shared.Redact(a.Value.String()); redacted != a.Value.String() {
					return slog.String(a.Key, redacted)
				}
			}
			return a
		},
	})
	logger := slog.New(handler).With("component", "bridge")
	return logger, file, nil
}

// WithTrace returns logger carrying the context's trace_id, so every line
// a command handler emits can be tied back to the inbound update.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	return logger.With("trace_id", shared.TraceID(ctx))
}

// shouldRedactKey blanks whole attributes whose key names credential
// material, regardless of the value's shape.
func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	sensitiveTokens := []string{"token", "secret", "password", "authorization", "bearer", "phone"}
	for _, token := range sensitiveTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
