package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basket/goclaw-bridge/internal/shared"
)

func todayLogPath(home string) string {
	return filepath.Join(home, "logs", "bridge-"+time.Now().Format("2006-01-02")+".log")
}

func lastEntry(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		t.Fatalf("expected at least one log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("unmarshal log json: %v", err)
	}
	return entry
}

func TestNewLogger_WritesDailyFile(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "debug", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Info("transfer queued", "task_id", int64(7))

	entry := lastEntry(t, todayLogPath(home))
	for _, key := range []string{"timestamp", "level", "msg", "component"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing required key %q in log entry: %#v", key, entry)
		}
	}
	if entry["component"] != "bridge" {
		t.Fatalf("expected component=bridge, got %#v", entry["component"])
	}
	if entry["task_id"] != float64(7) {
		t.Fatalf("expected task_id propagation, got %#v", entry["task_id"])
	}
}

func TestNewLogger_RedactsSensitiveFields(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	logger.Info("login",
		"bot_token", "123456789:AAHdq3k2l1m0n9o8p7q6r5s4t3u2v1w0xyz",
		"request", "GET /auth?code=M4f6cdafe-0b1c-deadbeef",
	)

	entry := lastEntry(t, todayLogPath(home))
	if entry["bot_token"] != "[REDACTED]" {
		t.Fatalf("expected bot_token redaction, got %#v", entry["bot_token"])
	}
	if got, _ := entry["request"].(string); strings.Contains(got, "M4f6cdafe") {
		t.Fatalf("expected auth code redaction, got %q", got)
	}
}

func TestWithTrace(t *testing.T) {
	home := t.TempDir()
	logger, closer, err := NewLogger(home, "info", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closer.Close()

	ctx := shared.WithTraceID(context.Background(), "update-42")
	WithTrace(ctx, logger).Info("command dispatched")

	entry := lastEntry(t, todayLogPath(home))
	if entry["trace_id"] != "update-42" {
		t.Fatalf("expected trace_id=update-42, got %#v", entry["trace_id"])
	}
}

func TestDailyFile_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	f, err := openDailyFile(dir)
	if err != nil {
		t.Fatalf("open daily file: %v", err)
	}
	if _, err := f.Write([]byte("one\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f2, err := openDailyFile(dir)
	if err != nil {
		t.Fatalf("reopen daily file: %v", err)
	}
	defer f2.Close()
	if _, err := f2.Write([]byte("two\n")); err != nil {
		t.Fatalf("write after reopen: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "bridge-"+time.Now().Format("2006-01-02")+".log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "one\ntwo\n" {
		t.Fatalf("expected appended content, got %q", string(raw))
	}
}
