package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/goclaw-bridge/internal/config"
)

func TestLoadAppliesDefaultsWhenNoFile(t *testing.T) {
	home := t.TempDir()

	cfg, err := config.Load(home, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WorkerCount != 5 {
		t.Fatalf("expected default worker_count=5, got %d", cfg.WorkerCount)
	}
	if cfg.Storage.RootPath != "/" {
		t.Fatalf("expected default root path '/', got %q", cfg.Storage.RootPath)
	}
	if cfg.PacerJitterMin != 2700*time.Millisecond || cfg.PacerJitterMax != 3500*time.Millisecond {
		t.Fatalf("unexpected default pacer jitter: %v-%v", cfg.PacerJitterMin, cfg.PacerJitterMax)
	}
	if cfg.LogRetentionDays != 7 {
		t.Fatalf("expected default log_retention_days=7, got %d", cfg.LogRetentionDays)
	}
}

func TestLoadReadsConfigYAML(t *testing.T) {
	home := t.TempDir()
	body := "worker_count: 3\nauto_delete: true\nstorage:\n  root_path: /media\n  client_id: abc\n"
	if err := os.WriteFile(config.ConfigPath(home), []byte(body), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	cfg, err := config.Load(home, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WorkerCount != 3 {
		t.Fatalf("expected worker_count=3, got %d", cfg.WorkerCount)
	}
	if !cfg.AutoDelete {
		t.Fatal("expected auto_delete=true from file")
	}
	if cfg.Storage.RootPath != "/media" {
		t.Fatalf("expected root_path=/media, got %q", cfg.Storage.RootPath)
	}
	if cfg.Storage.ClientID != "abc" {
		t.Fatalf("expected client_id=abc, got %q", cfg.Storage.ClientID)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	body := "telegram:\n  bot_token: from-file\n"
	if err := os.WriteFile(config.ConfigPath(home), []byte(body), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	t.Setenv("GOCLAW_BRIDGE_BOT_TOKEN", "from-env")

	cfg, err := config.Load(home, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Fatalf("expected env to win over file, got %q", cfg.Telegram.BotToken)
	}
}

func TestLoadFlagsOverrideEnvAndFile(t *testing.T) {
	home := t.TempDir()
	body := "telegram:\n  bot_token: from-file\n"
	if err := os.WriteFile(config.ConfigPath(home), []byte(body), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	t.Setenv("GOCLAW_BRIDGE_BOT_TOKEN", "from-env")

	cfg, err := config.Load(home, []string{"-tg-bot-token", "from-flag"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Telegram.BotToken != "from-flag" {
		t.Fatalf("expected flag to win over env and file, got %q", cfg.Telegram.BotToken)
	}
}

func TestLoadParsesAllowedUsernamesFlag(t *testing.T) {
	home := t.TempDir()

	cfg, err := config.Load(home, []string{"-tg-user-name", "alice,bob"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.AllowedUser("alice") || !cfg.AllowedUser("Bob") {
		t.Fatalf("expected alice and bob to be allowed, got %v", cfg.Telegram.AllowNames)
	}
	if cfg.AllowedUser("carol") {
		t.Fatal("expected carol to be rejected by allow-list")
	}
}

func TestAllowedUserPermitsEveryoneWhenListEmpty(t *testing.T) {
	cfg := &config.Config{}
	if !cfg.AllowedUser("anyone") {
		t.Fatal("expected empty allow-list to permit everyone")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(config.ConfigPath(home), []byte("worker_count: [oops\n"), 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	if _, err := config.Load(home, nil); err == nil {
		t.Fatal("expected error parsing malformed config.yaml")
	}
}

func TestConfigPathJoinsHomeDir(t *testing.T) {
	got := config.ConfigPath(filepath.Join("a", "b"))
	want := filepath.Join("a", "b", "config.yaml")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadWorkerCountAndLogLevelFlags(t *testing.T) {
	home := t.TempDir()

	cfg, err := config.Load(home, []string{"-worker-count", "9", "-log-level", "debug"})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WorkerCount != 9 {
		t.Fatalf("expected worker_count=9, got %d", cfg.WorkerCount)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log_level=debug, got %q", cfg.LogLevel)
	}
}

func TestLoadConfigFlagRedirectsFileRead(t *testing.T) {
	home := t.TempDir()
	altDir := t.TempDir()
	altPath := filepath.Join(altDir, "alt.yaml")
	if err := os.WriteFile(altPath, []byte("worker_count: 11\n"), 0o644); err != nil {
		t.Fatalf("write alt config: %v", err)
	}

	cfg, err := config.Load(home, []string{"-config", altPath})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WorkerCount != 11 {
		t.Fatalf("expected worker_count=11 from --config override, got %d", cfg.WorkerCount)
	}
}
