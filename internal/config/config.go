// Package config loads the bridge's configuration: a YAML file for durable
// settings, CLI flags and environment variables for secrets and per-run
// overrides, flags and env winning over the file.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the chat-platform credentials and allow-list.
type TelegramConfig struct {
	BotToken   string   `yaml:"bot_token"`
	APIID      string   `yaml:"api_id"`
	APIHash    string   `yaml:"api_hash"`
	UserPhone  string   `yaml:"user_phone"`
	UserPass   string   `yaml:"user_password"`
	AllowNames []string `yaml:"allowed_usernames"`
}

// StorageConfig holds the cloud-provider OAuth client and default root.
type StorageConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RootPath     string `yaml:"root_path"`
}

// Config is the bridge's full runtime configuration.
type Config struct {
	HomeDir string `yaml:"-"`

	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`

	ServerURL        string        `yaml:"server_url"`
	AutoDelete       bool          `yaml:"auto_delete"`
	WorkerCount      int           `yaml:"worker_count"`
	PacerJitterMin   time.Duration `yaml:"pacer_jitter_min"`
	PacerJitterMax   time.Duration `yaml:"pacer_jitter_max"`
	AggregatorTick   time.Duration `yaml:"aggregator_tick"`
	LogLevel         string        `yaml:"log_level"`
	LogRetentionDays int           `yaml:"log_retention_days"`
}

func defaults(homeDir string) Config {
	return Config{
		HomeDir:          homeDir,
		Storage:          StorageConfig{RootPath: "/"},
		WorkerCount:      5,
		PacerJitterMin:   2700 * time.Millisecond,
		PacerJitterMax:   3500 * time.Millisecond,
		AggregatorTick:   3 * time.Second,
		LogLevel:         "info",
		LogRetentionDays: 7,
	}
}

// ConfigPath returns the path to config.yaml within homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml (from homeDir, or from the path named by a
// --config flag in args, which takes priority), then overlays environment
// variables and the given CLI flags, in that precedence order (flags
// last, winning over everything).
func Load(homeDir string, args []string) (*Config, error) {
	cfg := defaults(homeDir)

	path := configPathFromArgs(args, homeDir)
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
		cfg.HomeDir = homeDir
	}

	applyEnv(&cfg)

	if err := applyFlags(&cfg, args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	return &cfg, nil
}

// configPathFromArgs scans args for "--config"/"-config" (either
// "--config=path" or "--config path" form) ahead of the full flag.Parse
// pass in applyFlags, since the config file must be read before flags are
// overlaid onto it.
func configPathFromArgs(args []string, homeDir string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ConfigPath(homeDir)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GOCLAW_BRIDGE_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("GOCLAW_BRIDGE_OD_CLIENT_SECRET"); v != "" {
		cfg.Storage.ClientSecret = v
	}
}

func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("goclaw-bridge", flag.ContinueOnError)

	botToken := fs.String("tg-bot-token", cfg.Telegram.BotToken, "bot credential")
	apiID := fs.String("tg-api-id", cfg.Telegram.APIID, "chat platform app id")
	apiHash := fs.String("tg-api-hash", cfg.Telegram.APIHash, "chat platform app hash")
	userPhone := fs.String("tg-user-phone", cfg.Telegram.UserPhone, "user login phone")
	userPass := fs.String("tg-user-password", cfg.Telegram.UserPass, "user login password")
	userNames := fs.String("tg-user-name", strings.Join(cfg.Telegram.AllowNames, ","), "comma-separated allow-list of usernames")
	odClientID := fs.String("od-client-id", cfg.Storage.ClientID, "cloud provider oauth client id")
	odClientSecret := fs.String("od-client-secret", cfg.Storage.ClientSecret, "cloud provider oauth client secret")
	odRootPath := fs.String("od-root-path", cfg.Storage.RootPath, "default root folder")
	serverURL := fs.String("server-url", cfg.ServerURL, "public url of the oauth callback")
	autoDelete := fs.Bool("auto-delete", cfg.AutoDelete, "enable auto-delete at startup")
	workerCount := fs.Int("worker-count", cfg.WorkerCount, "max concurrent transfers")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	// configPathFromArgs already consumed --config to pick which file to
	// read; it must still be registered here so flag.Parse doesn't reject
	// it as unknown.
	fs.String("config", ConfigPath(cfg.HomeDir), "path to config.yaml")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Telegram.BotToken = *botToken
	cfg.Telegram.APIID = *apiID
	cfg.Telegram.APIHash = *apiHash
	cfg.Telegram.UserPhone = *userPhone
	cfg.Telegram.UserPass = *userPass
	if *userNames != "" {
		cfg.Telegram.AllowNames = strings.Split(*userNames, ",")
	}
	cfg.Storage.ClientID = *odClientID
	cfg.Storage.ClientSecret = *odClientSecret
	cfg.Storage.RootPath = *odRootPath
	cfg.ServerURL = *serverURL
	cfg.AutoDelete = *autoDelete
	cfg.WorkerCount = *workerCount
	cfg.LogLevel = *logLevel

	return nil
}

// AllowedUser reports whether username is present in the allow-list. An
// empty allow-list permits everyone.
func (c Config) AllowedUser(username string) bool {
	if len(c.Telegram.AllowNames) == 0 {
		return true
	}
	for _, name := range c.Telegram.AllowNames {
		if strings.EqualFold(strings.TrimSpace(name), username) {
			return true
		}
	}
	return false
}
