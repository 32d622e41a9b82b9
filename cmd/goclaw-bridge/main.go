// Command goclaw-bridge runs the chat-to-cloud-storage transfer bridge: it
// polls Telegram for commands and attachments, queues transfers in a
// durable task store, drives them through a bounded worker pool, and keeps
// a live per-chat progress message up to date until each transfer reaches
// Completed or Failed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/basket/goclaw-bridge/internal/aggregator"
	"github.com/basket/goclaw-bridge/internal/config"
	"github.com/basket/goclaw-bridge/internal/coordination"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/handlers"
	"github.com/basket/goclaw-bridge/internal/httpclient"
	"github.com/basket/goclaw-bridge/internal/logcleanup"
	"github.com/basket/goclaw-bridge/internal/oauthserver"
	bridgeotel "github.com/basket/goclaw-bridge/internal/otel"
	"github.com/basket/goclaw-bridge/internal/pacer"
	"github.com/basket/goclaw-bridge/internal/progress"
	"github.com/basket/goclaw-bridge/internal/scheduler"
	"github.com/basket/goclaw-bridge/internal/session"
	"github.com/basket/goclaw-bridge/internal/store"
	"github.com/basket/goclaw-bridge/internal/telegram"
	"github.com/basket/goclaw-bridge/internal/telemetry"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	homeDir := homeDirFromEnv()
	cfg, err := config.Load(homeDir, os.Args[1:])
	if err != nil {
		fatal(nil, "load config", err)
	}

	logger, logCloser, err := telemetry.NewLogger(homeDir, cfg.LogLevel, false)
	if err != nil {
		fatal(nil, "init logger", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	handlers.Version = Version

	otelProvider, err := bridgeotel.Init(ctx, bridgeotel.Config{Enabled: false})
	if err != nil {
		fatal(logger, "init tracing", err)
	}
	defer otelProvider.Shutdown(context.Background())

	tasks, err := store.Open(ctx, filepath.Join(homeDir, "tasks.db"))
	if err != nil {
		fatal(logger, "open task store", err)
	}
	defer tasks.Close()

	sessions, err := session.Open(ctx, filepath.Join(homeDir, "sessions.db"))
	if err != nil {
		fatal(logger, "open session store", err)
	}
	defer sessions.Close()

	// The transfer client accepts any TLS chain: this is a controlled local
	// deployment and source hosts are operator-chosen.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.InsecureSkipVerify = true
	httpClient := httpclient.WithDesktopUserAgent(httpclient.New(httpCfg))

	graphOAuth := graphclient.OAuthConfig{
		ClientID:     cfg.Storage.ClientID,
		ClientSecret: cfg.Storage.ClientSecret,
		RedirectURI:  cfg.ServerURL + "/auth",
	}

	oauthSrv := oauthserver.New(oauthserver.Config{
		Addr:    ":8443",
		CertDir: homeDir,
	})
	oauthHandle, err := oauthSrv.Run(ctx)
	if err != nil {
		fatal(logger, "start oauth callback server", err)
	}
	defer oauthHandle.Release()

	// The chat platform's login step and the logged-in "user" identity are
	// both represented by the same bot token here; see DESIGN.md for why a
	// real dual bot/user MTProto split isn't available in this build.
	botClient, err := telegram.NewClient(cfg.Telegram.BotToken, httpClient)
	if err != nil {
		fatal(logger, "log in to telegram", err)
	}

	pacerCfg := pacer.Config{JitterMin: cfg.PacerJitterMin, JitterMax: cfg.PacerJitterMax}
	botPacer := pacer.New(botClient, pacerCfg, logger)
	userPacer := pacer.New(botClient, pacerCfg, logger)
	go botPacer.Run(ctx)
	go userPacer.Run(ctx)

	logCleaner := logcleanup.New(logcleanup.Config{
		LogDir:        filepath.Join(homeDir, "logs"),
		RetentionDays: cfg.LogRetentionDays,
		Logger:        logger,
	})
	if err := logCleaner.Start(ctx); err != nil {
		fatal(logger, "start log cleaner", err)
	}

	view := progress.NewView()
	aborters := coordination.NewAborters()

	deps := handlers.Deps{
		Tasks:           tasks,
		Sessions:        sessions,
		View:            view,
		Aborters:        aborters,
		BotPacer:        botPacer,
		UserPacer:       userPacer,
		BotClient:       botClient,
		HTTPClient:      httpClient,
		GraphOAuth:      graphOAuth,
		OAuthSrv:        oauthSrv,
		LogCleaner:      logCleaner,
		AllowedUser:     cfg.AllowedUser,
		DefaultRootPath: cfg.Storage.RootPath,
		Logger:          logger,
		Tracer:          otelProvider.Tracer,
	}
	dispatcher := handlers.New(deps, cfg.AutoDelete)

	sched := scheduler.New(scheduler.Config{
		Store:        tasks,
		Dispatch:     dispatcher.Dispatch,
		Concurrency:  cfg.WorkerCount,
		IdleInterval: time.Second,
		Logger:       logger,
	})
	sched.Start(ctx)
	defer sched.Stop()

	agg := aggregator.New(aggregator.Config{
		Store:        tasks,
		View:         view,
		BotPacer:     botPacer,
		UserPacer:    userPacer,
		TickInterval: cfg.AggregatorTick,
		Logger:       logger,
	})
	agg.Start(ctx)
	defer agg.Stop()

	configWatcher := config.NewWatcher(homeDir, logger)
	if err := configWatcher.Start(ctx); err != nil {
		logger.Warn("config watcher: failed to start, hot-reload disabled", "error", err)
	} else {
		go watchConfigReloads(ctx, configWatcher, homeDir, dispatcher, logger)
	}

	poller := telegram.NewPoller(botClient, dispatcher.Handle, logger)
	pollErr := make(chan error, 1)
	go func() { pollErr <- poller.Run(ctx) }()

	logger.Info("goclaw-bridge started", "version", Version, "worker_count", cfg.WorkerCount)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-pollErr:
		if err != nil {
			logger.Error("telegram poller exited", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func homeDirFromEnv() string {
	if v := os.Getenv("GOCLAW_BRIDGE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".goclaw-bridge"
	}
	return filepath.Join(home, ".goclaw-bridge")
}

// watchConfigReloads re-reads config.yaml whenever configWatcher reports a
// change and applies the one setting that's safe to swap in live: the
// sender allow-list. Everything else the file controls (worker count,
// server url, pacer jitter, ...) only takes effect on the next restart.
func watchConfigReloads(ctx context.Context, w *config.Watcher, homeDir string, dispatcher *handlers.Dispatcher, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			cfg, err := config.Load(homeDir, nil)
			if err != nil {
				logger.Warn("config hot-reload: failed to reload, keeping current settings", "path", ev.Path, "error", err)
				continue
			}
			dispatcher.SetAllowedUser(cfg.AllowedUser)
			logger.Info("config hot-reload: allow-list refreshed", "path", ev.Path)
		}
	}
}

func fatal(logger *slog.Logger, action string, err error) {
	if logger != nil {
		logger.Error("startup failed", "action", action, "error", err)
	} else {
		fmt.Fprintf(os.Stderr, "startup failed: %s: %v\n", action, err)
	}
	os.Exit(1)
}
