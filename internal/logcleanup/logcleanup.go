// Package logcleanup runs the daily log-rotation retention sweep: once a
// day it deletes rotated log files older than a configured retention
// window from the bridge's log directory.
package logcleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Config configures the cleaner.
type Config struct {
	// LogDir is the directory rotated daily log files are written to.
	LogDir string
	// RetentionDays is how many days of logs to keep.
	RetentionDays int
	// Schedule is a standard 5-field cron expression naming when the
	// sweep runs. Defaults to "@daily".
	Schedule string
	Logger   *slog.Logger
}

// Cleaner wraps a robfig/cron scheduler running one job: the retention
// sweep over Config.LogDir.
type Cleaner struct {
	cfg  Config
	cron *cronlib.Cron
}

// New returns a Cleaner ready to Start. RetentionDays and Schedule
// default to 7 and "@daily" when zero/empty.
func New(cfg Config) *Cleaner {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cleaner{cfg: cfg, cron: cronlib.New()}
}

// Start registers the daily sweep and begins the cron scheduler, stopping
// it when ctx is canceled. Returns an error only if the schedule
// expression fails to parse.
func (c *Cleaner) Start(ctx context.Context) error {
	_, err := c.cron.AddFunc(c.cfg.Schedule, func() {
		if err := c.Sweep(time.Now()); err != nil {
			c.cfg.Logger.Warn("logcleanup: sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("logcleanup: register schedule %q: %w", c.cfg.Schedule, err)
	}

	c.cron.Start()
	go func() {
		<-ctx.Done()
		<-c.cron.Stop().Done()
	}()
	return nil
}

// Sweep deletes every regular file directly under LogDir whose
// modification time is older than RetentionDays relative to now.
func (c *Cleaner) Sweep(now time.Time) error {
	entries, err := os.ReadDir(c.cfg.LogDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("logcleanup: read log dir: %w", err)
	}

	cutoff := now.AddDate(0, 0, -c.cfg.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			c.cfg.Logger.Warn("logcleanup: stat failed", "name", entry.Name(), "error", err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(c.cfg.LogDir, entry.Name())
		if err := os.Remove(path); err != nil {
			c.cfg.Logger.Warn("logcleanup: remove failed", "path", path, "error", err)
			continue
		}
		c.cfg.Logger.Info("logcleanup: removed expired log", "path", path)
	}
	return nil
}
