// Package store holds the durable task queue: a single-file relational
// store whose rows track every transfer from insertion through completion
// or failure. The store is opened fresh on every process start (tasks are
// not meant to survive a restart — a stale resumable-upload-session URL is
// worse than a dropped transfer) but still exposes the status-reset
// operation the data model's resumable semantics call for, so the two
// startup behaviors can be exercised and tested independently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ReservedInvalidRoot is the cloud-storage folder that must never be used as
// a destination root: it is reserved for the provider's own app-only access
// scope and writes there are silently shadowed from the user's normal view.
const ReservedInvalidRoot = "/.approot"

type Store struct {
	db *sql.DB
}

// Open creates (or opens) the sqlite file at path, ensures the schema
// exists, and clears every row so the new process starts from an empty
// queue. It then runs ResetStuckTasks as a defensive, independently
// testable step — a no-op immediately after Truncate, but the same
// operation a future durable-queue mode could call without the truncate.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open task store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open task store: create directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Truncate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := s.ResetStuckTasks(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cmd_type TEXT NOT NULL CHECK(cmd_type IN ('file','link','url')),
			filename TEXT NOT NULL,
			root_path TEXT NOT NULL,
			url TEXT,
			upload_url TEXT NOT NULL,
			current_length INTEGER NOT NULL DEFAULT 0,
			total_length INTEGER NOT NULL DEFAULT 0,
			chat_id INTEGER NOT NULL,
			chat_bot_hex TEXT NOT NULL,
			chat_user_hex TEXT NOT NULL,
			chat_origin_hex TEXT,
			message_id INTEGER NOT NULL,
			message_indicator_id INTEGER NOT NULL,
			message_origin_id INTEGER,
			status TEXT NOT NULL CHECK(status IN ('waiting','fetched','started','completed','failed')),
			auto_delete INTEGER NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			trigger_text TEXT NOT NULL DEFAULT '',
			source_file_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, id);
		CREATE INDEX IF NOT EXISTS idx_tasks_chat_message ON tasks(chat_id, message_id);
	`)
	if err != nil {
		return fmt.Errorf("init task schema: %w", err)
	}
	return nil
}

// Truncate clears every row from the task table. Called once at Open.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks;`); err != nil {
		return fmt.Errorf("truncate tasks: %w", err)
	}
	return nil
}

// retryOnBusy retries f while sqlite reports the database as busy or
// locked, with bounded exponential backoff and jitter.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 20 * time.Millisecond
	const maxDelay = 200 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay/2) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - delay/4 + jitter):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}

// ValidateRootPath enforces the destination root rules: it must be absolute
// and must not be (or descend from) the reserved invalid folder.
func ValidateRootPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("root path %q must be absolute", path)
	}
	if path == ReservedInvalidRoot || strings.HasPrefix(path, ReservedInvalidRoot+"/") {
		return fmt.Errorf("root path %q is reserved and cannot be used as a destination", path)
	}
	return nil
}
