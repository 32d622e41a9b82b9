// Package session stores the multi-account storage credentials a chat can
// switch between: each row is one linked cloud-storage account, and a
// single current_user row names which one is active for the chat's
// outbound transfers.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/shared"
	"github.com/basket/goclaw-bridge/internal/store"
)

// Account is one linked cloud-storage account's credentials and root path.
type Account struct {
	Username             string
	ExpirationTimestamp  int64
	AccessToken          string
	RefreshToken         string
	RootPath             string
}

// IsExpired reports whether the account's access token is expired or will
// expire within the next 60 seconds.
func (a Account) IsExpired() bool {
	return shared.ExpiringWithin(a.ExpirationTimestamp, 60)
}

// Store holds every linked account for one chat and tracks which is active.
type Store struct {
	db *sql.DB

	tempRootMu sync.Mutex
	tempRoot   *string
}

// Open creates (or opens) the session database at path and ensures its
// schema exists. Unlike the task store, sessions persist across restarts:
// a linked cloud account should survive a process bounce.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open session store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open session store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open session store: set pragma: %w", err)
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance statements (online
// backups, integrity checks) that have no place in the account API.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			username TEXT PRIMARY KEY,
			expiration_timestamp INTEGER NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			root_path TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS current_user (
			username TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("init session schema: %w", err)
	}
	return nil
}

// Save inserts a new account or updates an existing one with the same
// username.
func (s *Store) Save(ctx context.Context, acc Account) error {
	exists, err := s.userExists(ctx, acc.Username)
	if err != nil {
		return err
	}
	if exists {
		_, err := s.db.ExecContext(ctx, `
			UPDATE accounts SET expiration_timestamp = ?, access_token = ?, refresh_token = ?, root_path = ?
			WHERE username = ?
		`, acc.ExpirationTimestamp, acc.AccessToken, acc.RefreshToken, acc.RootPath, acc.Username)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, expiration_timestamp, access_token, refresh_token, root_path)
		VALUES (?, ?, ?, ?, ?)
	`, acc.Username, acc.ExpirationTimestamp, acc.AccessToken, acc.RefreshToken, acc.RootPath)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) userExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return n > 0, nil
}

// CurrentUsername returns the username of the active account, or "" if
// none is set.
func (s *Store) CurrentUsername(ctx context.Context) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM current_user LIMIT 1`).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current username: %w", err)
	}
	return username, nil
}

// Current returns the active account, or bridgeerr.Authorization if no
// account is linked yet — the chat-facing caller turns this into a "please log in"
// prompt.
func (s *Store) Current(ctx context.Context) (Account, error) {
	username, err := s.CurrentUsername(ctx)
	if err != nil {
		return Account{}, err
	}
	if username == "" {
		return Account{}, bridgeerr.Authorization("no storage account is linked")
	}
	return s.Get(ctx, username)
}

// Get returns the account with the given username.
func (s *Store) Get(ctx context.Context, username string) (Account, error) {
	var acc Account
	err := s.db.QueryRowContext(ctx, `
		SELECT username, expiration_timestamp, access_token, refresh_token, root_path
		FROM accounts WHERE username = ?
	`, username).Scan(&acc.Username, &acc.ExpirationTimestamp, &acc.AccessToken, &acc.RefreshToken, &acc.RootPath)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, bridgeerr.NotFound("storage account %q not found", username)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// Usernames returns every linked account's username.
func (s *Store) Usernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("list usernames: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetCurrentUser marks username as the active account, replacing whatever
// was active before. It is idempotent if username is already current.
func (s *Store) SetCurrentUser(ctx context.Context, username string) error {
	current, err := s.CurrentUsername(ctx)
	if err != nil {
		return err
	}
	if current == username {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM current_user;`); err != nil {
		return fmt.Errorf("clear current user: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO current_user (username) VALUES (?);`, username); err != nil {
		return fmt.Errorf("set current user: %w", err)
	}
	return nil
}

// ChangeAccount switches the active account to username, which must
// already be linked.
func (s *Store) ChangeAccount(ctx context.Context, username string) error {
	current, err := s.CurrentUsername(ctx)
	if err != nil {
		return err
	}
	if username == current {
		return nil
	}
	if _, err := s.Get(ctx, username); err != nil {
		return err
	}
	return s.SetCurrentUser(ctx, username)
}

// RemoveUser unlinks an account. If it is the currently active one, the
// next remaining account (if any) becomes active; if none remain, the
// store ends up with no current user.
func (s *Store) RemoveUser(ctx context.Context, username string) error {
	current, err := s.CurrentUsername(ctx)
	if err != nil {
		return err
	}
	wasCurrent := username == current

	if wasCurrent {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM current_user;`); err != nil {
			return fmt.Errorf("remove current user marker: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE username = ?;`, username); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}

	if !wasCurrent {
		return nil
	}

	remaining, err := s.Usernames(ctx)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		return nil
	}
	return s.SetCurrentUser(ctx, remaining[0])
}

// SetRootPath persists path as the active account's default root, used by
// "/dir $path". Distinct from SetTempRoot: this survives beyond the next
// task insertion.
func (s *Store) SetRootPath(ctx context.Context, path string) error {
	if err := store.ValidateRootPath(path); err != nil {
		return fmt.Errorf("set root path: %w", err)
	}
	acc, err := s.Current(ctx)
	if err != nil {
		return err
	}
	acc.RootPath = path
	return s.Save(ctx, acc)
}

// SetTempRoot installs a one-shot override of the active account's
// root_path, consumed by the next call to RootPath(true) — used by
// "/dir temp $path". ValidateRootPath runs up front so a bad path is
// rejected at command time rather than at the next upload.
func (s *Store) SetTempRoot(path string) error {
	if err := store.ValidateRootPath(path); err != nil {
		return fmt.Errorf("set temp root: %w", err)
	}
	s.tempRootMu.Lock()
	s.tempRoot = &path
	s.tempRootMu.Unlock()
	return nil
}

// CancelTempRoot clears any pending temp-root override without consuming
// it, used by "/dir temp cancel".
func (s *Store) CancelTempRoot() {
	s.tempRootMu.Lock()
	s.tempRoot = nil
	s.tempRootMu.Unlock()
}

// RootPath returns the destination root that should govern the next task
// insertion: a pending TempRoot override if one is set (cleared afterward
// when consumeTemp is true), otherwise the active account's persisted
// root_path.
func (s *Store) RootPath(ctx context.Context, consumeTemp bool) (string, error) {
	s.tempRootMu.Lock()
	temp := s.tempRoot
	if temp != nil && consumeTemp {
		s.tempRoot = nil
	}
	s.tempRootMu.Unlock()

	if temp != nil {
		return *temp, store.ValidateRootPath(*temp)
	}

	acc, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	if err := store.ValidateRootPath(acc.RootPath); err != nil {
		return "", fmt.Errorf("root path: %w", err)
	}
	return acc.RootPath, nil
}

// RefreshIfExpired rotates the active account's access token when it has
// expired or is about to, persisting the new token pair. It is a no-op
// when the current token is still valid.
func (s *Store) RefreshIfExpired(ctx context.Context, httpClient *http.Client, cfg graphclient.OAuthConfig) (Account, error) {
	acc, err := s.Current(ctx)
	if err != nil {
		return Account{}, err
	}
	if !acc.IsExpired() {
		return acc, nil
	}

	tok, err := graphclient.RefreshToken(ctx, httpClient, cfg, acc.RefreshToken)
	if err != nil {
		return Account{}, fmt.Errorf("refresh token: %w", err)
	}

	acc.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		acc.RefreshToken = tok.RefreshToken
	}
	acc.ExpirationTimestamp = graphclient.ExpirationTimestamp(tok.ExpiresIn)

	if err := s.Save(ctx, acc); err != nil {
		return Account{}, fmt.Errorf("refresh token: persist: %w", err)
	}
	return acc, nil
}
