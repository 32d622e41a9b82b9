// session_backup_drill verifies that the account store (the one sqlite
// file that must survive restarts) can be backed up online with VACUUM
// INTO and reopened from the copy with every linked account, the active
// user pointer, and the token triple intact. It also checks the
// remove-current-user cascade against the restored copy.
//
// Usage:
//
//	go run ./tools/verify/session_backup_drill/
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/basket/goclaw-bridge/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("VERDICT PASS (session_backup_drill)")
}

func run() error {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "session-backup-drill-*")
	if err != nil {
		return fmt.Errorf("mktemp: %w", err)
	}
	defer os.RemoveAll(dir)

	dbPath := filepath.Join(dir, "session.db")
	backupPath := filepath.Join(dir, "backup.db")
	restorePath := filepath.Join(dir, "restore.db")

	s, err := session.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer s.Close()

	accounts := []session.Account{
		{Username: "alice@example.test", ExpirationTimestamp: 1900000000, AccessToken: "at-alice", RefreshToken: "rt-alice", RootPath: "/alice"},
		{Username: "bob@example.test", ExpirationTimestamp: 1900000100, AccessToken: "at-bob", RefreshToken: "rt-bob", RootPath: "/bob"},
		{Username: "carol@example.test", ExpirationTimestamp: 1900000200, AccessToken: "at-carol", RefreshToken: "rt-carol", RootPath: "/carol"},
	}
	for _, acc := range accounts {
		if err := s.Save(ctx, acc); err != nil {
			return fmt.Errorf("save %s: %w", acc.Username, err)
		}
		fmt.Printf("SAVED %s\n", acc.Username)
	}
	if err := s.SetCurrentUser(ctx, "bob@example.test"); err != nil {
		return fmt.Errorf("set current user: %w", err)
	}

	if _, err := s.DB().ExecContext(ctx, `VACUUM INTO ?;`, backupPath); err != nil {
		return fmt.Errorf("vacuum into backup: %w", err)
	}
	fmt.Println("BACKUP written")

	raw, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := os.WriteFile(restorePath, raw, 0o644); err != nil {
		return fmt.Errorf("write restore copy: %w", err)
	}

	restored, err := session.Open(ctx, restorePath)
	if err != nil {
		return fmt.Errorf("open restored store: %w", err)
	}
	defer restored.Close()

	names, err := restored.Usernames(ctx)
	if err != nil {
		return fmt.Errorf("list restored usernames: %w", err)
	}
	fmt.Printf("RESTORED accounts=%d\n", len(names))
	if len(names) != len(accounts) {
		return fmt.Errorf("expected %d restored accounts, got %d", len(accounts), len(names))
	}

	cur, err := restored.Current(ctx)
	if err != nil {
		return fmt.Errorf("restored current: %w", err)
	}
	fmt.Printf("CURRENT user=%s\n", cur.Username)
	if cur.Username != "bob@example.test" || cur.AccessToken != "at-bob" ||
		cur.RefreshToken != "rt-bob" || cur.RootPath != "/bob" {
		return fmt.Errorf("restored current user mismatch: %+v", cur)
	}

	// Removing the active account must fall back to one of the remaining
	// accounts, never leave current_user dangling.
	if err := restored.RemoveUser(ctx, "bob@example.test"); err != nil {
		return fmt.Errorf("remove current user: %w", err)
	}
	next, err := restored.CurrentUsername(ctx)
	if err != nil {
		return fmt.Errorf("current after remove: %w", err)
	}
	fmt.Printf("FALLBACK user=%s\n", next)
	if next == "" || next == "bob@example.test" {
		return fmt.Errorf("expected fallback to a surviving account, got %q", next)
	}

	return nil
}
