// restart_resume_drill is a standalone drill that verifies the task
// store's restart guarantees against a real sqlite file. It exercises the
// two halves of the startup sequence independently:
//   - ResetStuckTasks returns every Fetched/Started row to Waiting with a
//     zeroed current_length (the recovery step a crashed worker relies on)
//   - a second Open of the same file truncates the queue, so a fresh
//     process never dispatches against stale upload sessions
//
// It also runs a PRAGMA integrity_check after the reopen to confirm the
// file itself survived the handle churn.
//
// Usage:
//
//	go run ./tools/verify/restart_resume_drill/
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/basket/goclaw-bridge/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("VERDICT PASS (restart_resume_drill)")
}

func run() error {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "restart-resume-drill-*")
	if err != nil {
		return fmt.Errorf("mktemp: %w", err)
	}
	defer os.RemoveAll(dir)
	dbPath := filepath.Join(dir, "tasks.db")

	s, err := store.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := s.InsertTask(ctx, store.InsertFields{
			CmdType:     store.CmdTypeURL,
			Filename:    fmt.Sprintf("drill-%d.bin", i),
			RootPath:    "/transfers",
			URL:         fmt.Sprintf("https://example.test/drill-%d.bin", i),
			ChatID:      100,
			ChatBotHex:  "0a",
			ChatUserHex: "0b",
			MessageID:   10 + i,
			TotalLength: 1 << 20,
		})
		if err != nil {
			s.Close()
			return fmt.Errorf("insert task %d: %w", i, err)
		}
		ids = append(ids, id)
		fmt.Printf("INSERTED task id=%d\n", id)
	}

	// Walk the first task to Started mid-transfer, leave the second at
	// Fetched, leave the third Waiting. This is the state a SIGKILL would
	// freeze into the file.
	first, err := s.FetchNext(ctx)
	if err != nil || first == nil {
		s.Close()
		return fmt.Errorf("fetch first: %w (task=%v)", err, first)
	}
	if err := s.SetStatus(ctx, first.ID, store.StatusStarted); err != nil {
		s.Close()
		return fmt.Errorf("start first: %w", err)
	}
	if err := s.SetCurrentLength(ctx, first.ID, 320*1024, 1<<20); err != nil {
		s.Close()
		return fmt.Errorf("advance first: %w", err)
	}
	second, err := s.FetchNext(ctx)
	if err != nil || second == nil {
		s.Close()
		return fmt.Errorf("fetch second: %w (task=%v)", err, second)
	}
	fmt.Printf("STARTED task id=%d, FETCHED task id=%d\n", first.ID, second.ID)

	// Recovery step: both in-flight rows return to Waiting, byte counters
	// zeroed so the worker re-reads its offset from the upload session.
	affected, err := s.ResetStuckTasks(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("reset stuck: %w", err)
	}
	fmt.Printf("RESET affected=%d\n", affected)
	if affected != 2 {
		s.Close()
		return fmt.Errorf("expected 2 reset rows, got %d", affected)
	}
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			s.Close()
			return fmt.Errorf("get task %d: %w", id, err)
		}
		fmt.Printf("TASK id=%d status=%s current=%d\n", t.ID, t.Status, t.CurrentLength)
		if t.Status != store.StatusWaiting {
			s.Close()
			return fmt.Errorf("task %d: expected waiting after reset, got %s", id, t.Status)
		}
		if t.CurrentLength != 0 {
			s.Close()
			return fmt.Errorf("task %d: expected current_length 0 after reset, got %d", id, t.CurrentLength)
		}
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("close first handle: %w", err)
	}

	// Process restart: Open truncates, so the reborn queue is empty.
	s2, err := store.Open(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("reopen store: %w", err)
	}
	defer s2.Close()

	leftover, err := s2.FetchNext(ctx)
	if err != nil {
		return fmt.Errorf("fetch after reopen: %w", err)
	}
	if leftover != nil {
		return fmt.Errorf("expected empty queue after reopen, got task id=%d", leftover.ID)
	}
	fmt.Println("QUEUE empty after reopen")

	var integrity string
	if err := s2.DB().QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	fmt.Printf("INTEGRITY_CHECK=%s\n", integrity)
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}

	return nil
}
