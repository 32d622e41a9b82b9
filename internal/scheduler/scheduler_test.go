package scheduler_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basket/goclaw-bridge/internal/scheduler"
	"github.com/basket/goclaw-bridge/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertTask(t *testing.T, s *store.Store, chatID int64) int64 {
	t.Helper()
	id, err := s.InsertTask(context.Background(), store.InsertFields{
		CmdType: store.CmdTypeURL, Filename: "f", RootPath: "/x", URL: "https://example.com/f",
		ChatID: chatID, ChatBotHex: "a", ChatUserHex: "b", MessageID: 1, MessageIndicatorID: 2,
	})
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return id
}

func TestSchedulerDispatchesWaitingTasks(t *testing.T) {
	s := openTestStore(t)
	insertTask(t, s, 1)
	insertTask(t, s, 2)

	var dispatched int32
	var wg sync.WaitGroup
	wg.Add(2)

	sched := scheduler.New(scheduler.Config{
		Store:       s,
		Concurrency: 2,
		IdleInterval: 10 * time.Millisecond,
		Dispatch: func(ctx context.Context, task *store.Task, release func()) {
			defer release()
			defer wg.Done()
			atomic.AddInt32(&dispatched, 1)
			_ = s.SetStatus(ctx, task.ID, store.StatusCompleted)
		},
	})

	sched.Start(context.Background())
	defer sched.Stop()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for both tasks to dispatch")
	}

	if got := atomic.LoadInt32(&dispatched); got != 2 {
		t.Fatalf("expected 2 dispatches, got %d", got)
	}
}

func TestSchedulerFetchesAheadOfSaturatedWorker(t *testing.T) {
	s := openTestStore(t)
	idA := insertTask(t, s, 1)
	idB := insertTask(t, s, 2)

	blockA := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	sched := scheduler.New(scheduler.Config{
		Store:        s,
		Concurrency:  1,
		IdleInterval: 5 * time.Millisecond,
		Dispatch: func(ctx context.Context, task *store.Task, release func()) {
			defer release()
			defer wg.Done()
			<-blockA
			_ = s.SetStatus(ctx, task.ID, store.StatusCompleted)
		},
	})

	sched.Start(context.Background())
	defer func() {
		close(blockA)
		wg.Wait()
		sched.Stop()
	}()

	// Task A occupies the single permit indefinitely (until blockA closes).
	// While it's in flight, the loop must still have pulled task B off the
	// Waiting queue into Fetched instead of leaving it Waiting behind a
	// blocked dispatch call.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tb, err := s.GetTask(context.Background(), idB)
		if err != nil {
			t.Fatalf("get task B: %v", err)
		}
		if tb.Status == store.StatusFetched {
			ta, err := s.GetTask(context.Background(), idA)
			if err != nil {
				t.Fatalf("get task A: %v", err)
			}
			if ta.Status != store.StatusFetched && ta.Status != store.StatusStarted {
				t.Fatalf("expected task A fetched or started, got %s", ta.Status)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for task B to reach Fetched while task A's worker was saturated")
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		insertTask(t, s, int64(i))
	}

	var inFlight, maxInFlight int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)

	sched := scheduler.New(scheduler.Config{
		Store:        s,
		Concurrency:  1,
		IdleInterval: 10 * time.Millisecond,
		Dispatch: func(ctx context.Context, task *store.Task, rel func()) {
			defer wg.Done()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxInFlight)
				if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
			_ = s.SetStatus(ctx, task.ID, store.StatusCompleted)
			rel()
		},
	})

	sched.Start(context.Background())
	defer sched.Stop()

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&maxInFlight); got > 1 {
		t.Fatalf("expected at most 1 task in flight at a time, saw %d", got)
	}
}
