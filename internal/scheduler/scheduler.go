// Package scheduler runs the single cooperative dispatch loop that pulls
// Waiting tasks off the store and hands each to a worker under a bounded
// concurrency semaphore.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/goclaw-bridge/internal/store"
)

// Dispatcher is called once per dispatched task, in its own goroutine,
// already holding one semaphore permit; it must release the permit (via
// the release func) once the task reaches a terminal state.
type Dispatcher func(ctx context.Context, task *store.Task, release func())

// Config configures the scheduler loop.
type Config struct {
	Store *store.Store
	// Dispatch is invoked for every task fetched off the Waiting queue.
	Dispatch Dispatcher
	// Concurrency bounds how many dispatched tasks may run at once.
	Concurrency int
	// IdleInterval is how long the loop sleeps after finding an empty
	// queue before trying again.
	IdleInterval time.Duration
	Logger       *slog.Logger
}

// Scheduler is the process's single task dispatch loop.
type Scheduler struct {
	cfg    Config
	sem    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Scheduler ready to Start. Concurrency and IdleInterval
// default to 5 and 1s when zero.
func New(cfg Config) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		cfg: cfg,
		sem: make(chan struct{}, cfg.Concurrency),
	}
}

// Start launches the dispatch loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the dispatch loop and waits for it to exit, along with every
// dispatch goroutine the loop started.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := s.cfg.Store.FetchNext(ctx)
		if err != nil {
			s.cfg.Logger.Warn("scheduler: fetch next failed, will retry next tick", "error", err)
			task = nil
		}

		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.IdleInterval):
			}
			continue
		}

		s.dispatch(ctx, task)
	}
}

// dispatch hands task off to a goroutine that waits for a free semaphore
// permit (bounding concurrency to Config.Concurrency) before marking the
// task Started and invoking Dispatch. Waiting for a permit happens off the
// main loop goroutine, so a task sitting at capacity never blocks the loop
// from fetching and logging the next Waiting row — it only blocks that
// task's own transition out of Fetched.
func (s *Scheduler) dispatch(ctx context.Context, task *store.Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		if err := s.cfg.Store.SetStatus(ctx, task.ID, store.StatusStarted); err != nil {
			s.cfg.Logger.Warn("scheduler: failed to mark task started, releasing permit", "task_id", task.ID, "error", err)
			<-s.sem
			return
		}

		release := func() { <-s.sem }
		s.cfg.Dispatch(ctx, task, release)
	}()
}
