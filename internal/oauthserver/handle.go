package oauthserver

import (
	"context"
	"sync"
	"time"
)

// pollInterval is how often a running server checks whether its Handle has
// been released.
const pollInterval = 100 * time.Millisecond

// Handle scopes the lifetime of a running Server to the login flow that
// requested it. Release shuts the server down; it is safe to call more than
// once and safe to defer unconditionally, so every exit path of a login
// flow tears the server down.
type Handle struct {
	cancel context.CancelFunc
	once   sync.Once
	done   <-chan struct{}
}

// newHandle derives a cancelable context from parent and returns it
// alongside a Handle that cancels it exactly once.
func newHandle(parent context.Context) (context.Context, *Handle) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &Handle{cancel: cancel, done: ctx.Done()}
}

// Release stops the server this handle owns. Idempotent.
func (h *Handle) Release() {
	h.once.Do(h.cancel)
}

// Done reports whether the handle has been released.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// waitForRelease blocks, polling every pollInterval, until the handle's
// context is canceled. Used by Server.Run's shutdown goroutine; the poll
// keeps a released-but-unobserved handle from holding the listener open
// longer than one interval.
func waitForRelease(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
		}
	}
}
