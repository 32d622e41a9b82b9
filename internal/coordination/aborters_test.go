package coordination_test

import (
	"context"
	"testing"

	"github.com/basket/goclaw-bridge/internal/coordination"
)

func TestAbortCancelsContext(t *testing.T) {
	reg := coordination.NewAborters()
	ctx, aborter := coordination.NewAborter(context.Background(), 1, "movie.mp4")
	reg.Register(42, 100, aborter, 0)

	if !reg.Abort(42, 100) {
		t.Fatal("expected abort to find the registered task")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be cancelled after abort")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected registry to be empty after abort, got %d", reg.Len())
	}
}

func TestAbortMatchesRelatedMessageID(t *testing.T) {
	reg := coordination.NewAborters()
	_, aborter := coordination.NewAborter(context.Background(), 2, "clip.mp4")
	reg.Register(42, 200, aborter, 199)

	if !reg.Abort(42, 199) {
		t.Fatal("expected abort to match via the related (command) message id")
	}
}

func TestAbortUnknownReturnsFalse(t *testing.T) {
	reg := coordination.NewAborters()
	if reg.Abort(1, 1) {
		t.Fatal("expected abort of an unknown task to report false")
	}
}

func TestAbortChatOnlyCancelsThatChat(t *testing.T) {
	reg := coordination.NewAborters()
	ctxA, aborterA := coordination.NewAborter(context.Background(), 1, "a")
	ctxB, aborterB := coordination.NewAborter(context.Background(), 2, "b")
	reg.Register(1, 10, aborterA, 0)
	reg.Register(2, 20, aborterB, 0)

	if n := reg.AbortChat(1); n != 1 {
		t.Fatalf("expected 1 task aborted for chat 1, got %d", n)
	}
	select {
	case <-ctxA.Done():
	default:
		t.Fatal("expected chat 1's task to be cancelled")
	}
	select {
	case <-ctxB.Done():
		t.Fatal("did not expect chat 2's task to be cancelled")
	default:
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", reg.Len())
	}
}

func TestAbortAllCancelsEverything(t *testing.T) {
	reg := coordination.NewAborters()
	_, a1 := coordination.NewAborter(context.Background(), 1, "a")
	_, a2 := coordination.NewAborter(context.Background(), 2, "b")
	reg.Register(1, 10, a1, 0)
	reg.Register(2, 20, a2, 0)

	if n := reg.AbortAll(); n != 2 {
		t.Fatalf("expected 2 tasks aborted, got %d", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected registry empty after AbortAll, got %d", reg.Len())
	}
}

func TestAbortIsIdempotent(t *testing.T) {
	_, aborter := coordination.NewAborter(context.Background(), 1, "a")
	aborter.Abort()
	aborter.Abort()
}
