package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/basket/goclaw-bridge/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertSample(t *testing.T, s *store.Store, chatID int64, messageID int) int64 {
	t.Helper()
	id, err := s.InsertTask(context.Background(), store.InsertFields{
		CmdType:            store.CmdTypeURL,
		Filename:           "video.mp4",
		RootPath:           "/movies",
		URL:                "https://example.com/video.mp4",
		ChatID:             chatID,
		ChatBotHex:         "deadbeef01",
		ChatUserHex:        "deadbeef02",
		MessageID:          messageID,
		MessageIndicatorID: messageID + 1,
	})
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return id
}

func TestInsertAndFetchNext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if task, err := s.FetchNext(ctx); err != nil || task != nil {
		t.Fatalf("expected empty queue, got %+v, err %v", task, err)
	}

	id := insertSample(t, s, 555, 10)

	task, err := s.FetchNext(ctx)
	if err != nil {
		t.Fatalf("fetch next: %v", err)
	}
	if task == nil || task.ID != id {
		t.Fatalf("expected task %d, got %+v", id, task)
	}
	if task.Status != store.StatusFetched {
		t.Fatalf("expected fetched status after FetchNext, got %s", task.Status)
	}
}

func TestStatusTransitionsFollowDAG(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := insertSample(t, s, 1, 1)

	if err := s.SetStatus(ctx, id, store.StatusFetched); err != nil {
		t.Fatalf("waiting->fetched: %v", err)
	}
	if err := s.SetStatus(ctx, id, store.StatusStarted); err != nil {
		t.Fatalf("fetched->started: %v", err)
	}
	if err := s.SetStatus(ctx, id, store.StatusCompleted); err != nil {
		t.Fatalf("started->completed: %v", err)
	}

	if err := s.SetStatus(ctx, id, store.StatusWaiting); err == nil {
		t.Fatal("expected completed->waiting to be rejected")
	}
}

func TestSetStatusRejectsSkippedStep(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := insertSample(t, s, 1, 1)

	if err := s.SetStatus(ctx, id, store.StatusStarted); err == nil {
		t.Fatal("expected waiting->started to be rejected without passing through fetched")
	}
}

func TestResetStuckTasksIndependentOfOpen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	waitingID := insertSample(t, s, 1, 1)
	fetchedID := insertSample(t, s, 1, 2)
	startedID := insertSample(t, s, 1, 3)
	completedID := insertSample(t, s, 1, 4)

	if err := s.SetStatus(ctx, fetchedID, store.StatusFetched); err != nil {
		t.Fatalf("fetched transition: %v", err)
	}
	if err := s.SetStatus(ctx, startedID, store.StatusFetched); err != nil {
		t.Fatalf("started transition (1/2): %v", err)
	}
	if err := s.SetStatus(ctx, startedID, store.StatusStarted); err != nil {
		t.Fatalf("started transition (2/2): %v", err)
	}
	if err := s.SetStatus(ctx, completedID, store.StatusFetched); err != nil {
		t.Fatalf("completed transition (1/3): %v", err)
	}
	if err := s.SetStatus(ctx, completedID, store.StatusStarted); err != nil {
		t.Fatalf("completed transition (2/3): %v", err)
	}
	if err := s.SetStatus(ctx, completedID, store.StatusCompleted); err != nil {
		t.Fatalf("completed transition (3/3): %v", err)
	}

	affected, err := s.ResetStuckTasks(ctx)
	if err != nil {
		t.Fatalf("reset stuck tasks: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 rows reset, got %d", affected)
	}

	for _, id := range []int64{fetchedID, startedID} {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("get task %d: %v", id, err)
		}
		if task.Status != store.StatusWaiting {
			t.Fatalf("task %d: expected waiting after reset, got %s", id, task.Status)
		}
	}

	waitingTask, err := s.GetTask(ctx, waitingID)
	if err != nil {
		t.Fatalf("get waiting task: %v", err)
	}
	if waitingTask.Status != store.StatusWaiting {
		t.Fatalf("untouched waiting task changed status: %s", waitingTask.Status)
	}

	completedTask, err := s.GetTask(ctx, completedID)
	if err != nil {
		t.Fatalf("get completed task: %v", err)
	}
	if completedTask.Status != store.StatusCompleted {
		t.Fatalf("completed task should not be reset, got %s", completedTask.Status)
	}
}

func TestOpenTruncatesExistingTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")

	s1, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	insertSample(t, s1, 1, 1)
	if err := s1.Close(); err != nil {
		t.Fatalf("close 1: %v", err)
	}

	s2, err := store.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	defer s2.Close()

	task, err := s2.FetchNext(context.Background())
	if err != nil {
		t.Fatalf("fetch next after reopen: %v", err)
	}
	if task != nil {
		t.Fatalf("expected empty queue after reopen, got %+v", task)
	}
}

func TestDeleteByMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insertSample(t, s, 42, 7)
	insertSample(t, s, 42, 7)
	insertSample(t, s, 42, 8)

	affected, err := s.DeleteByMessage(ctx, 42, 7)
	if err != nil {
		t.Fatalf("delete by message: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 row deleted, got %d", affected)
	}

	n, err := s.PendingCount(ctx, 42)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining pending task, got %d", n)
	}
}

func TestHasStartedTasksGatesClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := insertSample(t, s, 9, 1)

	started, err := s.HasStartedTasks(ctx, 9)
	if err != nil {
		t.Fatalf("has started tasks: %v", err)
	}
	if started {
		t.Fatal("expected no started tasks before transition")
	}

	if err := s.SetStatus(ctx, id, store.StatusFetched); err != nil {
		t.Fatalf("waiting->fetched: %v", err)
	}
	if err := s.SetStatus(ctx, id, store.StatusStarted); err != nil {
		t.Fatalf("fetched->started: %v", err)
	}

	started, err = s.HasStartedTasks(ctx, 9)
	if err != nil {
		t.Fatalf("has started tasks: %v", err)
	}
	if !started {
		t.Fatal("expected started task to be reported")
	}
}

func TestInsertTaskDedupesSameChatAndMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := insertSample(t, s, 77, 3)
	second := insertSample(t, s, 77, 3)

	if first == second {
		t.Fatal("expected a new row id on re-insert")
	}
	if _, err := s.GetTask(ctx, first); err == nil {
		t.Fatal("expected prior task for the same (chat_id, message_id) to be gone")
	}
	if _, err := s.GetTask(ctx, second); err != nil {
		t.Fatalf("expected second insert to persist: %v", err)
	}
}

func TestActiveChatIDsListsEveryChatWithARow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	idA := insertSample(t, s, 10, 1)
	insertSample(t, s, 20, 1)
	if err := s.SetStatus(ctx, idA, store.StatusFetched); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.SetStatus(ctx, idA, store.StatusFailed); err != nil {
		t.Fatalf("set status: %v", err)
	}

	ids, err := s.ActiveChatIDs(ctx)
	if err != nil {
		t.Fatalf("active chat ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Fatalf("expected both chats listed (failed rows still pending the aggregator sweep), got %v", ids)
	}
}

func TestTasksByStatusFiltersToOneStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	idA := insertSample(t, s, 5, 1)
	idB := insertSample(t, s, 5, 2)
	if err := s.SetStatus(ctx, idA, store.StatusFetched); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.SetStatus(ctx, idA, store.StatusFailed); err != nil {
		t.Fatalf("set status: %v", err)
	}

	failed, err := s.TasksByStatus(ctx, 5, store.StatusFailed)
	if err != nil {
		t.Fatalf("tasks by status: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != idA {
		t.Fatalf("expected only task %d failed, got %+v", idA, failed)
	}

	waiting, err := s.TasksByStatus(ctx, 5, store.StatusWaiting)
	if err != nil {
		t.Fatalf("tasks by status: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != idB {
		t.Fatalf("expected only task %d waiting, got %+v", idB, waiting)
	}
}

func TestValidateRootPathRejectsReservedFolder(t *testing.T) {
	cases := []struct {
		path    string
		wantErr bool
	}{
		{"/movies", false},
		{"movies", true},
		{store.ReservedInvalidRoot, true},
		{store.ReservedInvalidRoot + "/nested", true},
	}
	for _, c := range cases {
		err := store.ValidateRootPath(c.path)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateRootPath(%q) err=%v, wantErr=%v", c.path, err, c.wantErr)
		}
	}
}
