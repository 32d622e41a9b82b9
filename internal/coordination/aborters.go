// Package coordination tracks the in-flight cancellation handle for every
// active transfer, keyed by the chat and message that started it, so a
// later chat command (or a shutdown) can stop a specific transfer or every
// transfer in a chat.
package coordination

import (
	"context"
	"sync"

	"log/slog"
)

// Aborter is the cancellation handle for a single task. Calling Abort
// cancels the task's context and is safe to call more than once or
// concurrently.
type Aborter struct {
	TaskID   int64
	Filename string

	cancel context.CancelFunc
	once   sync.Once
}

// NewAborter derives a cancellable context from parent and returns both the
// context workers should observe and the Aborter a caller can use to cancel
// it early.
func NewAborter(parent context.Context, taskID int64, filename string) (context.Context, *Aborter) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &Aborter{TaskID: taskID, Filename: filename, cancel: cancel}
}

// Abort cancels the task's context.
func (a *Aborter) Abort() {
	a.once.Do(func() {
		slog.Info("task aborted", "task_id", a.TaskID, "filename", a.Filename)
		a.cancel()
	})
}

type chatMessageKey struct {
	chatID    int64
	messageID int
}

// Aborters is a registry of active task aborters keyed by the chat and
// message that started them, plus an optional related message id (the
// command message that triggered the task, when different from the
// progress message).
type Aborters struct {
	mu      sync.Mutex
	entries map[chatMessageKey]entry
}

type entry struct {
	aborter          *Aborter
	relatedMessageID int
	hasRelated       bool
}

// NewAborters returns an empty registry.
func NewAborters() *Aborters {
	return &Aborters{entries: make(map[chatMessageKey]entry)}
}

// Register adds an aborter for (chatID, messageID). relatedMessageID, if
// non-zero, is the id of an additional message (e.g. the original command)
// that should be considered linked to the same task for lookup purposes.
func (a *Aborters) Register(chatID int64, messageID int, aborter *Aborter, relatedMessageID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[chatMessageKey{chatID, messageID}] = entry{
		aborter:          aborter,
		relatedMessageID: relatedMessageID,
		hasRelated:       relatedMessageID != 0,
	}
}

// Unregister removes the entry for (chatID, messageID), if present.
func (a *Aborters) Unregister(chatID int64, messageID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, chatMessageKey{chatID, messageID})
}

// Abort cancels and removes the aborter registered for (chatID, messageID).
// It also matches entries whose related message id equals messageID, since
// a user may reply to either the command message or the progress message.
// Reports whether an aborter was found.
func (a *Aborters) Abort(chatID int64, messageID int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := chatMessageKey{chatID, messageID}
	if e, ok := a.entries[key]; ok {
		e.aborter.Abort()
		delete(a.entries, key)
		return true
	}

	for k, e := range a.entries {
		if k.chatID == chatID && e.hasRelated && e.relatedMessageID == messageID {
			e.aborter.Abort()
			delete(a.entries, k)
			return true
		}
	}
	return false
}

// AbortChat cancels and removes every aborter registered for chatID,
// returning the number aborted.
func (a *Aborters) AbortChat(chatID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for k, e := range a.entries {
		if k.chatID == chatID {
			e.aborter.Abort()
			delete(a.entries, k)
			n++
		}
	}
	return n
}

// AbortAll cancels and removes every registered aborter, used at shutdown.
func (a *Aborters) AbortAll() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.entries)
	for k, e := range a.entries {
		e.aborter.Abort()
		delete(a.entries, k)
	}
	return n
}

// Len reports the number of currently registered aborters.
func (a *Aborters) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
