// Package progress tracks the live per-chat status message: one in-memory
// map of per-task byte counters and one of per-chat render state, read by
// the aggregator tick and written by workers as parts complete.
package progress

import (
	"fmt"
	"strings"
	"sync"
)

// Item is a single task's progress, as seen by the aggregator.
type Item struct {
	CurrentLength int64
	TotalLength   int64
	Filename      string
	ChatBotHex    string
	ChatID        int64
	MessageID     int
}

// ChatRecord tracks the live progress message for one chat: its pending
// task count, which message id currently holds it, and the last rendered
// body (a render identical to it is skipped). AtTail decides whether the
// next render edits the message in place or reposts it at the tail.
type ChatRecord struct {
	PendingCount      int
	ProgressMessageID int
	HasProgressMsg    bool
	LastRendered      string
	NextRendered      string
	ChatUserHex       string
	ChatID            int64

	// AtTail is true while the progress message is believed to still be
	// the most recent message in the chat, so the next render can edit it
	// in place. Only MarkDirty clears it (telling the aggregator to delete
	// and repost at the tail instead); no message path in the bridge calls
	// MarkDirty, so other traffic in the chat does not by itself cause a
	// repost.
	AtTail bool
}

// View holds the two maps the aggregator reads and workers/handlers write:
// task_id -> Item under a reader-writer lock (many readers during render,
// one writer per length update), and chat_bot_hex -> ChatRecord under a
// plain mutex (infrequent, coarse-grained updates).
type View struct {
	mu    sync.RWMutex
	items map[int64]*Item

	recMu   sync.Mutex
	records map[string]*ChatRecord
}

// NewView returns an empty progress view.
func NewView() *View {
	return &View{
		items:   make(map[int64]*Item),
		records: make(map[string]*ChatRecord),
	}
}

// Insert registers a task's initial progress state.
func (v *View) Insert(taskID int64, item Item) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := item
	v.items[taskID] = &cp
}

// Remove drops a task from the view, e.g. once it reaches a terminal state
// and has been folded into the aggregator's completed/failed handling.
func (v *View) Remove(taskID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.items, taskID)
}

// SetCurrentLength updates a task's running byte counter.
func (v *View) SetCurrentLength(taskID int64, current, total int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	item, ok := v.items[taskID]
	if !ok {
		return
	}
	item.CurrentLength = current
	item.TotalLength = total
}

// IterItems returns a snapshot slice of every tracked item, stable for the
// duration of a render pass.
func (v *View) IterItems() []Item {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Item, 0, len(v.items))
	for _, item := range v.items {
		out = append(out, *item)
	}
	return out
}

// recordFor returns the chat record for chatBotHex, creating it if absent.
func (v *View) recordFor(chatBotHex string) *ChatRecord {
	v.recMu.Lock()
	defer v.recMu.Unlock()
	rec, ok := v.records[chatBotHex]
	if !ok {
		rec = &ChatRecord{}
		v.records[chatBotHex] = rec
	}
	return rec
}

// UpdateLastResponse records the body most recently sent for chatBotHex and
// returns a copy of the (now-current) record.
func (v *View) UpdateLastResponse(chatBotHex, body string) ChatRecord {
	rec := v.recordFor(chatBotHex)
	v.recMu.Lock()
	defer v.recMu.Unlock()
	rec.LastRendered = body
	return *rec
}

// UpdateProgressMessageID records which message id now holds the progress
// message for chatBotHex. The record is marked AtTail: a freshly sent or
// reposted progress message is, by construction, the most recent message
// in the chat.
func (v *View) UpdateProgressMessageID(chatBotHex string, messageID int) {
	rec := v.recordFor(chatBotHex)
	v.recMu.Lock()
	defer v.recMu.Unlock()
	rec.ProgressMessageID = messageID
	rec.HasProgressMsg = true
	rec.AtTail = true
}

// MarkDirty records that some other new message was posted to chatBotHex's
// chat, so the progress message (if any) is no longer at the tail and must
// be deleted and reposted rather than edited in place on the next render.
func (v *View) MarkDirty(chatBotHex string) {
	rec := v.recordFor(chatBotHex)
	v.recMu.Lock()
	defer v.recMu.Unlock()
	rec.AtTail = false
}

// SetPendingCount records the chat's current Waiting+Fetched count and chat
// id, used when rendering the "N more tasks pending" trailer and when the
// aggregator needs to act on a chat after its last task row is gone.
func (v *View) SetPendingCount(chatBotHex string, n int, chatUserHex string, chatID int64) {
	rec := v.recordFor(chatBotHex)
	v.recMu.Lock()
	defer v.recMu.Unlock()
	rec.PendingCount = n
	rec.ChatUserHex = chatUserHex
	rec.ChatID = chatID
}

// Record returns a copy of the chat record for chatBotHex and whether one
// exists.
func (v *View) Record(chatBotHex string) (ChatRecord, bool) {
	v.recMu.Lock()
	defer v.recMu.Unlock()
	rec, ok := v.records[chatBotHex]
	if !ok {
		return ChatRecord{}, false
	}
	return *rec, true
}

// IterRecords returns every tracked chat_bot_hex.
func (v *View) IterRecords() []string {
	v.recMu.Lock()
	defer v.recMu.Unlock()
	out := make([]string, 0, len(v.records))
	for k := range v.records {
		out = append(out, k)
	}
	return out
}

// RemoveRecord forgets a chat's progress record, once it has zero Started
// rows and its progress message has been deleted.
func (v *View) RemoveRecord(chatBotHex string) {
	v.recMu.Lock()
	defer v.recMu.Unlock()
	delete(v.records, chatBotHex)
}

// RenderBody builds the bit-exact aggregated status body for a chat's
// Started items, in the order given, followed by the pending-count trailer
// when pendingCount > 0.
func RenderBody(items []Item, pendingCount int) string {
	var b strings.Builder
	b.WriteString("Progress:\n")
	for _, it := range items {
		curMB := float64(it.CurrentLength) / (1024 * 1024)
		totMB := float64(it.TotalLength) / (1024 * 1024)
		fmt.Fprintf(&b, "\n<a href=\"https://t.me/c/%d/%d\">%s</a>: %.2f/%.2fMB",
			it.ChatID, it.MessageID, it.Filename, curMB, totMB)
	}
	if pendingCount > 0 {
		fmt.Fprintf(&b, "\n\n%d more tasks pending...", pendingCount)
	}
	return b.String()
}

// RenderCompletedSuffix builds the text appended to a trigger message when
// its task completes without auto-delete.
func RenderCompletedSuffix(fullPath string, totalLength int64) string {
	totMB := float64(totalLength) / (1024 * 1024)
	return fmt.Sprintf("\n\nDone.\nFile uploaded to %s\nSize %.2fMB.", fullPath, totMB)
}

// RenderFailedSuffix builds the text appended to a trigger message when its
// task fails.
func RenderFailedSuffix() string {
	return "\n\nFailed."
}
