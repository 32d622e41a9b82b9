// Package aggregator runs the single cooperative tick that turns
// task-store state into one live progress message per chat: it reads
// Started/Completed/Failed rows grouped by chat, renders the aggregated
// status body, and routes every send/edit/delete through the pacer.
package aggregator

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/basket/goclaw-bridge/internal/pacer"
	"github.com/basket/goclaw-bridge/internal/progress"
	"github.com/basket/goclaw-bridge/internal/store"
)

// Config wires the aggregator to its collaborators.
type Config struct {
	Store *store.Store
	View  *progress.View

	// BotPacer posts and edits the live progress message, sent under the
	// bot identity.
	BotPacer *pacer.Pacer
	// UserPacer edits or deletes the triggering user message once its
	// task reaches a terminal status. It is a distinct identity from
	// BotPacer: the platform may require separate routing for each, which
	// is what chat_bot_hex vs chat_user_hex encode.
	UserPacer *pacer.Pacer

	// TickInterval is how often a sweep runs.
	TickInterval time.Duration
	Logger       *slog.Logger
}

// Aggregator is the process's single progress-rendering loop.
type Aggregator struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Aggregator ready to Start. TickInterval falls back to 3s
// when zero.
func New(cfg Config) *Aggregator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{cfg: cfg, done: make(chan struct{})}
}

// Start launches the tick loop in a background goroutine.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go func() {
		defer close(a.done)
		a.loop(ctx)
	}()
}

// Stop cancels the tick loop and waits for it to exit.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

func (a *Aggregator) loop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs one full sweep over every chat with at least one task row.
// Exported so tests (and a future manual "/status" command) can drive it
// deterministically instead of waiting on the ticker.
func (a *Aggregator) Tick(ctx context.Context) {
	chatIDs, err := a.cfg.Store.ActiveChatIDs(ctx)
	if err != nil {
		a.cfg.Logger.Warn("aggregator: list active chats failed, will retry next tick", "error", err)
		return
	}
	for _, chatID := range chatIDs {
		a.sweepChat(ctx, chatID)
	}
	a.sweepAbandonedRecords(ctx, chatIDs)
}

func (a *Aggregator) sweepChat(ctx context.Context, chatID int64) {
	started, err := a.cfg.Store.TasksByStatus(ctx, chatID, store.StatusStarted)
	if err != nil {
		a.cfg.Logger.Warn("aggregator: list started tasks failed", "chat_id", chatID, "error", err)
		return
	}
	completed, err := a.cfg.Store.TasksByStatus(ctx, chatID, store.StatusCompleted)
	if err != nil {
		a.cfg.Logger.Warn("aggregator: list completed tasks failed", "chat_id", chatID, "error", err)
		return
	}
	failed, err := a.cfg.Store.TasksByStatus(ctx, chatID, store.StatusFailed)
	if err != nil {
		a.cfg.Logger.Warn("aggregator: list failed tasks failed", "chat_id", chatID, "error", err)
		return
	}

	botHex, userHex := chatHexes(started, completed, failed)
	if botHex != "" {
		pending, err := a.cfg.Store.PendingCount(ctx, chatID)
		if err != nil {
			a.cfg.Logger.Warn("aggregator: pending count failed", "chat_id", chatID, "error", err)
			pending = 0
		}
		a.renderProgress(ctx, botHex, userHex, chatID, started, pending)
	}

	for _, t := range completed {
		a.finishCompleted(ctx, t)
	}
	for _, t := range failed {
		a.finishFailed(ctx, t)
	}
}

// chatHexes picks a representative chat_bot_hex/chat_user_hex pair from
// whichever task list is non-empty, since every row for a chat_id shares
// the same pair.
func chatHexes(lists ...[]*store.Task) (botHex, userHex string) {
	for _, list := range lists {
		if len(list) > 0 {
			return list[0].ChatBotHex, list[0].ChatUserHex
		}
	}
	return "", ""
}

func (a *Aggregator) renderProgress(ctx context.Context, botHex, userHex string, chatID int64, started []*store.Task, pending int) {
	items := make([]progress.Item, 0, len(started))
	for _, t := range started {
		items = append(items, progress.Item{
			CurrentLength: t.CurrentLength,
			TotalLength:   t.TotalLength,
			Filename:      t.Filename,
			ChatBotHex:    botHex,
			ChatID:        t.ChatID,
			MessageID:     t.MessageID,
		})
	}
	a.cfg.View.SetPendingCount(botHex, pending, userHex, chatID)

	if len(items) == 0 && pending == 0 {
		a.retireChat(ctx, botHex)
		return
	}

	body := progress.RenderBody(items, pending)
	rec, _ := a.cfg.View.Record(botHex)
	if rec.LastRendered == body {
		return
	}

	switch {
	case !rec.HasProgressMsg:
		sent, err := a.cfg.BotPacer.Respond(ctx, chatID, body)
		if err != nil {
			a.cfg.Logger.Warn("aggregator: post progress message failed", "chat_id", chatID, "error", err)
			return
		}
		a.cfg.View.UpdateProgressMessageID(botHex, sent.MessageID)
	case rec.AtTail:
		if err := a.cfg.BotPacer.Edit(ctx, chatID, rec.ProgressMessageID, body); err != nil {
			a.cfg.Logger.Warn("aggregator: edit progress message failed", "chat_id", chatID, "error", err)
			return
		}
	default:
		if err := a.cfg.BotPacer.Delete(ctx, chatID, rec.ProgressMessageID); err != nil {
			a.cfg.Logger.Warn("aggregator: delete stale progress message failed", "chat_id", chatID, "error", err)
		}
		sent, err := a.cfg.BotPacer.Respond(ctx, chatID, body)
		if err != nil {
			a.cfg.Logger.Warn("aggregator: repost progress message failed", "chat_id", chatID, "error", err)
			return
		}
		a.cfg.View.UpdateProgressMessageID(botHex, sent.MessageID)
	}
	a.cfg.View.UpdateLastResponse(botHex, body)
}

// retireChat drops a chat's progress message once it has zero Started
// rows and zero pending work.
func (a *Aggregator) retireChat(ctx context.Context, botHex string) {
	rec, ok := a.cfg.View.Record(botHex)
	if !ok {
		return
	}
	if rec.HasProgressMsg {
		if err := a.cfg.BotPacer.Delete(ctx, rec.ChatID, rec.ProgressMessageID); err != nil {
			a.cfg.Logger.Warn("aggregator: delete retired progress message failed", "chat_id", rec.ChatID, "error", err)
		}
	}
	a.cfg.View.RemoveRecord(botHex)
}

func (a *Aggregator) sweepAbandonedRecords(ctx context.Context, activeChatIDs []int64) {
	active := make(map[int64]bool, len(activeChatIDs))
	for _, id := range activeChatIDs {
		active[id] = true
	}
	for _, botHex := range a.cfg.View.IterRecords() {
		rec, ok := a.cfg.View.Record(botHex)
		if !ok || active[rec.ChatID] {
			continue
		}
		a.retireChat(ctx, botHex)
	}
}

func (a *Aggregator) finishCompleted(ctx context.Context, t *store.Task) {
	if t.AutoDelete {
		if err := a.cfg.UserPacer.Delete(ctx, t.ChatID, t.MessageID); err != nil {
			a.cfg.Logger.Warn("aggregator: delete completed trigger message failed", "task_id", t.ID, "error", err)
		}
	} else {
		fullPath := fullUploadPath(t.RootPath, t.Filename)
		text := t.TriggerText + progress.RenderCompletedSuffix(fullPath, t.TotalLength)
		if err := a.cfg.UserPacer.Edit(ctx, t.ChatID, t.MessageID, text); err != nil {
			a.cfg.Logger.Warn("aggregator: edit completed trigger message failed", "task_id", t.ID, "error", err)
		}
	}
	a.finalizeTask(ctx, t)
}

func (a *Aggregator) finishFailed(ctx context.Context, t *store.Task) {
	text := t.TriggerText + progress.RenderFailedSuffix()
	if err := a.cfg.UserPacer.Edit(ctx, t.ChatID, t.MessageID, text); err != nil {
		a.cfg.Logger.Warn("aggregator: edit failed trigger message failed", "task_id", t.ID, "error", err)
	}
	a.finalizeTask(ctx, t)
}

func (a *Aggregator) finalizeTask(ctx context.Context, t *store.Task) {
	if err := a.cfg.Store.DeleteTask(ctx, t.ID); err != nil {
		a.cfg.Logger.Warn("aggregator: delete finalized task failed", "task_id", t.ID, "error", err)
	}
	a.cfg.View.Remove(t.ID)
}

// fullUploadPath joins the destination root and the effective filename
// into the path reported in the "Done." suffix.
func fullUploadPath(rootPath, filename string) string {
	return path.Join("/", rootPath, filename)
}
