package handlers

import (
	"context"
	"fmt"

	"github.com/basket/goclaw-bridge/internal/shared"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

// cmdClear aborts every in-flight transfer for the chat and drops its
// queued task rows. The bot API exposes no bulk message-history listing,
// so instead of wiping the whole chat this clears the bridge's own state:
// in-flight tasks, queued tasks, and the tracked progress message.
func cmdClear(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	aborted := d.deps.Aborters.AbortChat(msg.ChatID)

	deleted, err := d.deps.Tasks.DeleteByChat(ctx, msg.ChatID)
	if err != nil {
		d.deps.Logger.Warn("handlers: clear delete tasks failed", "chat_id", msg.ChatID, "error", err)
	}

	chatBotHex := shared.EncodeChatHex(msg.ChatID, shared.ChatHexBot)
	if rec, ok := d.deps.View.Record(chatBotHex); ok && rec.HasProgressMsg {
		if err := d.deps.BotPacer.Delete(ctx, msg.ChatID, rec.ProgressMessageID); err != nil {
			d.deps.Logger.Warn("handlers: clear delete progress message failed", "chat_id", msg.ChatID, "error", err)
		}
	}
	d.deps.View.RemoveRecord(chatBotHex)

	return fmt.Sprintf("Cleared %d queued task(s), aborted %d in-flight transfer(s).", deleted, aborted)
}
