package handlers

import (
	"context"
	"fmt"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/shared"
	"github.com/basket/goclaw-bridge/internal/store"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

// handleFile ingests an inbound message carrying a Document/Video/Audio/
// Photo attachment as a File task.
func (d *Dispatcher) handleFile(ctx context.Context, msg telegram.Incoming) {
	if !d.allowed(msg.Username) {
		return
	}
	if !d.state.TGLoggedIn() {
		d.reply(ctx, msg, "Please log in to Telegram first. Use /auth.")
		return
	}
	if !d.isODLoggedIn(ctx) {
		d.reply(ctx, msg, "Please log in to your cloud storage account first. Use /auth.")
		return
	}

	att := msg.Attachment
	filename := att.FileName
	if filename == "" {
		filename = fmt.Sprintf("file_%d", msg.MessageID)
	}

	if reply := d.ingest(ctx, msg, store.CmdTypeFile, filename, att.FileSize, "", att.FileID, ""); reply != "" {
		d.reply(ctx, msg, reply)
	}
}

func (d *Dispatcher) allowed(username string) bool {
	return d.state.AllowedUser(username)
}

// ingest opens a resumable upload session for filename at the chat's
// current destination folder, queues a Waiting task row for it, and posts
// the reply-indicator message the progress aggregator will later take
// over. It returns a user-facing error string on failure, or "" on
// success (the indicator message already serves as the acknowledgment).
func (d *Dispatcher) ingest(ctx context.Context, msg telegram.Incoming, cmdType store.CmdType, filename string, totalLength int64, contentType, sourceFileID, rawURL string) string {
	rootPath, err := d.deps.Sessions.RootPath(ctx, true)
	if err != nil {
		return "Please log in to your cloud storage account first. Use /auth."
	}
	acc, err := d.deps.Sessions.Current(ctx)
	if err != nil {
		return "Please log in to your cloud storage account first. Use /auth."
	}

	indicator, err := d.deps.BotPacer.Reply(ctx, msg.ChatID, msg.MessageID, fmt.Sprintf("Queued: %s", filename))
	if err != nil {
		d.deps.Logger.Warn("handlers: queue indicator failed", "chat_id", msg.ChatID, "error", err)
	}

	createURL := graphclient.CreateSessionURL(rootPath, filename)
	session, err := graphclient.CreateSession(ctx, d.deps.HTTPClient, createURL, acc.AccessToken)
	if err != nil {
		d.deps.Logger.Warn("handlers: create upload session failed", "filename", filename, "error", err)
		return fmt.Sprintf("Failed to start upload: %s", bridgeerr.UserMessage(err))
	}

	taskID, err := d.deps.Tasks.InsertTask(ctx, store.InsertFields{
		CmdType:            cmdType,
		Filename:           filename,
		RootPath:           rootPath,
		URL:                rawURL,
		ChatID:             msg.ChatID,
		ChatBotHex:         shared.EncodeChatHex(msg.ChatID, shared.ChatHexBot),
		ChatUserHex:        shared.EncodeChatHex(msg.ChatID, shared.ChatHexUser),
		MessageID:          msg.MessageID,
		MessageIndicatorID: indicator.MessageID,
		AutoDelete:         d.state.AutoDelete(),
		ContentType:        contentType,
		TriggerText:        msg.Text,
		SourceFileID:       sourceFileID,
		TotalLength:        totalLength,
	})
	if err != nil {
		d.deps.Logger.Warn("handlers: insert task failed", "filename", filename, "error", err)
		return fmt.Sprintf("Failed to queue upload: %s", bridgeerr.UserMessage(err))
	}

	if err := d.deps.Tasks.SetUploadURL(ctx, taskID, session.UploadURL()); err != nil {
		d.deps.Logger.Warn("handlers: persist upload url failed", "task_id", taskID, "error", err)
	}

	return ""
}
