// Package chatmsg defines the minimal chat-platform operations the pacer
// and aggregator need, so neither depends directly on the Telegram Bot API
// types. internal/telegram provides the concrete implementation.
package chatmsg

import "context"

// Sent describes a message that was successfully posted.
type Sent struct {
	MessageID int
}

// Client is the subset of chat-platform operations the pacer serializes.
// A single Client value represents one authenticated identity (the bot, or
// a logged-in user) — the pacer runs one background loop per Client.
type Client interface {
	// SendMessage posts text as a new message in chatID.
	SendMessage(ctx context.Context, chatID int64, text string) (Sent, error)
	// ReplyMessage posts text as a reply to replyToMessageID in chatID.
	ReplyMessage(ctx context.Context, chatID int64, replyToMessageID int, text string) (Sent, error)
	// EditMessage overwrites the text of an existing message.
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	// DeleteMessage removes an existing message. Implementations should
	// treat "already deleted" as success.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}
