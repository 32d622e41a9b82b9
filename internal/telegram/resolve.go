package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ResolveChatID looks up the numeric chat id behind a public @username, used
// to forward a message reached via the public-chat form of a message link
// ("https://t.me/{username}/{message_id}").
func (c *Client) ResolveChatID(ctx context.Context, username string) (int64, error) {
	chat, err := c.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: "@" + username},
	})
	if err != nil {
		return 0, fmt.Errorf("telegram: resolve chat %q: %w", username, err)
	}
	return chat.ID, nil
}

// ForwardMessage copies messageID from fromChatID into toChatID and returns
// the forwarded copy. A Link task's byte source is always reached this
// way: forwarding gives the bot identity a message it can read attachments
// from regardless of which chat originally hosted it.
func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (*tgbotapi.Message, error) {
	fwd := tgbotapi.NewForward(toChatID, fromChatID, messageID)
	msg, err := c.bot.Send(fwd)
	if err != nil {
		return nil, fmt.Errorf("telegram: forward message %d from chat %d: %w", messageID, fromChatID, err)
	}
	return &msg, nil
}
