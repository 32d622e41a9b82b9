// Package telegram implements internal/chatmsg.Client against the
// Telegram Bot API and provides the inbound update polling loop that feeds
// internal/handlers. A *Client wraps exactly one bot token; the bot and
// the "user" identity are both served by the same bot-token client, since
// the configuration carries a single bot token.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/basket/goclaw-bridge/internal/chatmsg"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client adapts a tgbotapi.BotAPI to chatmsg.Client.
type Client struct {
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
}

// NewClient logs in to the Telegram Bot API with token and returns a ready
// Client. httpClient is used for attachment downloads; pass nil to use
// http.DefaultClient.
func NewClient(token string, httpClient *http.Client) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: login: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{bot: bot, httpClient: httpClient}, nil
}

// Username reports the bot's own @username.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

var _ chatmsg.Client = (*Client)(nil)

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (chatmsg.Sent, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, msg)
}

func (c *Client) ReplyMessage(ctx context.Context, chatID int64, replyToMessageID int, text string) (chatmsg.Sent, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = replyToMessageID
	return c.send(ctx, msg)
}

func (c *Client) send(ctx context.Context, msg tgbotapi.MessageConfig) (chatmsg.Sent, error) {
	sent, err := c.bot.Request(msg)
	if err != nil {
		return chatmsg.Sent{}, fmt.Errorf("telegram: send message: %w", err)
	}
	var m tgbotapi.Message
	if sent == nil || json.Unmarshal(sent.Result, &m) != nil {
		// Some Bot API methods return a bare Message rather than one
		// wrapped in APIResponse.Result; fall back to the typed Send path.
		out, err := c.bot.Send(msg)
		if err != nil {
			return chatmsg.Sent{}, fmt.Errorf("telegram: send message: %w", err)
		}
		return chatmsg.Sent{MessageID: out.MessageID}, nil
	}
	return chatmsg.Sent{MessageID: m.MessageID}, nil
}

func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := c.bot.Send(edit); err != nil {
		if isAlreadyUpToDate(err) {
			return nil
		}
		return fmt.Errorf("telegram: edit message: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	del := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := c.bot.Request(del); err != nil {
		if isAlreadyDeleted(err) {
			return nil
		}
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// isAlreadyUpToDate matches the Bot API's "message is not modified" error,
// which EditMessage treats as success since the end state is identical.
func isAlreadyUpToDate(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// isAlreadyDeleted matches the Bot API's "message to delete not found"
// error, which DeleteMessage treats as success per chatmsg.Client's
// contract.
func isAlreadyDeleted(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "message to delete not found") || strings.Contains(msg, "message can't be deleted")
}
