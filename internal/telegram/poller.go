package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Incoming is the subset of an inbound Telegram update that
// internal/handlers needs to route and act on a command or attachment.
type Incoming struct {
	ChatID     int64
	MessageID  int
	UserID     int64
	Username   string
	IsGroup    bool
	Text       string
	Attachment Attachment
	HasFile    bool
	// Deleted is set instead of the fields above when the update reports a
	// message deletion rather than a new message.
	Deleted bool
}

// Handler processes one inbound update. It is called synchronously from
// the poll loop, so long-running work (a multi-GB upload) must be handed
// off to the scheduler rather than run inline.
type Handler func(ctx context.Context, msg Incoming)

// Poller runs the long-poll update loop for one bot identity and dispatches
// each update to Handler, reconnecting with exponential backoff on
// disconnect or stall.
type Poller struct {
	client  *Client
	handler Handler
	logger  *slog.Logger
}

// NewPoller builds a Poller for client. logger defaults to slog.Default()
// when nil.
func NewPoller(client *Client, handler Handler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, handler: handler, logger: logger}
}

// stallTimeout bounds how long the loop waits for the next update before
// assuming the long-poll connection is dead and forcing a reconnect; the
// Bot API's long-poll timeout is 60s, so 2.5x that margin tolerates one
// missed round before acting.
const stallTimeout = 150 * time.Second

// Run drives the reconnect-with-backoff polling loop until ctx is
// canceled.
func (p *Poller) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := p.client.bot.GetUpdatesChan(u)

		err := p.pollUpdates(ctx, updates)
		p.client.bot.StopReceivingUpdates()

		if err == nil {
			return nil
		}

		p.logger.Warn("telegram poll disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (p *Poller) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram: update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if in, ok := toIncoming(update); ok {
				p.handler(ctx, in)
			}
		case <-timer.C:
			return fmt.Errorf("telegram: no updates for %v, assuming disconnect", stallTimeout)
		}
	}
}

func toIncoming(update tgbotapi.Update) (Incoming, bool) {
	if update.Message == nil {
		return Incoming{}, false
	}
	msg := update.Message

	in := Incoming{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		IsGroup:  msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
	}
	if msg.MessageID != 0 {
		in.MessageID = msg.MessageID
	}
	if att, ok := AttachmentFrom(msg); ok {
		in.Attachment = att
		in.HasFile = true
	}
	in.Text = msg.Text
	return in, true
}
