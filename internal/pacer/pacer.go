// Package pacer serializes a single chat-platform identity's outbound
// messages: one background loop per identity (bot or logged-in user) drains
// a per-chat FIFO queue, jittering between sweeps so bursts of progress
// updates never trip the platform's rate limits.
package pacer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/basket/goclaw-bridge/internal/chatmsg"
)

// kind distinguishes the four outbound operations the pacer can perform.
type kind int

const (
	kindRespond kind = iota
	kindReply
	kindEdit
	kindDelete
)

// Result is delivered exactly once per submitted operation: Sent is set for
// Respond/Reply, Err is set on failure, both are zero on a successful
// Edit/Delete.
type Result struct {
	Sent chatmsg.Sent
	Err  error
}

type op struct {
	kind      kind
	chatID    int64
	messageID int // reply target (Reply) or edit/delete target (Edit/Delete)
	text      string
	reply     chan Result
}

// Config tunes the pacer's inter-sweep jitter window. JitterMin/JitterMax
// bound the uniformly random sleep between sweeps across all chats; the
// default window approximates one message per 3s per chat.
type Config struct {
	JitterMin time.Duration
	JitterMax time.Duration
}

// DefaultConfig returns the empirically tuned jitter window.
func DefaultConfig() Config {
	return Config{JitterMin: 2700 * time.Millisecond, JitterMax: 3500 * time.Millisecond}
}

// Pacer serializes outbound calls through one chatmsg.Client, one chat
// queue at a time, round-robining across chats with pending work.
type Pacer struct {
	client chatmsg.Client
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	queues map[int64][]*op
	order  []int64 // chat ids in first-seen order, for stable round-robin
}

// New returns a Pacer bound to client. Call Run in its own goroutine to
// start draining; submissions are safe to make before Run starts.
func New(client chatmsg.Client, cfg Config, logger *slog.Logger) *Pacer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pacer{
		client: client,
		cfg:    cfg,
		logger: logger,
		queues: make(map[int64][]*op),
	}
}

func (p *Pacer) enqueue(o *op) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o.kind == kindEdit {
		if q := p.queues[o.chatID]; q != nil {
			for _, existing := range q {
				if existing.kind == kindEdit && existing.messageID == o.messageID {
					existing.text = o.text
					existing.reply <- Result{}
					existing.reply = o.reply
					return
				}
			}
		}
	}

	if _, ok := p.queues[o.chatID]; !ok {
		p.order = append(p.order, o.chatID)
	}
	p.queues[o.chatID] = append(p.queues[o.chatID], o)
}

// Respond submits a new outbound message in chatID and blocks until it has
// been sent (or the operation fails).
func (p *Pacer) Respond(ctx context.Context, chatID int64, text string) (chatmsg.Sent, error) {
	return p.submit(ctx, &op{kind: kindRespond, chatID: chatID, text: text})
}

// Reply submits a reply to replyToMessageID in chatID.
func (p *Pacer) Reply(ctx context.Context, chatID int64, replyToMessageID int, text string) (chatmsg.Sent, error) {
	return p.submit(ctx, &op{kind: kindReply, chatID: chatID, messageID: replyToMessageID, text: text})
}

// Edit submits an edit of messageID in chatID. If an edit for the same
// message is already queued, the newer text replaces it in place rather
// than adding a second edit.
func (p *Pacer) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := p.submit(ctx, &op{kind: kindEdit, chatID: chatID, messageID: messageID, text: text})
	return err
}

// Delete submits a deletion of messageID in chatID.
func (p *Pacer) Delete(ctx context.Context, chatID int64, messageID int) error {
	_, err := p.submit(ctx, &op{kind: kindDelete, chatID: chatID, messageID: messageID})
	return err
}

func (p *Pacer) submit(ctx context.Context, o *op) (chatmsg.Sent, error) {
	o.reply = make(chan Result, 1)
	p.enqueue(o)

	select {
	case res := <-o.reply:
		return res.Sent, res.Err
	case <-ctx.Done():
		return chatmsg.Sent{}, ctx.Err()
	}
}

// Run drains the pacer until ctx is cancelled. Each sweep services at most
// one operation per chat (the head of that chat's queue), then sleeps a
// jittered duration before the next sweep.
func (p *Pacer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.sweep(ctx)

		jitter := p.jitter()
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
	}
}

func (p *Pacer) sweep(ctx context.Context) {
	for _, chatID := range p.chatsSnapshot() {
		o := p.pop(chatID)
		if o == nil {
			continue
		}
		p.service(ctx, o)
	}
}

func (p *Pacer) chatsSnapshot() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, len(p.order))
	copy(out, p.order)
	return out
}

func (p *Pacer) pop(chatID int64) *op {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.queues[chatID]
	if len(q) == 0 {
		return nil
	}
	o := q[0]
	q = q[1:]
	if len(q) == 0 {
		delete(p.queues, chatID)
		for i, id := range p.order {
			if id == chatID {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	} else {
		p.queues[chatID] = q
	}
	return o
}

func (p *Pacer) service(ctx context.Context, o *op) {
	var res Result
	switch o.kind {
	case kindRespond:
		res.Sent, res.Err = p.client.SendMessage(ctx, o.chatID, o.text)
	case kindReply:
		res.Sent, res.Err = p.client.ReplyMessage(ctx, o.chatID, o.messageID, o.text)
	case kindEdit:
		res.Err = p.client.EditMessage(ctx, o.chatID, o.messageID, o.text)
	case kindDelete:
		res.Err = p.client.DeleteMessage(ctx, o.chatID, o.messageID)
	}
	if res.Err != nil {
		p.logger.Warn("pacer operation failed", "chat_id", o.chatID, "message_id", o.messageID, "error", res.Err)
	}
	o.reply <- res
}

func (p *Pacer) jitter() time.Duration {
	span := int64(p.cfg.JitterMax - p.cfg.JitterMin)
	if span <= 0 {
		return p.cfg.JitterMin
	}
	return p.cfg.JitterMin + time.Duration(rand.Int64N(span))
}
