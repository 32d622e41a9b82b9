// Package handlers implements the chat-facing command dispatcher: it
// turns an inbound message into a guard-checked command invocation or a
// File/Link/Url task insertion, and owns the process-wide toggles the
// commands flip at runtime: the auto-delete flag and whether the
// chat-platform login step has run.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/goclaw-bridge/internal/coordination"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/logcleanup"
	"github.com/basket/goclaw-bridge/internal/oauthserver"
	"github.com/basket/goclaw-bridge/internal/pacer"
	"github.com/basket/goclaw-bridge/internal/progress"
	"github.com/basket/goclaw-bridge/internal/session"
	"github.com/basket/goclaw-bridge/internal/shared"
	"github.com/basket/goclaw-bridge/internal/store"
	"github.com/basket/goclaw-bridge/internal/telegram"
	"github.com/basket/goclaw-bridge/internal/telemetry"
)

// Version is stamped at build time via -ldflags; "/version" reports it
// verbatim.
var Version = "dev"

// Deps wires the dispatcher to every collaborator a command might touch.
type Deps struct {
	Tasks    *store.Store
	Sessions *session.Store
	View     *progress.View
	Aborters *coordination.Aborters

	BotPacer  *pacer.Pacer
	UserPacer *pacer.Pacer
	BotClient *telegram.Client

	HTTPClient *http.Client
	GraphOAuth graphclient.OAuthConfig
	OAuthSrv   *oauthserver.Server
	LogCleaner *logcleanup.Cleaner

	// AllowedUser gates every command through guard.RequireAllowedSender;
	// nil or always-true means no allow-list is configured.
	AllowedUser func(username string) bool

	// DefaultRootPath seeds a newly linked account's destination folder and
	// is what "/dir reset" restores.
	DefaultRootPath string

	Logger *slog.Logger
	// Tracer wraps the part-upload spans Dispatch hands off to
	// internal/worker. Nil falls back to worker's own no-op tracer.
	Tracer trace.Tracer
}

// Dispatcher holds Deps plus the small amount of mutable process state the
// command table reads and writes: the auto-delete toggle and whether the
// chat login step of /auth has run.
type Dispatcher struct {
	deps Deps

	state state
}

// New returns a Dispatcher ready to Handle updates. autoDeleteDefault seeds
// the toggle from --auto-delete.
func New(deps Deps, autoDeleteDefault bool) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := &Dispatcher{deps: deps}
	d.state.autoDelete = autoDeleteDefault
	d.state.allowedUser = deps.AllowedUser
	return d
}

// SetAllowedUser replaces the sender allow-list in place, used by a config
// hot-reload to pick up an edited allow-list without a restart.
func (d *Dispatcher) SetAllowedUser(fn func(username string) bool) {
	d.state.SetAllowedUser(fn)
}

// Handle is the telegram.Handler the poller drives for every inbound
// update. Each update gets its own trace_id so every log line it causes
// can be tied back to the triggering message.
func (d *Dispatcher) Handle(ctx context.Context, msg telegram.Incoming) {
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())
	switch {
	case msg.Deleted:
		d.handleDeleted(ctx, msg)
	case msg.HasFile:
		d.handleFile(ctx, msg)
	default:
		d.handleText(ctx, msg)
	}
}

// reply sends text back to the chat as a reply to the triggering message,
// through the bot pacer, logging (but not surfacing) a send failure.
func (d *Dispatcher) reply(ctx context.Context, msg telegram.Incoming, text string) {
	if text == "" {
		return
	}
	if _, err := d.deps.BotPacer.Reply(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		telemetry.WithTrace(ctx, d.deps.Logger).Warn("handlers: reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

func (d *Dispatcher) handleDeleted(ctx context.Context, msg telegram.Incoming) {
	d.deps.Aborters.Abort(msg.ChatID, msg.MessageID)
	if _, err := d.deps.Tasks.DeleteByMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		telemetry.WithTrace(ctx, d.deps.Logger).Warn("handlers: delete task on message delete failed", "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
	}
}

func (d *Dispatcher) isODLoggedIn(ctx context.Context) bool {
	_, err := d.deps.Sessions.Current(ctx)
	return err == nil
}
