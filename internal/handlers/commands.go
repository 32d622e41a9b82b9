package handlers

import (
	"context"
	"strings"

	"github.com/basket/goclaw-bridge/internal/guard"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

// commandFunc implements one top-level command. args is the message text
// with the leading command word (and any "@botname" suffix) stripped and
// trimmed; commands with subcommands (e.g. "/drive add") parse args
// themselves.
type commandFunc func(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string

type commandSpec struct {
	name   string
	guards guard.Chain
	fn     commandFunc
}

// commandTable is checked in order; the dispatcher takes the first entry
// whose name equals the message's leading word.
var commandTable = []commandSpec{
	{name: "/start", fn: cmdHelp},
	{name: "/help", fn: cmdHelp},
	{name: "/version", fn: cmdVersion},
	{name: "/auth", fn: cmdAuth},
	{name: "/clear", guards: guard.Chain{guard.RequireTelegramLogin()}, fn: cmdClear},
	{name: "/autoDelete", guards: guard.Chain{guard.RequireTelegramLogin()}, fn: cmdAutoDelete},
	{name: "/logs", guards: guard.Chain{guard.RequireTelegramLogin()}, fn: cmdLogs},
	{name: "/drive", guards: guard.Chain{guard.RequireTelegramLogin()}, fn: cmdDrive},
	{name: "/dir", guards: guard.Chain{guard.RequireTelegramLogin(), guard.RequireStorageLogin()}, fn: cmdDir},
	{name: "/links", guards: guard.Chain{guard.RequireTelegramLogin(), guard.RequireStorageLogin()}, fn: cmdLinks},
	{name: "/url", guards: guard.Chain{guard.RequireTelegramLogin(), guard.RequireStorageLogin()}, fn: cmdURL},
}

func (d *Dispatcher) handleText(ctx context.Context, msg telegram.Incoming) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	fields := strings.Fields(text)
	head := stripBotSuffix(fields[0])

	var spec *commandSpec
	for i := range commandTable {
		if commandTable[i].name == head {
			spec = &commandTable[i]
			break
		}
	}
	if spec == nil {
		return
	}

	req := &guard.Request{
		ChatID:     msg.ChatID,
		UserID:     msg.UserID,
		Username:   msg.Username,
		IsGroup:    msg.IsGroup,
		LoggedInTG: d.state.TGLoggedIn(),
		LoggedInOD: d.isODLoggedIn(ctx),
	}
	chain := append(guard.Chain{guard.RequireAllowedSender(d.state.AllowedUser)}, spec.guards...)
	if cont, reply := chain.Run(ctx, req); !cont {
		d.reply(ctx, msg, reply)
		return
	}

	args := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	d.reply(ctx, msg, spec.fn(ctx, d, msg, args))
}

// stripBotSuffix drops a trailing "@botname" Telegram appends to commands
// issued in a group chat, e.g. "/start@goclawbridge_bot" -> "/start".
func stripBotSuffix(word string) string {
	if i := strings.IndexByte(word, '@'); i >= 0 {
		return word[:i]
	}
	return word
}

const helpText = `goclaw-bridge: send a file, a https://t.me message link, or an http(s) URL to upload it to your linked cloud storage account.

Commands:
/start, /help - this message
/auth - log in to the chat platform and your storage account
/clear - cancel all in-flight tasks in this chat
/autoDelete - toggle deleting the trigger message on completion
/logs, /logs clear, /logs help - log retention
/drive, /drive add, /drive $index, /drive logout, /drive logout $index - storage account switching
/dir, /dir $path, /dir reset, /dir temp $path, /dir temp cancel - destination folder
/links $message_link $n - enqueue n messages starting at a message link
/url $http_url - enqueue an HTTP(S) resource
/version - report the running build`

func cmdHelp(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	return helpText
}

func cmdVersion(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	return "goclaw-bridge " + Version
}

// cmdAutoDelete flips the process-wide toggle; consecutive invocations
// alternate between the two replies below.
func cmdAutoDelete(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	if d.state.ToggleAutoDelete() {
		return "Bot will auto delete message."
	}
	return "Bot won't auto delete message."
}
