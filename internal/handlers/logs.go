package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

const logsHelpText = `/logs - report log retention settings
/logs clear - run the retention sweep now
/logs help - this message`

// cmdLogs reports on and triggers the daily log retention sweep.
// chatmsg.Client exposes no document-sending operation, so rather than
// zipping the log directory into the chat this reports the schedule and
// lets an operator trigger or inspect the sweep directly.
func cmdLogs(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	switch strings.TrimSpace(args) {
	case "clear":
		if err := d.deps.LogCleaner.Sweep(time.Now()); err != nil {
			return fmt.Sprintf("Log sweep failed: %s", bridgeerr.UserMessage(err))
		}
		return "Expired logs cleared."
	case "help":
		return logsHelpText
	default:
		return "Log retention runs on a daily schedule. Use /logs clear to run it now."
	}
}
