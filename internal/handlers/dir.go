package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

const dirHelpText = `/dir - show the active destination folder
/dir $path - set the persistent destination folder
/dir reset - reset to the configured default
/dir temp $path - override the destination for the next upload only
/dir temp cancel - cancel a pending temporary override`

// cmdDir implements the "/dir" family against session.Store's persisted
// root path and one-shot temp-root override.
func cmdDir(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		root, err := d.deps.Sessions.RootPath(ctx, false)
		if err != nil {
			return fmt.Sprintf("Failed to read destination folder: %s", bridgeerr.UserMessage(err))
		}
		return fmt.Sprintf("Current destination folder: %s", root)
	}

	switch fields[0] {
	case "help":
		return dirHelpText
	case "reset":
		if err := d.deps.Sessions.SetRootPath(ctx, d.deps.DefaultRootPath); err != nil {
			return fmt.Sprintf("Failed to reset folder: %s", bridgeerr.UserMessage(err))
		}
		return fmt.Sprintf("Destination folder reset to %s.", d.deps.DefaultRootPath)
	case "temp":
		if len(fields) < 2 {
			return "Usage: /dir temp $path or /dir temp cancel"
		}
		if fields[1] == "cancel" {
			d.deps.Sessions.CancelTempRoot()
			return "Temporary destination folder override cancelled."
		}
		path := strings.Join(fields[1:], " ")
		if err := d.deps.Sessions.SetTempRoot(path); err != nil {
			return fmt.Sprintf("Invalid path: %s", bridgeerr.UserMessage(err))
		}
		return fmt.Sprintf("Next upload will go to %s.", path)
	default:
		path := strings.Join(fields, " ")
		if err := d.deps.Sessions.SetRootPath(ctx, path); err != nil {
			return fmt.Sprintf("Invalid path: %s", bridgeerr.UserMessage(err))
		}
		return fmt.Sprintf("Destination folder set to %s.", path)
	}
}
