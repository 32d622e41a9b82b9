package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

const driveHelpText = `/drive - list linked accounts
/drive add - link a new account
/drive $index - switch to account $index
/drive logout - unlink the active account
/drive logout $index - unlink account $index`

// cmdDrive implements the whole "/drive" family, parsing its own
// subcommand out of args rather than being registered as N separate
// top-level commands.
func cmdDrive(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return d.renderDriveList(ctx)
	}

	switch fields[0] {
	case "help":
		return driveHelpText
	case "add":
		return d.beginStorageAuth(msg)
	case "logout":
		if len(fields) >= 2 {
			idx, err := strconv.Atoi(fields[1])
			if err != nil {
				return "Usage: /drive logout $index"
			}
			return d.driveLogout(ctx, idx)
		}
		return d.driveLogout(ctx, 0)
	default:
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			return "Unknown /drive subcommand. Use /drive help."
		}
		return d.driveSwitch(ctx, idx)
	}
}

func (d *Dispatcher) renderDriveList(ctx context.Context) string {
	names, err := d.deps.Sessions.Usernames(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to list accounts: %s", bridgeerr.UserMessage(err))
	}
	if len(names) == 0 {
		return "No storage accounts linked. Use /drive add."
	}

	current, _ := d.deps.Sessions.CurrentUsername(ctx)
	var b strings.Builder
	b.WriteString("Linked accounts:")
	for i, n := range names {
		marker := ""
		if n == current {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "\n%d. %s%s", i+1, n, marker)
	}
	return b.String()
}

func (d *Dispatcher) driveSwitch(ctx context.Context, idx int) string {
	names, err := d.deps.Sessions.Usernames(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to list accounts: %s", bridgeerr.UserMessage(err))
	}
	if idx < 1 || idx > len(names) {
		return "Unknown account index. Use /drive to list accounts."
	}
	username := names[idx-1]
	if err := d.deps.Sessions.ChangeAccount(ctx, username); err != nil {
		return fmt.Sprintf("Failed to switch account: %s", bridgeerr.UserMessage(err))
	}
	return fmt.Sprintf("Switched to account %s.", username)
}

// driveLogout unlinks the account at idx (1-based), or the active account
// when idx is 0.
func (d *Dispatcher) driveLogout(ctx context.Context, idx int) string {
	names, err := d.deps.Sessions.Usernames(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to list accounts: %s", bridgeerr.UserMessage(err))
	}
	if len(names) == 0 {
		return "No storage accounts linked."
	}

	username := ""
	if idx == 0 {
		username, err = d.deps.Sessions.CurrentUsername(ctx)
		if err != nil || username == "" {
			return "No active account to log out."
		}
	} else {
		if idx < 1 || idx > len(names) {
			return "Unknown account index. Use /drive to list accounts."
		}
		username = names[idx-1]
	}

	if err := d.deps.Sessions.RemoveUser(ctx, username); err != nil {
		return fmt.Sprintf("Failed to log out: %s", bridgeerr.UserMessage(err))
	}
	return fmt.Sprintf("Logged out of %s.", username)
}
