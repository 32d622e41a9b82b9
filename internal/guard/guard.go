// Package guard provides the composable preconditions command handlers
// run behind: each guard inspects a Request and either lets the chain
// continue or short-circuits it with a reply sent straight back to the
// user.
package guard

import "context"

// Request is the minimal context a guard needs to decide whether a command
// may proceed.
type Request struct {
	ChatID     int64
	UserID     int64
	Username   string
	IsGroup    bool
	LoggedInTG bool
	LoggedInOD bool
}

// Func is a single guard. Returning cont=false short-circuits the chain;
// reply, if non-empty, is sent back to the user as the command's response.
type Func func(ctx context.Context, req *Request) (cont bool, reply string)

// Chain runs a list of guards in order, stopping at the first one that
// returns cont=false.
type Chain []Func

// Run executes the chain, returning (true, "") if every guard passed, or
// (false, reply) from the first guard that didn't.
func (c Chain) Run(ctx context.Context, req *Request) (bool, string) {
	for _, g := range c {
		if cont, reply := g(ctx, req); !cont {
			return false, reply
		}
	}
	return true, ""
}

// RequireTelegramLogin rejects commands that need a logged-in user session
// (e.g. /links, /url) when the user identity hasn't authenticated yet.
func RequireTelegramLogin() Func {
	return func(_ context.Context, req *Request) (bool, string) {
		if !req.LoggedInTG {
			return false, "Please log in to Telegram first. Use /auth."
		}
		return true, ""
	}
}

// RequireStorageLogin rejects commands that need a linked cloud storage
// account.
func RequireStorageLogin() Func {
	return func(_ context.Context, req *Request) (bool, string) {
		if !req.LoggedInOD {
			return false, "Please log in to your cloud storage account first. Use /auth."
		}
		return true, ""
	}
}

// RequireAllowedSender rejects commands from a user not present in the
// configured allow-list. allowed is nil-safe: a nil or empty list means
// anyone qualifies.
func RequireAllowedSender(isAllowed func(username string) bool) Func {
	return func(_ context.Context, req *Request) (bool, string) {
		if isAllowed == nil || isAllowed(req.Username) {
			return true, ""
		}
		return false, ""
	}
}

// RequireGroupChat rejects commands issued outside a group chat, used by
// commands that only make sense alongside the linked-source chat.
func RequireGroupChat() Func {
	return func(_ context.Context, req *Request) (bool, string) {
		if !req.IsGroup {
			return false, "This command can only be used in a group."
		}
		return true, ""
	}
}
