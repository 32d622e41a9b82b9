package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/oauthserver"
	"github.com/basket/goclaw-bridge/internal/session"
	"github.com/basket/goclaw-bridge/internal/telegram"
)

// authTimeout bounds how long a single consent flow waits for the operator
// to finish the browser step before giving up.
const authTimeout = 10 * time.Minute

// cmdAuth logs the chat-platform identity in immediately: this bridge has
// no MTProto client to drive a real phone/code challenge, so the
// chat-platform login step just records whatever bot token is configured
// as logged-in, then starts the cloud storage consent flow.
func cmdAuth(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	d.state.SetTGLoggedIn(true)
	return "Logged in to Telegram.\n" + d.beginStorageAuth(msg)
}

// beginStorageAuth returns the consent link to show immediately and starts
// a background wait for the OAuth redirect's code; the flow's outcome is
// reported later via a follow-up message.
func (d *Dispatcher) beginStorageAuth(msg telegram.Incoming) string {
	authURL := graphclient.AuthorizeURL(d.deps.GraphOAuth)
	ch, cancel := d.deps.OAuthSrv.WaitForCode(oauthserver.ProviderStorage)

	go func() {
		defer cancel()
		waitCtx, stop := context.WithTimeout(context.Background(), authTimeout)
		defer stop()

		select {
		case code := <-ch:
			d.finishStorageAuth(waitCtx, msg, code)
		case <-waitCtx.Done():
			_, _ = d.deps.BotPacer.Respond(context.Background(), msg.ChatID, "Storage login timed out, use /auth to try again.")
		}
	}()

	return fmt.Sprintf("Open this link to link your storage account:\n%s", authURL)
}

func (d *Dispatcher) finishStorageAuth(ctx context.Context, msg telegram.Incoming, code string) {
	tok, err := graphclient.ExchangeCode(ctx, d.deps.HTTPClient, d.deps.GraphOAuth, code)
	if err != nil {
		d.deps.Logger.Warn("handlers: exchange code failed", "chat_id", msg.ChatID, "error", err)
		_, _ = d.deps.BotPacer.Respond(ctx, msg.ChatID, fmt.Sprintf("Storage login failed: %s", bridgeerr.UserMessage(err)))
		return
	}

	username, err := graphclient.FetchUserPrincipalName(ctx, d.deps.HTTPClient, tok.AccessToken)
	if err != nil {
		d.deps.Logger.Warn("handlers: fetch profile failed", "chat_id", msg.ChatID, "error", err)
		_, _ = d.deps.BotPacer.Respond(ctx, msg.ChatID, fmt.Sprintf("Storage login failed: %s", bridgeerr.UserMessage(err)))
		return
	}

	acc := session.Account{
		Username:            username,
		ExpirationTimestamp: graphclient.ExpirationTimestamp(tok.ExpiresIn),
		AccessToken:         tok.AccessToken,
		RefreshToken:        tok.RefreshToken,
		RootPath:            d.deps.DefaultRootPath,
	}
	if err := d.deps.Sessions.Save(ctx, acc); err != nil {
		d.deps.Logger.Warn("handlers: save account failed", "chat_id", msg.ChatID, "error", err)
		_, _ = d.deps.BotPacer.Respond(ctx, msg.ChatID, fmt.Sprintf("Storage login failed: %s", bridgeerr.UserMessage(err)))
		return
	}
	if err := d.deps.Sessions.SetCurrentUser(ctx, username); err != nil {
		d.deps.Logger.Warn("handlers: set current user failed", "chat_id", msg.ChatID, "error", err)
	}

	_, _ = d.deps.BotPacer.Respond(ctx, msg.ChatID, fmt.Sprintf("Linked storage account %s.", username))
}
