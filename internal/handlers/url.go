package handlers

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/store"
	"github.com/basket/goclaw-bridge/internal/telegram"
	"github.com/basket/goclaw-bridge/internal/worker"
)

// cmdURL enqueues an HTTP(S) resource as a Url task once a HEAD preflight
// confirms it advertises a Content-Length.
func cmdURL(ctx context.Context, d *Dispatcher, msg telegram.Incoming, args string) string {
	rawURL := strings.TrimSpace(args)
	if rawURL == "" {
		return "Usage: /url $http_url"
	}

	totalLength, contentType, err := worker.PreflightURL(ctx, d.deps.HTTPClient, rawURL)
	if err != nil {
		d.deps.Logger.Warn("handlers: url preflight failed", "url", rawURL, "error", err)
		return bridgeerr.UserMessage(err)
	}

	filename := filenameFromURL(rawURL)
	return d.ingest(ctx, msg, store.CmdTypeURL, filename, totalLength, contentType, "", rawURL)
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "download"
	}
	return base
}
