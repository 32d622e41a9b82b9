package worker

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
)

// PreflightURL issues a HEAD request against rawURL and returns the
// declared total content length and content type. The resumable upload
// protocol requires total_length up front, so task insertion must fail
// before a row is ever written when the source doesn't advertise one.
func PreflightURL(ctx context.Context, client *http.Client, rawURL string) (totalLength int64, contentType string, err error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return 0, "", bridgeerr.Validation("url %q is not an http(s) url", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, "", bridgeerr.Validation("malformed url %q", rawURL)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", bridgeerr.Transport(err, "preflight HEAD %s", rawURL)
	}
	defer resp.Body.Close()

	raw := resp.Header.Get("Content-Length")
	if raw == "" {
		return 0, "", bridgeerr.Protocol(nil, "Content-Length not found in response headers.\nStatus code:\n%s\nResponse headers:\n%s",
			resp.Status, renderHeaders(resp.Header))
	}

	length, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		return 0, "", bridgeerr.Protocol(parseErr, "malformed Content-Length %q", raw)
	}

	return length, resp.Header.Get("Content-Type"), nil
}

func renderHeaders(h http.Header) string {
	var b strings.Builder
	for k, vs := range h {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return b.String()
}
