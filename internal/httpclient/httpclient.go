// Package httpclient builds the single, shared HTTP client the transfer
// workers use for both source downloads and resumable uploads: tuned for a
// handful of large, long-lived concurrent transfers rather than many short
// requests.
package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DesktopUserAgent is attached to every outbound request. Some source
// hosts reject the default Go client UA; a common desktop browser string
// avoids that without pretending to be anything more specific.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config tunes connection pooling for the shared client. Defaults are
// sized for a worker semaphore around W=5: a handful of large, long-lived
// streaming connections, not a thundering herd of short ones.
type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	// InsecureSkipVerify trusts any TLS chain. This is a controlled local
	// deployment talking to a small, operator-chosen set of hosts; it is
	// not appropriate for a general-purpose client.
	InsecureSkipVerify bool
}

// DefaultConfig returns the pooling defaults used when no override is
// configured.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		MaxConnsPerHost:     16,
		IdleConnTimeout:     90 * time.Second,
	}
}

// New builds a *http.Client tuned per cfg. No overall timeout is set: each
// part upload or download pass bounds itself via context.
func New(cfg Config) *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	_ = http2.ConfigureTransport(tr)

	return &http.Client{
		Transport: tr,
		Timeout:   0,
	}
}

// userAgentTransport stamps DesktopUserAgent onto every outbound request
// that doesn't already set one.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", DesktopUserAgent)
	}
	return t.base.RoundTrip(req)
}

// WithDesktopUserAgent wraps client's transport so every request carries
// DesktopUserAgent unless the caller already set one.
func WithDesktopUserAgent(client *http.Client) *http.Client {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *client
	clone.Transport = userAgentTransport{base: base}
	return &clone
}
