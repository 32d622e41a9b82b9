package oauthserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// loginPage is the static HTML form served at GET /. It posts the
// chat-platform login code to POST /tg as JSON.
const loginPage = `<!DOCTYPE html>
<html>
<head><title>goclaw-bridge login</title></head>
<body>
<h3>Enter the login code sent to your chat client</h3>
<form id="f"><input id="code" name="code" autocomplete="off"><button type="submit">Submit</button></form>
<script>
document.getElementById('f').addEventListener('submit', function(e) {
  e.preventDefault();
  fetch('/tg', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({code: document.getElementById('code').value}),
  });
});
</script>
</body>
</html>`

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8443".
	Addr string
	// CertDir is passed to LoadOrGenerate to obtain the TLS certificate.
	CertDir string
}

// Server is the local HTTPS callback listener shared by the Telegram
// login-code flow (POST /tg) and the cloud storage OAuth redirect
// (GET /auth?code=). Each flow waits on its own channel obtained from
// WaitForCode; the server forwards whichever code arrives first on each
// route to every waiter registered for that provider.
type Server struct {
	cfg Config

	mu      sync.Mutex
	waiters map[string][]chan<- string
}

// New constructs a Server. It does not start listening until Run is called.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, waiters: make(map[string][]chan<- string)}
}

const (
	// ProviderTelegram identifies the chat-platform login code flow.
	ProviderTelegram = "tg"
	// ProviderStorage identifies the cloud storage OAuth redirect flow.
	ProviderStorage = "od"
)

// WaitForCode registers interest in the next code delivered for provider
// and returns a channel that receives exactly one value, plus a cancel
// function that unregisters the waiter if the caller gives up first.
func (s *Server) WaitForCode(provider string) (<-chan string, func()) {
	ch := make(chan string, 1)
	s.mu.Lock()
	s.waiters[provider] = append(s.waiters[provider], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.waiters[provider]
		for i, c := range list {
			if c == ch {
				s.waiters[provider] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

// deliver fans a code out to every waiter currently registered for
// provider, then clears the list — each waiter is one-shot.
func (s *Server) deliver(provider, code string) {
	s.mu.Lock()
	list := s.waiters[provider]
	s.waiters[provider] = nil
	s.mu.Unlock()

	for _, ch := range list {
		select {
		case ch <- code:
		default:
		}
	}
}

// Run starts the HTTPS listener in the background and returns a Handle
// scoping its lifetime. Release the handle to shut the listener down;
// Run itself does not block.
func (s *Server) Run(ctx context.Context) (*Handle, error) {
	cert, err := LoadOrGenerate(s.cfg.CertDir)
	if err != nil {
		return nil, fmt.Errorf("oauthserver: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/tg", s.handleTelegramCode)
	mux.HandleFunc("/auth", s.handleStorageRedirect)

	httpSrv := &http.Server{
		Addr:      s.cfg.Addr,
		Handler:   mux,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}

	runCtx, handle := newHandle(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServeTLS("", "")
	}()

	go func() {
		waitForRelease(runCtx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), pollInterval*10)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			handle.Release()
			return nil, fmt.Errorf("oauthserver: listen: %w", err)
		}
	default:
	}

	return handle, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(loginPage))
}

func (s *Server) handleTelegramCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	s.deliver(ProviderTelegram, body.Code)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStorageRedirect(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	s.deliver(ProviderStorage, code)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body>Login complete, you may close this window.</body></html>"))
}
