package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
	"github.com/basket/goclaw-bridge/internal/graphclient"
	"github.com/basket/goclaw-bridge/internal/session"
)

func openTestStore(t *testing.T) *session.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := session.Open(context.Background(), filepath.Join(dir, "session.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndFirstAccountBecomesCurrentOnSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Current(ctx); !errors.As(err, new(*bridgeerr.Error)) {
		t.Fatalf("expected authorization error with no account linked, got %v", err)
	}

	acc := session.Account{Username: "alice@example.com", RootPath: "/photos", AccessToken: "tok1", RefreshToken: "ref1"}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, acc.Username); err != nil {
		t.Fatalf("set current user: %v", err)
	}

	current, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.Username != acc.Username || current.RootPath != acc.RootPath {
		t.Fatalf("unexpected current account: %+v", current)
	}
}

func TestSaveUpdatesExistingAccount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc := session.Account{Username: "bob@example.com", AccessToken: "old", RefreshToken: "old", RootPath: "/a"}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	acc.AccessToken = "new"
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	got, err := s.Get(ctx, acc.Username)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "new" {
		t.Fatalf("expected updated token, got %q", got.AccessToken)
	}

	names, err := s.Usernames(ctx)
	if err != nil {
		t.Fatalf("usernames: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected exactly one account after update, got %v", names)
	}
}

func TestChangeAccountRequiresExistingUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ChangeAccount(ctx, "ghost@example.com"); err == nil {
		t.Fatal("expected error switching to an unlinked account")
	}
}

func TestRemoveCurrentUserFallsBackToRemainingAccount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := session.Account{Username: "a@example.com", RootPath: "/a"}
	b := session.Account{Username: "b@example.com", RootPath: "/b"}
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := s.Save(ctx, b); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if err := s.SetCurrentUser(ctx, a.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}

	if err := s.RemoveUser(ctx, a.Username); err != nil {
		t.Fatalf("remove user: %v", err)
	}

	current, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("current after removal: %v", err)
	}
	if current.Username != b.Username {
		t.Fatalf("expected fallback to remaining account %q, got %q", b.Username, current.Username)
	}
}

func TestRemoveLastUserLeavesNoCurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := session.Account{Username: "solo@example.com", RootPath: "/x"}
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, a.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := s.RemoveUser(ctx, a.Username); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := s.Current(ctx); err == nil {
		t.Fatal("expected no current account after removing the only linked one")
	}
}

func TestAccountIsExpired(t *testing.T) {
	acc := session.Account{ExpirationTimestamp: 1}
	if !acc.IsExpired() {
		t.Fatal("expected long-past expiration to be expired")
	}
}

func TestRootPathFallsBackToAccountRoot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc := session.Account{Username: "a@example.com", RootPath: "/movies", AccessToken: "t", RefreshToken: "r"}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, acc.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}

	got, err := s.RootPath(ctx, true)
	if err != nil {
		t.Fatalf("root path: %v", err)
	}
	if got != "/movies" {
		t.Fatalf("got %q want /movies", got)
	}
}

func TestRootPathConsumesTempOverrideOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc := session.Account{Username: "a@example.com", RootPath: "/movies", AccessToken: "t", RefreshToken: "r"}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, acc.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := s.SetTempRoot("/one-shot"); err != nil {
		t.Fatalf("set temp root: %v", err)
	}

	first, err := s.RootPath(ctx, true)
	if err != nil {
		t.Fatalf("root path: %v", err)
	}
	if first != "/one-shot" {
		t.Fatalf("got %q want /one-shot", first)
	}

	second, err := s.RootPath(ctx, true)
	if err != nil {
		t.Fatalf("root path: %v", err)
	}
	if second != "/movies" {
		t.Fatalf("expected override consumed, got %q", second)
	}
}

func TestCancelTempRootClearsWithoutConsuming(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc := session.Account{Username: "a@example.com", RootPath: "/movies", AccessToken: "t", RefreshToken: "r"}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, acc.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := s.SetTempRoot("/one-shot"); err != nil {
		t.Fatalf("set temp root: %v", err)
	}
	s.CancelTempRoot()

	got, err := s.RootPath(ctx, true)
	if err != nil {
		t.Fatalf("root path: %v", err)
	}
	if got != "/movies" {
		t.Fatalf("got %q want /movies after cancel", got)
	}
}

func TestSetTempRootRejectsInvalidPath(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetTempRoot("relative/path"); err == nil {
		t.Fatal("expected an error for a non-absolute temp root")
	}
}

func TestRefreshIfExpiredSkipsValidToken(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	acc := session.Account{
		Username: "a@example.com", RootPath: "/x",
		AccessToken: "valid", RefreshToken: "r",
		ExpirationTimestamp: time.Now().Add(time.Hour).Unix(),
	}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, acc.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}

	got, err := s.RefreshIfExpired(ctx, http.DefaultClient, graphclient.OAuthConfig{})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.AccessToken != "valid" {
		t.Fatalf("expected untouched token, got %q", got.AccessToken)
	}
}

func TestRefreshIfExpiredRotatesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"fresh-r","expires_in":3600}`))
	}))
	defer srv.Close()
	old := graphclient.TokenEndpoint
	graphclient.TokenEndpoint = srv.URL
	t.Cleanup(func() { graphclient.TokenEndpoint = old })

	s := openTestStore(t)
	ctx := context.Background()

	acc := session.Account{
		Username: "a@example.com", RootPath: "/x",
		AccessToken: "stale", RefreshToken: "old-r",
		ExpirationTimestamp: 1,
	}
	if err := s.Save(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCurrentUser(ctx, acc.Username); err != nil {
		t.Fatalf("set current: %v", err)
	}

	got, err := s.RefreshIfExpired(ctx, http.DefaultClient, graphclient.OAuthConfig{})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.AccessToken != "fresh" || got.RefreshToken != "fresh-r" {
		t.Fatalf("unexpected refreshed account: %+v", got)
	}

	persisted, err := s.Get(ctx, acc.Username)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if persisted.AccessToken != "fresh" {
		t.Fatalf("expected refresh to persist, got %+v", persisted)
	}
}
