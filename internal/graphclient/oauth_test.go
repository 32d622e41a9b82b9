package graphclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestDoTokenRequestParsesTokenResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("grant_type") != "authorization_code" {
			t.Fatalf("unexpected grant_type: %s", r.FormValue("grant_type"))
		}
		if r.FormValue("code") != "abc123" {
			t.Fatalf("unexpected code: %s", r.FormValue("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer srv.Close()

	form := url.Values{"grant_type": {"authorization_code"}, "code": {"abc123"}}
	tok, err := doTokenRequest(context.Background(), srv.Client(), srv.URL, form)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" || tok.ExpiresIn != 3600 {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestDoTokenRequestRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	if _, err := doTokenRequest(context.Background(), srv.Client(), srv.URL, url.Values{}); err == nil {
		t.Fatal("expected an error for a non-200 token response")
	}
}

func TestExpirationTimestampIsInTheFuture(t *testing.T) {
	ts := ExpirationTimestamp(60)
	if ts <= 0 {
		t.Fatalf("expected a positive timestamp, got %d", ts)
	}
}
