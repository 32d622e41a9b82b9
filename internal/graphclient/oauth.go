package graphclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenEndpoint is the Microsoft identity platform v2 token endpoint used
// for both the initial authorization-code exchange and refresh-token
// rotation. A var, not a const, so tests can point it at a local server.
var TokenEndpoint = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

// AuthorizeEndpoint is the Microsoft identity platform v2 authorize
// endpoint the operator's browser is sent to in order to start the
// consent flow. A var for the same reason as TokenEndpoint.
var AuthorizeEndpoint = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"

// meEndpoint returns the signed-in user's own profile, queried once after
// the token exchange to learn the identifier the session store keys
// accounts by.
const meEndpoint = "https://graph.microsoft.com/v1.0/me"

// scope requests offline access (a refresh token) plus read/write over the
// signed-in user's own drive.
const scope = "offline_access Files.ReadWrite"

// OAuthConfig carries the app registration the operator configured via
// --od-client-id/--od-client-secret.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TokenResult is the subset of a token endpoint response the session store
// persists.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// ExchangeCode trades an authorization code obtained from the OAuth
// callback server for an access/refresh token pair.
func ExchangeCode(ctx context.Context, client *http.Client, cfg OAuthConfig, code string) (TokenResult, error) {
	form := url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"redirect_uri":  {cfg.RedirectURI},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"scope":         {scope},
	}
	return doTokenRequest(ctx, client, TokenEndpoint, form)
}

// RefreshToken trades a refresh token for a fresh access/refresh token
// pair, used to keep a linked account usable past its access token's
// expiry without forcing the user through the browser flow again.
func RefreshToken(ctx context.Context, client *http.Client, cfg OAuthConfig, refreshToken string) (TokenResult, error) {
	form := url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
		"scope":         {scope},
	}
	return doTokenRequest(ctx, client, TokenEndpoint, form)
}

func doTokenRequest(ctx context.Context, client *http.Client, endpoint string, form url.Values) (TokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResult{}, fmt.Errorf("graphclient: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return TokenResult{}, fmt.Errorf("graphclient: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenResult{}, fmt.Errorf("graphclient: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return TokenResult{}, fmt.Errorf("graphclient: token endpoint returned %s: %s", resp.Status, string(body))
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TokenResult{}, fmt.Errorf("graphclient: parse token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return TokenResult{}, fmt.Errorf("graphclient: token response missing access_token")
	}
	return TokenResult{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    parsed.ExpiresIn,
	}, nil
}

// AuthorizeURL builds the browser-facing consent URL the operator opens to
// grant this app access to their storage account.
func AuthorizeURL(cfg OAuthConfig) string {
	v := url.Values{
		"client_id":     {cfg.ClientID},
		"response_type": {"code"},
		"redirect_uri":  {cfg.RedirectURI},
		"response_mode": {"query"},
		"scope":         {scope},
	}
	return AuthorizeEndpoint + "?" + v.Encode()
}

// FetchUserPrincipalName queries the signed-in user's own profile for the
// identifier used as the session store's account username.
func FetchUserPrincipalName(ctx context.Context, client *http.Client, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("graphclient: build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("graphclient: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("graphclient: fetch profile: status %s", resp.Status)
	}

	var parsed struct {
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("graphclient: decode profile: %w", err)
	}
	if parsed.UserPrincipalName == "" {
		return "", fmt.Errorf("graphclient: userPrincipalName not found in profile response")
	}
	return parsed.UserPrincipalName, nil
}

// ExpirationTimestamp converts a token's expires_in seconds into an
// absolute Unix timestamp, the form the session store persists.
func ExpirationTimestamp(expiresIn int64) int64 {
	return time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()
}
