package shared

import (
	"testing"
)

func TestRedact_BotToken(t *testing.T) {
	input := "telegram login failed for 123456789:AAHdq3k2l1m0n9o8p7q6r5s4t3u2v1w0xyz"
	result := Redact(input)
	if result != "telegram login failed for [REDACTED]" {
		t.Fatalf("expected bot token redaction, got %q", result)
	}
}

func TestRedact_BearerToken(t *testing.T) {
	input := "Bearer abc123def456ghi789jkl0"
	result := Redact(input)
	if result != "Bearer [REDACTED]" {
		t.Fatalf("expected 'Bearer [REDACTED]', got %q", result)
	}
}

func TestRedact_OAuthTokens(t *testing.T) {
	cases := []string{
		`refresh_token=M.C507_BAY.0.U.abcdef123456`,
		`access_token: "EwBIA8l6BAAU7p9QDpi"`,
		`client_secret=shh-very-secret-value`,
	}
	for _, input := range cases {
		result := Redact(input)
		if result == input {
			t.Errorf("expected redaction of %q, got %q", input, result)
		}
	}
}

func TestRedact_CallbackCode(t *testing.T) {
	input := "GET /auth?code=M4f6cdafe-0b1c-deadbeef&state=x"
	result := Redact(input)
	if result != "GET /auth?code=[REDACTED]&state=x" {
		t.Fatalf("expected code redaction, got %q", result)
	}
}

func TestRedact_NoSecret(t *testing.T) {
	input := "task 7 uploaded 3.20/12.00MB"
	result := Redact(input)
	if result != input {
		t.Fatalf("expected no redaction, got %q", result)
	}
}

func TestRedact_Empty(t *testing.T) {
	if result := Redact(""); result != "" {
		t.Fatalf("expected empty, got %q", result)
	}
}
