package shared

import (
	"regexp"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches the credential shapes this process actually
// handles: Telegram bot tokens, OAuth bearer/access/refresh tokens and
// client secrets, and authorization codes carried in redirect URLs.
var secretPatterns = []*regexp.Regexp{
	// Telegram bot tokens: numeric bot id, colon, base64ish secret.
	regexp.MustCompile(`\b\d{6,}:[A-Za-z0-9_-]{30,}\b`),
	// Bearer values in Authorization headers.
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// key=value / key: value forms for OAuth material and passwords.
	regexp.MustCompile(`(?i)(access[_-]?token|refresh[_-]?token|client[_-]?secret|bot[_-]?token|password)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{8,})"?`),
	// Authorization codes in callback query strings.
	regexp.MustCompile(`(?i)([?&]code=)([A-Za-z0-9_\-.%]{8,})`),
}

// Redact replaces credential-bearing substrings with [REDACTED]. Applied
// to log fields and user-facing error messages before they leave the
// process.
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			// Patterns with a prefix group keep the prefix and redact the value.
			submatch := pat.FindStringSubmatch(match)
			if len(submatch) >= 3 {
				return submatch[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}
