package logger

import "strings"

// SanitizedEmail masks an email address for logging ("u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	domainParts := strings.Split(parts[1], ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
	}

	return username + "@" + strings.Join(domainParts, ".")
}

// Query parameters whose presence makes the whole query string
// unloggable. RSVP and unsubscribe links carry the raw token in "token".
var sensitiveParams = []string{
	"token",
	"password",
	"secret",
	"email",
	"auth",
}

// SensitiveQueryString reports whether a raw query string must be redacted
// before logging
func SensitiveQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
