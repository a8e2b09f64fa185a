package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// 32 random bytes = 256 bits of entropy, well beyond what the rate
	// limiter's attempt budget could ever brute-force
	tokenBytes = 32

	// MaskRevealLength is how many leading characters Mask keeps for logs
	MaskRevealLength = 6

	// ReminderTokenTTL covers RSVP and unsubscribe links; members may open a
	// reminder email days after it arrives
	ReminderTokenTTL = 14 * 24 * time.Hour

	// PasswordResetTokenTTL is deliberately short
	PasswordResetTokenTTL = 1 * time.Hour
)

// Generate returns a cryptographically random, URL-safe token string
func Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// Hash returns the SHA-256 hex digest of a token. Only this digest is ever
// persisted; lookups re-hash the presented raw token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ExpiryAt computes a token's expiry from its mint time
func ExpiryAt(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}

// Mask returns a log-safe form of a token revealing only a short prefix
func Mask(token string) string {
	if len(token) <= MaskRevealLength {
		return "***"
	}
	return token[:MaskRevealLength] + "..."
}
