package models

import (
	"errors"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Token redemption outcomes - callers render different guidance for each
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenUsed     = errors.New("token already used")

	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// RateLimitedError carries the backoff deadline so handlers can set a
// Retry-After header. errors.Is against ErrRateLimitExceeded still holds.
type RateLimitedError struct {
	BlockedUntil time.Time // zero when the window is merely exhausted
}

func (e *RateLimitedError) Error() string { return ErrRateLimitExceeded.Error() }

func (e *RateLimitedError) Unwrap() error { return ErrRateLimitExceeded }
