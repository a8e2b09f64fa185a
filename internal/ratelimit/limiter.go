package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Config holds the constants for one limiter family. Each abuse-sensitive
// operation (login, password reset, token redemption, contact) gets its own
// named profile; the algorithm is shared.
type Config struct {
	Name          string
	MaxAttempts   int           // attempts allowed per window for a composite key
	Window        time.Duration // sliding window length
	BlockBase     time.Duration // first breach blocks this long, doubling per breach
	BlockMax      time.Duration // cap on escalated block duration
	IPMaxAttempts int           // broader per-IP-only ceiling; rotating the secondary key cannot bypass it
}

// LoginConfig allows 5 attempts per 15 minutes, then blocks starting at 1 minute
func LoginConfig() Config {
	return Config{
		Name:          "login",
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockBase:     1 * time.Minute,
		BlockMax:      1 * time.Hour,
		IPMaxAttempts: 30,
	}
}

// ForgotPasswordConfig is stricter; reset requests trigger outbound email
func ForgotPasswordConfig() Config {
	return Config{
		Name:          "forgot_password",
		MaxAttempts:   3,
		Window:        30 * time.Minute,
		BlockBase:     5 * time.Minute,
		BlockMax:      2 * time.Hour,
		IPMaxAttempts: 15,
	}
}

// TokenRedeemConfig guards the public RSVP/unsubscribe/reset redemption endpoints
func TokenRedeemConfig() Config {
	return Config{
		Name:          "token_redeem",
		MaxAttempts:   10,
		Window:        15 * time.Minute,
		BlockBase:     1 * time.Minute,
		BlockMax:      1 * time.Hour,
		IPMaxAttempts: 50,
	}
}

// ContactConfig keeps the contact form from becoming a spam relay
func ContactConfig() Config {
	return Config{
		Name:          "contact",
		MaxAttempts:   3,
		Window:        1 * time.Hour,
		BlockBase:     10 * time.Minute,
		BlockMax:      6 * time.Hour,
		IPMaxAttempts: 10,
	}
}

// Result is the outcome of one rate limit check
type Result struct {
	Allowed      bool
	Attempts     int
	BlockedUntil time.Time // zero when not blocked
}

// Limiter enforces a sliding-window attempt budget with tiered backoff per
// (primary, secondary) composite key plus a per-primary ceiling. Store errors
// fail open: an unavailable backend must not block legitimate traffic.
type Limiter struct {
	config Config
	store  Store
	logger *slog.Logger

	now func() time.Time
}

// New creates a limiter for one config profile
func New(config Config, store Store, logger *slog.Logger) *Limiter {
	return &Limiter{
		config: config,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (l *Limiter) compositeKey(primary, secondary string) string {
	return l.config.Name + "|" + primary + "|" + secondary
}

func (l *Limiter) ipKey(primary string) string {
	return l.config.Name + "|ip|" + primary
}

// Check records an attempt for the composite key and reports whether it is
// allowed. A currently blocked entry is rejected without further counting; a
// block that has been served out restores the attempt budget. Crossing the
// threshold sets a block whose duration doubles with each breach in the same
// window, capped at BlockMax.
func (l *Limiter) Check(ctx context.Context, primary, secondary string) Result {
	now := l.now()

	entry, err := l.store.Get(ctx, l.compositeKey(primary, secondary))
	if err != nil {
		l.failOpen("get", err)
		return Result{Allowed: true}
	}

	if entry != nil && entry.Blocked(now) {
		return Result{Allowed: false, Attempts: entry.Attempts, BlockedUntil: entry.BlockedUntil}
	}

	if entry == nil || now.Sub(entry.WindowStarted) >= l.config.Window {
		entry = &Entry{WindowStarted: now}
	}

	if !entry.BlockedUntil.IsZero() {
		// The block was served out: the caller gets a fresh attempt budget.
		// Breaches survive until the window itself expires, so another burst
		// escalates instead of starting over at the base block.
		entry.Attempts = 0
		entry.BlockedUntil = time.Time{}
	}

	entry.Attempts++

	result := Result{Allowed: true, Attempts: entry.Attempts}
	if entry.Attempts > l.config.MaxAttempts {
		entry.Breaches++
		entry.BlockedUntil = now.Add(l.blockDuration(entry.Breaches))
		result.Allowed = false
		result.BlockedUntil = entry.BlockedUntil

		l.logger.Warn("rate limit exceeded",
			slog.String("limiter", l.config.Name),
			slog.String("key", primary),
			slog.Int("attempts", entry.Attempts),
			slog.Time("blocked_until", entry.BlockedUntil))
	}

	if err := l.store.Put(ctx, l.compositeKey(primary, secondary), *entry, l.entryTTL(entry, now)); err != nil {
		l.failOpen("put", err)
		return Result{Allowed: true, Attempts: entry.Attempts}
	}

	if !result.Allowed {
		return result
	}

	// The per-IP ceiling catches secondary-key rotation (many emails or
	// tokens tried from one address)
	if l.config.IPMaxAttempts > 0 {
		if ipResult, ok := l.checkIPCeiling(ctx, primary, now); !ok {
			return ipResult
		}
	}

	return result
}

func (l *Limiter) checkIPCeiling(ctx context.Context, primary string, now time.Time) (Result, bool) {
	ipEntry, err := l.store.Get(ctx, l.ipKey(primary))
	if err != nil {
		l.failOpen("get", err)
		return Result{}, true
	}

	if ipEntry == nil || now.Sub(ipEntry.WindowStarted) >= l.config.Window {
		ipEntry = &Entry{WindowStarted: now}
	}

	ipEntry.Attempts++

	if err := l.store.Put(ctx, l.ipKey(primary), *ipEntry, l.entryTTL(ipEntry, now)); err != nil {
		l.failOpen("put", err)
		return Result{}, true
	}

	if ipEntry.Attempts > l.config.IPMaxAttempts {
		l.logger.Warn("per-ip rate ceiling exceeded",
			slog.String("limiter", l.config.Name),
			slog.String("key", primary),
			slog.Int("attempts", ipEntry.Attempts))
		return Result{Allowed: false, Attempts: ipEntry.Attempts}, false
	}

	return Result{}, true
}

// RecordSuccess clears the composite entry and decrements the per-IP counter
// after a legitimate success, so genuine users do not accumulate debt against
// future attempts.
func (l *Limiter) RecordSuccess(ctx context.Context, primary, secondary string) {
	if err := l.store.Delete(ctx, l.compositeKey(primary, secondary)); err != nil {
		l.failOpen("delete", err)
		return
	}

	if l.config.IPMaxAttempts == 0 {
		return
	}

	now := l.now()
	ipEntry, err := l.store.Get(ctx, l.ipKey(primary))
	if err != nil {
		l.failOpen("get", err)
		return
	}
	if ipEntry == nil || ipEntry.Attempts == 0 {
		return
	}

	ipEntry.Attempts--
	if err := l.store.Put(ctx, l.ipKey(primary), *ipEntry, l.entryTTL(ipEntry, now)); err != nil {
		l.failOpen("put", err)
	}
}

// blockDuration doubles per breach: base, 2x, 4x, ... capped at BlockMax
func (l *Limiter) blockDuration(breaches int) time.Duration {
	d := l.config.BlockBase
	for i := 1; i < breaches; i++ {
		d *= 2
		if d >= l.config.BlockMax {
			return l.config.BlockMax
		}
	}
	if d > l.config.BlockMax {
		return l.config.BlockMax
	}
	return d
}

// entryTTL keeps an entry alive through its window and any active block
func (l *Limiter) entryTTL(entry *Entry, now time.Time) time.Duration {
	ttl := l.config.Window
	if entry.BlockedUntil.After(now) {
		if blocked := entry.BlockedUntil.Sub(now) + l.config.Window; blocked > ttl {
			ttl = blocked
		}
	}
	return ttl
}

func (l *Limiter) failOpen(op string, err error) {
	l.logger.Warn("rate limit store unavailable, allowing request",
		slog.String("limiter", l.config.Name),
		slog.String("op", op),
		slog.Any("error", err))
}
