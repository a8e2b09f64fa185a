package models

import "time"

// ReminderDispatch is the durable record of one reminder obligation per
// (user, event) pair. The UNIQUE(user_id, event_id) constraint on this table
// is what turns at-least-once scheduling into effectively-once delivery:
// concurrent ticks racing to create the same pair resolve through a conflict,
// never through a duplicate row.
//
// Only token hashes are stored; raw tokens exist transiently in memory and in
// the outgoing email.
type ReminderDispatch struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	EventID    string `json:"event_id"`
	DaysBefore int    `json:"days_before"`

	RSVPTokenHash             string    `json:"-"`
	RSVPTokenExpiresAt        time.Time `json:"rsvp_token_expires_at"`
	UnsubscribeTokenHash      string    `json:"-"`
	UnsubscribeTokenExpiresAt time.Time `json:"unsubscribe_token_expires_at"`

	QueuedAt time.Time  `json:"queued_at"`
	SentAt   *time.Time `json:"sent_at"`
}

// IsSent reports whether delivery has been confirmed. A sent dispatch is
// terminal and must never be re-queued for the same pair.
func (d *ReminderDispatch) IsSent() bool {
	return d.SentAt != nil
}

// IsStuck reports whether a pending dispatch has been queued longer than the
// recovery delay, indicating a crash mid-send on an earlier tick.
func (d *ReminderDispatch) IsStuck(now time.Time, recoveryDelay time.Duration) bool {
	return d.SentAt == nil && now.Sub(d.QueuedAt) > recoveryDelay
}

// RSVPTokenExpired reports whether the RSVP token is past its expiry
func (d *ReminderDispatch) RSVPTokenExpired(now time.Time) bool {
	return now.After(d.RSVPTokenExpiresAt)
}

// UnsubscribeTokenExpired reports whether the unsubscribe token is past its expiry
func (d *ReminderDispatch) UnsubscribeTokenExpired(now time.Time) bool {
	return now.After(d.UnsubscribeTokenExpiresAt)
}
