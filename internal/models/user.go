package models

import "time"

// User represents an association member account
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`

	// Reminder preferences, mutated only by the settings endpoint and the
	// unsubscribe redemption path
	EventReminderEnabled    bool `json:"event_reminder_enabled"`
	EventReminderDaysBefore int  `json:"event_reminder_days_before"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	MinReminderDaysBefore = 1
	MaxReminderDaysBefore = 14
)
