package models

import "time"

// Event represents a scheduled association event. Date carries the calendar
// day only; TimeFrom/TimeTo are wall-clock strings ("18:00") interpreted in
// the association timezone.
type Event struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	TimeFrom string    `json:"time_from"`
	TimeTo   string    `json:"time_to"`
	Location string    `json:"location"`
	Visible  bool      `json:"visible"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventVote records a member's RSVP for an event, one row per (user, event)
type EventVote struct {
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	Choice    string    `json:"choice"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid vote choices
const (
	VoteYes   = "yes"
	VoteNo    = "no"
	VoteMaybe = "maybe"
)
