package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanswolff/clubportal/internal/database"
	"github.com/hanswolff/clubportal/internal/models"
)

// DispatchRepository owns reminder_dispatches. Create leans on the
// UNIQUE(user_id, event_id) constraint for create-if-absent semantics:
// a conflicting insert from a concurrent tick or process surfaces as
// models.ErrConflict, which the worker treats as control flow, not failure.
type DispatchRepository struct {
	pool *pgxpool.Pool
}

func NewDispatchRepository(db *database.DB) *DispatchRepository {
	return &DispatchRepository{pool: db.Pool}
}

const dispatchColumns = `id, user_id, event_id, days_before, rsvp_token_hash, rsvp_token_expires_at, unsubscribe_token_hash, unsubscribe_token_expires_at, queued_at, sent_at`

func scanDispatchRow(scanner rowScanner) (*models.ReminderDispatch, error) {
	var d models.ReminderDispatch
	var sentAt *time.Time

	err := scanner.Scan(
		&d.ID, &d.UserID, &d.EventID, &d.DaysBefore,
		&d.RSVPTokenHash, &d.RSVPTokenExpiresAt,
		&d.UnsubscribeTokenHash, &d.UnsubscribeTokenExpiresAt,
		&d.QueuedAt, &sentAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	d.SentAt = sentAt
	return &d, nil
}

// Create inserts a fresh dispatch row. Returns models.ErrConflict when a row
// for the (user, event) pair already exists.
func (r *DispatchRepository) Create(ctx context.Context, d *models.ReminderDispatch) (*models.ReminderDispatch, error) {
	d.ID = uuid.New().String()

	query := `
		INSERT INTO reminder_dispatches
			(id, user_id, event_id, days_before, rsvp_token_hash, rsvp_token_expires_at, unsubscribe_token_hash, unsubscribe_token_expires_at, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + dispatchColumns

	return scanDispatchRow(r.pool.QueryRow(ctx, query,
		d.ID, d.UserID, d.EventID, d.DaysBefore,
		d.RSVPTokenHash, d.RSVPTokenExpiresAt,
		d.UnsubscribeTokenHash, d.UnsubscribeTokenExpiresAt,
		d.QueuedAt,
	))
}

// GetByPair fetches the dispatch for one (user, event) pair
func (r *DispatchRepository) GetByPair(ctx context.Context, userID, eventID string) (*models.ReminderDispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM reminder_dispatches WHERE user_id = $1 AND event_id = $2`

	return scanDispatchRow(r.pool.QueryRow(ctx, query, userID, eventID))
}

// GetByRSVPTokenHash looks up a dispatch by the stored RSVP token hash
func (r *DispatchRepository) GetByRSVPTokenHash(ctx context.Context, tokenHash string) (*models.ReminderDispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM reminder_dispatches WHERE rsvp_token_hash = $1`

	return scanDispatchRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// GetByUnsubscribeTokenHash looks up a dispatch by the stored unsubscribe token hash
func (r *DispatchRepository) GetByUnsubscribeTokenHash(ctx context.Context, tokenHash string) (*models.ReminderDispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM reminder_dispatches WHERE unsubscribe_token_hash = $1`

	return scanDispatchRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// Rearm refreshes a stuck dispatch with new tokens and a new queued_at. The
// conditions are part of the WHERE clause so only a still-pending row queued
// before the recovery cutoff is claimed; a concurrent worker racing the same
// row loses the conditional update and gets ErrNotFound.
func (r *DispatchRepository) Rearm(ctx context.Context, id string, d *models.ReminderDispatch, queuedBefore time.Time) (*models.ReminderDispatch, error) {
	query := `
		UPDATE reminder_dispatches
		SET rsvp_token_hash = $2,
			rsvp_token_expires_at = $3,
			unsubscribe_token_hash = $4,
			unsubscribe_token_expires_at = $5,
			queued_at = $6,
			sent_at = NULL
		WHERE id = $1 AND sent_at IS NULL AND queued_at < $7
		RETURNING ` + dispatchColumns

	return scanDispatchRow(r.pool.QueryRow(ctx, query,
		id,
		d.RSVPTokenHash, d.RSVPTokenExpiresAt,
		d.UnsubscribeTokenHash, d.UnsubscribeTokenExpiresAt,
		d.QueuedAt, queuedBefore,
	))
}

// MarkSent stamps delivery confirmation on a pending dispatch
func (r *DispatchRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `
		UPDATE reminder_dispatches
		SET sent_at = $2
		WHERE id = $1 AND sent_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark dispatch sent: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes a dispatch row. Used only to roll back a freshly created
// row whose send attempt failed outright.
func (r *DispatchRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM reminder_dispatches WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dispatch: %w", err)
	}

	return nil
}

// CountForEvent reports how many dispatches exist for an event
func (r *DispatchRepository) CountForEvent(ctx context.Context, eventID string) (int64, error) {
	query := `SELECT COUNT(*) FROM reminder_dispatches WHERE event_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dispatches: %w", err)
	}

	return count, nil
}
