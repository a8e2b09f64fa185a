package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanswolff/clubportal/internal/database"
	"github.com/hanswolff/clubportal/internal/models"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{pool: db.Pool}
}

const eventColumns = `id, title, date, time_from, time_to, location, visible, created_at, updated_at`

func scanEventRow(scanner rowScanner) (*models.Event, error) {
	var event models.Event

	err := scanner.Scan(
		&event.ID, &event.Title, &event.Date, &event.TimeFrom, &event.TimeTo,
		&event.Location, &event.Visible, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanEventRows(rows pgx.Rows) ([]*models.Event, error) {
	defer rows.Close()

	events := make([]*models.Event, 0)

	for rows.Next() {
		event, err := scanEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	return scanEventRow(r.pool.QueryRow(ctx, query, id))
}

// ListCandidatesForUser returns visible events in [from, to] that the user
// has not voted on. A recorded vote means the member already engaged, so no
// reminder is owed.
func (r *EventRepository) ListCandidatesForUser(ctx context.Context, userID string, from, to time.Time) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events e
		WHERE e.visible
		  AND e.date BETWEEN $2 AND $3
		  AND NOT EXISTS (
			SELECT 1 FROM event_votes v
			WHERE v.event_id = e.id AND v.user_id = $1
		  )
		ORDER BY e.date, e.time_from
	`

	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate events: %w", err)
	}

	return scanEventRows(rows)
}
