package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanswolff/clubportal/internal/database"
	"github.com/hanswolff/clubportal/internal/models"
)

type VoteRepository struct {
	pool *pgxpool.Pool
}

func NewVoteRepository(db *database.DB) *VoteRepository {
	return &VoteRepository{pool: db.Pool}
}

const voteColumns = `user_id, event_id, choice, created_at, updated_at`

func scanVoteRow(scanner rowScanner) (*models.EventVote, error) {
	var vote models.EventVote

	err := scanner.Scan(
		&vote.UserID, &vote.EventID, &vote.Choice,
		&vote.CreatedAt, &vote.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &vote, nil
}

// Upsert records or updates a member's RSVP for an event
func (r *VoteRepository) Upsert(ctx context.Context, userID, eventID, choice string) (*models.EventVote, error) {
	query := `
		INSERT INTO event_votes (user_id, event_id, choice)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, event_id)
		DO UPDATE SET choice = EXCLUDED.choice, updated_at = NOW()
		RETURNING ` + voteColumns

	vote, err := scanVoteRow(r.pool.QueryRow(ctx, query, userID, eventID, choice))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert vote: %w", err)
	}

	return vote, nil
}

// Get returns the member's current vote for an event, if any
func (r *VoteRepository) Get(ctx context.Context, userID, eventID string) (*models.EventVote, error) {
	query := `SELECT ` + voteColumns + ` FROM event_votes WHERE user_id = $1 AND event_id = $2`

	return scanVoteRow(r.pool.QueryRow(ctx, query, userID, eventID))
}
