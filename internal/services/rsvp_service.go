package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/ratelimit"
	"github.com/hanswolff/clubportal/internal/token"
)

// DispatchReader looks up reminder dispatches by stored token hash. The
// redemption paths only read dispatch rows; send-state fields belong to the
// worker alone.
type DispatchReader interface {
	GetByRSVPTokenHash(ctx context.Context, tokenHash string) (*models.ReminderDispatch, error)
	GetByUnsubscribeTokenHash(ctx context.Context, tokenHash string) (*models.ReminderDispatch, error)
}

// VoteStore records member RSVPs
type VoteStore interface {
	Upsert(ctx context.Context, userID, eventID, choice string) (*models.EventVote, error)
	Get(ctx context.Context, userID, eventID string) (*models.EventVote, error)
}

// ReminderPreferences flips the reminder opt-in flag
type ReminderPreferences interface {
	SetEventReminderEnabled(ctx context.Context, userID string, enabled bool) error
}

// EventReader fetches event facts for the RSVP page
type EventReader interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

// RSVPState is what the public RSVP page renders: the event and the member's
// current vote (nil if none recorded yet)
type RSVPState struct {
	Event *models.Event
	Vote  *models.EventVote
}

// RSVPService redeems the token-guarded links embedded in reminder emails.
// Every entry point counts against the redeem limiter keyed on (client IP,
// token hash), so tokens cannot be brute-forced from one address; a redeemed
// valid token clears its own counter.
type RSVPService struct {
	dispatches DispatchReader
	votes      VoteStore
	users      ReminderPreferences
	events     EventReader
	limiter    *ratelimit.Limiter
	logger     *slog.Logger

	now func() time.Time
}

// NewRSVPService creates a new RSVPService
func NewRSVPService(
	dispatches DispatchReader,
	votes VoteStore,
	users ReminderPreferences,
	events EventReader,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *RSVPService {
	return &RSVPService{
		dispatches: dispatches,
		votes:      votes,
		users:      users,
		events:     events,
		limiter:    limiter,
		logger:     logger,
		now:        time.Now,
	}
}

// LookupRSVP resolves a raw RSVP token to the event and current vote state
// without mutating anything
func (s *RSVPService) LookupRSVP(ctx context.Context, rawToken, clientIP string) (*RSVPState, error) {
	tokenHash := token.Hash(rawToken)

	if result := s.limiter.Check(ctx, clientIP, tokenHash); !result.Allowed {
		return nil, &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	dispatch, err := s.resolveRSVP(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	s.limiter.RecordSuccess(ctx, clientIP, tokenHash)

	return s.stateFor(ctx, dispatch)
}

// RedeemRSVP records or updates the member's vote for the event behind the
// token and returns the resulting state
func (s *RSVPService) RedeemRSVP(ctx context.Context, rawToken, choice, clientIP string) (*RSVPState, error) {
	tokenHash := token.Hash(rawToken)

	if result := s.limiter.Check(ctx, clientIP, tokenHash); !result.Allowed {
		return nil, &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	if choice != models.VoteYes && choice != models.VoteNo && choice != models.VoteMaybe {
		return nil, models.ErrBadRequest
	}

	dispatch, err := s.resolveRSVP(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	if _, err := s.votes.Upsert(ctx, dispatch.UserID, dispatch.EventID, choice); err != nil {
		s.logger.Error("failed to record vote",
			slog.String("user_id", dispatch.UserID),
			slog.String("event_id", dispatch.EventID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.limiter.RecordSuccess(ctx, clientIP, tokenHash)

	s.logger.Info("vote recorded via rsvp token",
		slog.String("user_id", dispatch.UserID),
		slog.String("event_id", dispatch.EventID),
		slog.String("choice", choice))

	return s.stateFor(ctx, dispatch)
}

// RedeemUnsubscribe disables event reminders for the member behind the
// token. An expired token returns a distinct outcome and mutates nothing.
func (s *RSVPService) RedeemUnsubscribe(ctx context.Context, rawToken, clientIP string) error {
	tokenHash := token.Hash(rawToken)

	if result := s.limiter.Check(ctx, clientIP, tokenHash); !result.Allowed {
		return &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	if rawToken == "" {
		return models.ErrTokenNotFound
	}

	dispatch, err := s.dispatches.GetByUnsubscribeTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("unsubscribe token not found",
				slog.String("token", token.Mask(rawToken)))
			return models.ErrTokenNotFound
		}
		return fmt.Errorf("failed to look up unsubscribe token: %w", err)
	}

	if dispatch.UnsubscribeTokenExpired(s.now()) {
		s.logger.Info("unsubscribe token expired",
			slog.String("token", token.Mask(rawToken)),
			slog.Time("expired_at", dispatch.UnsubscribeTokenExpiresAt))
		return models.ErrTokenExpired
	}

	if err := s.users.SetEventReminderEnabled(ctx, dispatch.UserID, false); err != nil {
		s.logger.Error("failed to disable event reminders",
			slog.String("user_id", dispatch.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.limiter.RecordSuccess(ctx, clientIP, tokenHash)

	s.logger.Info("event reminders disabled via unsubscribe token",
		slog.String("user_id", dispatch.UserID))

	return nil
}

func (s *RSVPService) resolveRSVP(ctx context.Context, rawToken string) (*models.ReminderDispatch, error) {
	if rawToken == "" {
		return nil, models.ErrTokenNotFound
	}

	dispatch, err := s.dispatches.GetByRSVPTokenHash(ctx, token.Hash(rawToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("rsvp token not found",
				slog.String("token", token.Mask(rawToken)))
			return nil, models.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to look up rsvp token: %w", err)
	}

	if dispatch.RSVPTokenExpired(s.now()) {
		s.logger.Info("rsvp token expired",
			slog.String("token", token.Mask(rawToken)),
			slog.Time("expired_at", dispatch.RSVPTokenExpiresAt))
		return nil, models.ErrTokenExpired
	}

	return dispatch, nil
}

func (s *RSVPService) stateFor(ctx context.Context, dispatch *models.ReminderDispatch) (*RSVPState, error) {
	event, err := s.events.GetByID(ctx, dispatch.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event for rsvp: %w", err)
	}

	vote, err := s.votes.Get(ctx, dispatch.UserID, dispatch.EventID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load vote for rsvp: %w", err)
	}

	return &RSVPState{Event: event, Vote: vote}, nil
}
