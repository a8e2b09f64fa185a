package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hanswolff/clubportal/internal/database"
	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/ratelimit"
	"github.com/hanswolff/clubportal/internal/repositories"
	"github.com/hanswolff/clubportal/internal/token"
)

// PasswordResetService mints and redeems password reset tokens. Completion
// updates the password and consumes the token in one transaction.
type PasswordResetService struct {
	db           *database.DB
	users        *repositories.UserRepository
	resets       *repositories.PasswordResetRepository
	email        EmailService
	requestLimit *ratelimit.Limiter
	redeemLimit  *ratelimit.Limiter
	baseURL      string
	logger       *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	db *database.DB,
	users *repositories.UserRepository,
	resets *repositories.PasswordResetRepository,
	email EmailService,
	requestLimit *ratelimit.Limiter,
	redeemLimit *ratelimit.Limiter,
	baseURL string,
	logger *slog.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		db:           db,
		users:        users,
		resets:       resets,
		email:        email,
		requestLimit: requestLimit,
		redeemLimit:  redeemLimit,
		baseURL:      baseURL,
		logger:       logger,
	}
}

// Request mints a reset token and emails the link. Unknown emails return
// success to prevent account enumeration.
func (s *PasswordResetService) Request(ctx context.Context, email, clientIP string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if result := s.requestLimit.Check(ctx, clientIP, email); !result.Allowed {
		return &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	if s.baseURL == "" {
		return fmt.Errorf("no base URL configured, cannot build reset link")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load user for password reset: %w", err)
	}

	rawToken, err := token.Generate()
	if err != nil {
		return err
	}

	expiresAt := token.ExpiryAt(time.Now(), token.PasswordResetTokenTTL)
	if _, err := s.resets.Create(ctx, user.ID, token.Hash(rawToken), expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := s.baseURL + "/reset-password?token=" + rawToken
	if err := s.email.SendPasswordReset(ctx, user.Email, resetURL, expiresAt); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	s.logger.Info("password reset requested",
		slog.String("user_id", user.ID),
		slog.String("token", token.Mask(rawToken)))

	return nil
}

// Complete verifies a reset token and sets the new password. Not-found,
// expired, and already-used tokens are distinct outcomes.
func (s *PasswordResetService) Complete(ctx context.Context, rawToken, newPassword, clientIP string) error {
	tokenHash := token.Hash(rawToken)

	if result := s.redeemLimit.Check(ctx, clientIP, tokenHash); !result.Allowed {
		return &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	if rawToken == "" {
		return models.ErrTokenNotFound
	}

	reset, err := s.resets.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenNotFound
		}
		return fmt.Errorf("failed to look up reset token: %w", err)
	}

	if reset.IsUsed() {
		return models.ErrTokenUsed
	}
	if reset.IsExpired() {
		return models.ErrTokenExpired
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	err = s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.users.UpdatePassword(ctx, tx, reset.UserID, string(passwordHash)); err != nil {
			return err
		}
		return s.resets.MarkUsed(ctx, tx, reset.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to complete password reset: %w", err)
	}

	s.redeemLimit.RecordSuccess(ctx, clientIP, tokenHash)

	s.logger.Info("password reset completed",
		slog.String("user_id", reset.UserID),
		slog.String("token", token.Mask(rawToken)))

	return nil
}
