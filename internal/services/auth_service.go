package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/ratelimit"
)

// UserReader looks up member accounts for authentication
type UserReader interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService handles member login. Attempts are guarded by the login rate
// limiter profile keyed on (client IP, email).
type AuthService struct {
	users       UserReader
	limiter     *ratelimit.Limiter
	jwtSecret   []byte
	tokenExpiry time.Duration
	logger      *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserReader, limiter *ratelimit.Limiter, jwtSecret string, tokenExpiry time.Duration, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:       users,
		limiter:     limiter,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

// Login verifies credentials and returns a signed session token
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if result := s.limiter.Check(ctx, clientIP, email); !result.Allowed {
		return "", &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Equalize work between unknown-user and wrong-password paths
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
				[]byte(password))
			return "", models.ErrUnauthorized
		}
		return "", fmt.Errorf("failed to load user for login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed",
			slog.String("email", email),
			slog.String("client_ip", clientIP))
		return "", models.ErrUnauthorized
	}

	s.limiter.RecordSuccess(ctx, clientIP, email)

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	s.logger.Info("login succeeded", slog.String("user_id", user.ID))

	return signed, nil
}
