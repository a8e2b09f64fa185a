package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/ratelimit"
)

// ContactService relays contact form submissions to the club inbox behind
// the contact rate limiter profile
type ContactService struct {
	email   EmailService
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewContactService creates a new ContactService
func NewContactService(email EmailService, limiter *ratelimit.Limiter, logger *slog.Logger) *ContactService {
	return &ContactService{
		email:   email,
		limiter: limiter,
		logger:  logger,
	}
}

// Submit forwards one contact message
func (s *ContactService) Submit(ctx context.Context, fromEmail, fromName, message, clientIP string) error {
	if result := s.limiter.Check(ctx, clientIP, fromEmail); !result.Allowed {
		return &models.RateLimitedError{BlockedUntil: result.BlockedUntil}
	}

	if err := s.email.SendContactMessage(ctx, fromEmail, fromName, message); err != nil {
		return fmt.Errorf("failed to relay contact message: %w", err)
	}

	s.logger.Info("contact message relayed",
		slog.String("from", fromEmail),
		slog.String("client_ip", clientIP))

	return nil
}
