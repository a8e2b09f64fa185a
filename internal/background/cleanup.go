package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredTokenStore deletes redemption tokens that are past their grace period
type ExpiredTokenStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes long-expired password reset tokens
type CleanupManager struct {
	resets   ExpiredTokenStore
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(resets ExpiredTokenStore, interval time.Duration, logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		resets:   resets,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. Blocks until Stop or ctx cancel.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.resets.CleanupExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clean up expired reset tokens", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("expired reset tokens removed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
