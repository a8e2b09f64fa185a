package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/hanswolff/clubportal/internal/clock"
	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/services"
	"github.com/hanswolff/clubportal/internal/token"
)

// UserSource lists members the worker must consider
type UserSource interface {
	ListReminderEnabled(ctx context.Context) ([]*models.User, error)
}

// EventSource lists reminder candidates for one member
type EventSource interface {
	ListCandidatesForUser(ctx context.Context, userID string, from, to time.Time) ([]*models.Event, error)
}

// DispatchStore is the durable per-(user, event) reminder ledger. Create must
// return models.ErrConflict when a row for the pair already exists; Rearm
// must return models.ErrNotFound when the conditional update matches nothing.
type DispatchStore interface {
	Create(ctx context.Context, d *models.ReminderDispatch) (*models.ReminderDispatch, error)
	GetByPair(ctx context.Context, userID, eventID string) (*models.ReminderDispatch, error)
	Rearm(ctx context.Context, id string, d *models.ReminderDispatch, queuedBefore time.Time) (*models.ReminderDispatch, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// Config holds the reminder worker's tuning constants
type Config struct {
	// BaseURL prefixes RSVP/unsubscribe links; without it no dispatch can be
	// built and the tick aborts
	BaseURL string

	PollInterval time.Duration

	// GraceWindow widens the due check so a reminder instant landing exactly
	// on a tick boundary is never skipped
	GraceWindow time.Duration

	// RecoveryDelay is how long a pending dispatch may sit before it is
	// treated as stuck and re-armed
	RecoveryDelay time.Duration

	// Location is the member-facing timezone reminders are computed against
	Location *time.Location
}

const markSentAttempts = 3

// ReminderWorker runs a recurring tick that queues and sends event reminders.
// Effectively-once delivery rests on the dispatch store's uniqueness
// constraint, not on in-process locking; the single-flight guard only
// prevents self-overlap within this process.
type ReminderWorker struct {
	users      UserSource
	events     EventSource
	dispatches DispatchStore
	email      services.EmailService
	config     Config
	logger     *slog.Logger

	inFlight atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	now func() time.Time
}

// New creates a reminder worker
func New(
	users UserSource,
	events EventSource,
	dispatches DispatchStore,
	email services.EmailService,
	config Config,
	logger *slog.Logger,
) *ReminderWorker {
	if config.Location == nil {
		config.Location = time.UTC
	}

	return &ReminderWorker{
		users:      users,
		events:     events,
		dispatches: dispatches,
		email:      email,
		config:     config,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// Start runs the tick loop until the context is cancelled or Stop is called.
// Ticks execute on this goroutine, so returning implies no tick is in flight.
func (w *ReminderWorker) Start(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Run once on startup so a restart does not wait a full interval
	if _, err := w.Tick(ctx); err != nil {
		w.logger.Error("reminder tick failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil {
				w.logger.Error("reminder tick failed", slog.Any("error", err))
			}
		case <-w.stopCh:
			w.logger.Info("reminder worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("reminder worker context cancelled")
			return
		}
	}
}

// Stop signals the worker to stop and waits for the in-flight tick to finish
func (w *ReminderWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// Tick processes one scheduling pass and returns the number of reminders
// confirmed sent. A tick already in flight makes this a no-op.
func (w *ReminderWorker) Tick(ctx context.Context) (int, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Warn("skipping reminder tick, previous tick still running")
		return 0, nil
	}
	defer w.inFlight.Store(false)

	return w.runTick(ctx, w.now())
}

func (w *ReminderWorker) runTick(ctx context.Context, now time.Time) (int, error) {
	if w.config.BaseURL == "" {
		return 0, fmt.Errorf("no base URL configured, cannot build reminder links")
	}

	ticksTotal.Inc()

	users, err := w.users.ListReminderEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load reminder-enabled users: %w", err)
	}

	sent := 0
	for _, user := range users {
		sent += w.processUser(ctx, user, now)
	}

	if sent > 0 {
		w.logger.Info("reminder tick completed",
			slog.Int("users", len(users)),
			slog.Int("reminders_sent", sent))
	}

	return sent, nil
}

// processUser finds this member's due events and queues a dispatch per pair.
// Errors are logged per (user, event) and never abort the remaining work.
func (w *ReminderWorker) processUser(ctx context.Context, user *models.User, now time.Time) int {
	daysBefore := clampDaysBefore(user.EventReminderDaysBefore)
	offset := time.Duration(daysBefore) * 24 * time.Hour

	// Candidate search window around the user's reminder offset, widened by
	// the grace window on both sides so no tick boundary drops an event
	from := now.Add(offset - w.config.GraceWindow)
	to := now.Add(offset + w.config.PollInterval + w.config.GraceWindow)

	events, err := w.events.ListCandidatesForUser(ctx, user.ID, calendarDate(from, w.config.Location), calendarDate(to, w.config.Location))
	if err != nil {
		w.logger.Error("failed to load candidate events",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return 0
	}

	sent := 0
	for _, event := range events {
		eventAt := clock.EventStart(event.Date, event.TimeFrom, w.config.Location)

		if !shouldSend(eventAt, daysBefore, now, w.config.PollInterval, w.config.GraceWindow) {
			continue
		}

		if err := w.queueAndSend(ctx, user, event, eventAt, daysBefore, now); err != nil {
			w.logger.Error("failed to dispatch reminder",
				slog.String("user_id", user.ID),
				slog.String("event_id", event.ID),
				slog.Any("error", err))
			continue
		}
		sent++
	}

	return sent
}

// shouldSend reports whether the reminder instant for this event falls into
// the current tick's effective interval: now-grace <= eventAt-daysBefore*24h
// < now+pollInterval. Under continuous operation exactly one tick satisfies
// this, which guards both early sends and double sends across ticks.
func shouldSend(eventAt time.Time, daysBefore int, now time.Time, pollInterval, graceWindow time.Duration) bool {
	reminderAt := eventAt.Add(-time.Duration(daysBefore) * 24 * time.Hour)
	return !reminderAt.Before(now.Add(-graceWindow)) && reminderAt.Before(now.Add(pollInterval))
}

// queueAndSend creates (or recovers) the dispatch row for one pair and
// attempts delivery
func (w *ReminderWorker) queueAndSend(ctx context.Context, user *models.User, event *models.Event, eventAt time.Time, daysBefore int, now time.Time) error {
	rsvpToken, err := token.Generate()
	if err != nil {
		return err
	}
	unsubToken, err := token.Generate()
	if err != nil {
		return err
	}

	expiry := token.ExpiryAt(now, token.ReminderTokenTTL)
	dispatch := &models.ReminderDispatch{
		UserID:                    user.ID,
		EventID:                   event.ID,
		DaysBefore:                daysBefore,
		RSVPTokenHash:             token.Hash(rsvpToken),
		RSVPTokenExpiresAt:        expiry,
		UnsubscribeTokenHash:      token.Hash(unsubToken),
		UnsubscribeTokenExpiresAt: expiry,
		QueuedAt:                  now,
	}

	created, err := w.dispatches.Create(ctx, dispatch)
	if err == nil {
		return w.send(ctx, created, user, event, eventAt, rsvpToken, unsubToken, true)
	}

	if !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("failed to create dispatch: %w", err)
	}

	// Another tick or process owns this pair. Only a dispatch stuck past the
	// recovery delay (crashed mid-send) is taken over.
	existing, err := w.dispatches.GetByPair(ctx, user.ID, event.ID)
	if err != nil {
		return fmt.Errorf("failed to inspect existing dispatch: %w", err)
	}

	if !existing.IsStuck(now, w.config.RecoveryDelay) {
		return nil
	}

	rearmed, err := w.dispatches.Rearm(ctx, existing.ID, dispatch, now.Add(-w.config.RecoveryDelay))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// A concurrent worker won the conditional update
			return nil
		}
		return fmt.Errorf("failed to re-arm stuck dispatch: %w", err)
	}

	stuckRecoveredTotal.Inc()
	w.logger.Warn("re-armed stuck reminder dispatch",
		slog.String("user_id", user.ID),
		slog.String("event_id", event.ID),
		slog.Time("previously_queued_at", existing.QueuedAt))

	return w.send(ctx, rearmed, user, event, eventAt, rsvpToken, unsubToken, false)
}

// send delivers the reminder email and stamps sent_at. A failed send on a
// fresh row rolls the row back so the obligation is retried cleanly next
// tick; a re-armed row is left pending for the recovery path.
func (w *ReminderWorker) send(ctx context.Context, dispatch *models.ReminderDispatch, user *models.User, event *models.Event, eventAt time.Time, rsvpToken, unsubToken string, fresh bool) error {
	reminder := services.ReminderEmail{
		EventTitle:     event.Title,
		EventLocation:  event.Location,
		EventStart:     eventAt.In(w.config.Location),
		RSVPURL:        w.buildLink("/rsvp", rsvpToken),
		UnsubscribeURL: w.buildLink("/unsubscribe", unsubToken),
	}

	if err := w.email.SendEventReminder(ctx, user.Email, reminder); err != nil {
		sendFailuresTotal.Inc()

		if fresh {
			if delErr := w.dispatches.Delete(ctx, dispatch.ID); delErr != nil {
				w.logger.Error("failed to roll back dispatch after send failure",
					slog.String("dispatch_id", dispatch.ID),
					slog.Any("error", delErr))
			}
		}
		return fmt.Errorf("failed to send reminder: %w", err)
	}

	// Losing this update would cause a duplicate send next tick, so retry a
	// few times against transient persistence errors
	var markErr error
	for attempt := 1; attempt <= markSentAttempts; attempt++ {
		if markErr = w.dispatches.MarkSent(ctx, dispatch.ID, w.now()); markErr == nil {
			break
		}
	}
	if markErr != nil {
		return fmt.Errorf("sent but failed to stamp sent_at after %d attempts: %w", markSentAttempts, markErr)
	}

	remindersSentTotal.Inc()
	w.logger.Info("reminder sent",
		slog.String("user_id", user.ID),
		slog.String("event_id", event.ID),
		slog.String("rsvp_token", token.Mask(rsvpToken)))

	return nil
}

func (w *ReminderWorker) buildLink(path, rawToken string) string {
	return w.config.BaseURL + path + "?token=" + url.QueryEscape(rawToken)
}

// calendarDate maps an instant to its calendar day in loc, as a bare date for
// the event range query
func calendarDate(t time.Time, loc *time.Location) time.Time {
	parts := clock.PartsAt(t, loc)
	return time.Date(parts.Year, parts.Month, parts.Day, 0, 0, 0, 0, time.UTC)
}

func clampDaysBefore(days int) int {
	if days < models.MinReminderDaysBefore {
		return models.MinReminderDaysBefore
	}
	if days > models.MaxReminderDaysBefore {
		return models.MaxReminderDaysBefore
	}
	return days
}
