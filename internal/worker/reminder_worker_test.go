package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanswolff/clubportal/internal/models"
	"github.com/hanswolff/clubportal/internal/services"
	"github.com/hanswolff/clubportal/internal/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type mockUsers struct {
	users []*models.User
	err   error
}

func (m *mockUsers) ListReminderEnabled(context.Context) ([]*models.User, error) {
	return m.users, m.err
}

type mockEvents struct {
	byUser map[string][]*models.Event
	err    error
}

func (m *mockEvents) ListCandidatesForUser(_ context.Context, userID string, _, _ time.Time) ([]*models.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byUser[userID], nil
}

// mockDispatches mimics the uniqueness-constraint behavior of the real table
type mockDispatches struct {
	mu   sync.Mutex
	rows map[string]*models.ReminderDispatch // "user|event" -> row
	seq  int

	createErr   error
	rearmErr    error
	markSentErr []error // consumed per call; nil means success
	deleted     []string
	rearmed     int
}

func newMockDispatches() *mockDispatches {
	return &mockDispatches{rows: make(map[string]*models.ReminderDispatch)}
}

func pairKey(userID, eventID string) string {
	return userID + "|" + eventID
}

func (m *mockDispatches) Create(_ context.Context, d *models.ReminderDispatch) (*models.ReminderDispatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}

	key := pairKey(d.UserID, d.EventID)
	if _, exists := m.rows[key]; exists {
		return nil, models.ErrConflict
	}

	m.seq++
	row := *d
	row.ID = fmt.Sprintf("dispatch-%d", m.seq)
	m.rows[key] = &row

	copied := row
	return &copied, nil
}

func (m *mockDispatches) GetByPair(_ context.Context, userID, eventID string) (*models.ReminderDispatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[pairKey(userID, eventID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (m *mockDispatches) Rearm(_ context.Context, id string, d *models.ReminderDispatch, queuedBefore time.Time) (*models.ReminderDispatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rearmErr != nil {
		return nil, m.rearmErr
	}

	for _, row := range m.rows {
		if row.ID != id {
			continue
		}
		if row.SentAt != nil || !row.QueuedAt.Before(queuedBefore) {
			return nil, models.ErrNotFound
		}
		row.RSVPTokenHash = d.RSVPTokenHash
		row.RSVPTokenExpiresAt = d.RSVPTokenExpiresAt
		row.UnsubscribeTokenHash = d.UnsubscribeTokenHash
		row.UnsubscribeTokenExpiresAt = d.UnsubscribeTokenExpiresAt
		row.QueuedAt = d.QueuedAt
		row.SentAt = nil
		m.rearmed++
		copied := *row
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (m *mockDispatches) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.markSentErr) > 0 {
		err := m.markSentErr[0]
		m.markSentErr = m.markSentErr[1:]
		if err != nil {
			return err
		}
	}

	for _, row := range m.rows {
		if row.ID == id && row.SentAt == nil {
			stamped := sentAt
			row.SentAt = &stamped
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *mockDispatches) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, row := range m.rows {
		if row.ID == id {
			delete(m.rows, key)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return nil
}

func (m *mockDispatches) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *mockDispatches) row(userID, eventID string) *models.ReminderDispatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[pairKey(userID, eventID)]
	if !ok {
		return nil
	}
	copied := *row
	return &copied
}

type sentMail struct {
	recipient string
	reminder  services.ReminderEmail
}

type mockEmail struct {
	mu      sync.Mutex
	sent    []sentMail
	failing bool
	block   chan struct{} // when set, SendEventReminder waits on it
}

func (m *mockEmail) SendEventReminder(_ context.Context, recipient string, reminder services.ReminderEmail) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, sentMail{recipient: recipient, reminder: reminder})
	return nil
}

func (m *mockEmail) SendPasswordReset(context.Context, string, string, time.Time) error {
	return nil
}

func (m *mockEmail) SendContactMessage(context.Context, string, string, string) error {
	return nil
}

func (m *mockEmail) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var testNow = time.Date(2025, time.May, 1, 10, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) Config {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	return Config{
		BaseURL:       "https://club.example",
		PollInterval:  15 * time.Minute,
		GraceWindow:   1 * time.Hour,
		RecoveryDelay: 6 * time.Hour,
		Location:      loc,
	}
}

func testUser() *models.User {
	return &models.User{
		ID:                      "user-1",
		Email:                   "member@example.com",
		EventReminderEnabled:    true,
		EventReminderDaysBefore: 7,
	}
}

// eventDueIn builds an event whose reminder instant for daysBefore lands at
// the given offset from testNow, in the worker's timezone
func eventDueIn(t *testing.T, cfg Config, daysBefore int, offset time.Duration) *models.Event {
	t.Helper()

	eventAt := testNow.Add(time.Duration(daysBefore)*24*time.Hour + offset)
	local := eventAt.In(cfg.Location)

	return &models.Event{
		ID:       "event-1",
		Title:    "Spring Cup",
		Date:     time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
		TimeFrom: local.Format("15:04"),
		Location: "Range A",
		Visible:  true,
	}
}

func newTestWorker(t *testing.T, users *mockUsers, events *mockEvents, dispatches *mockDispatches, email *mockEmail, cfg Config) *ReminderWorker {
	t.Helper()
	w := New(users, events, dispatches, email, cfg, testLogger())
	w.now = func() time.Time { return testNow }
	return w
}

func TestShouldSend(t *testing.T) {
	poll := 15 * time.Minute
	grace := 1 * time.Hour
	now := testNow
	daysBefore := 7
	offset := 7 * 24 * time.Hour

	tests := []struct {
		name    string
		eventAt time.Time
		want    bool
	}{
		{"due exactly now", now.Add(offset), true},
		{"due mid-interval", now.Add(offset + 10*time.Minute), true},
		{"due at interval end is next tick's", now.Add(offset + poll), false},
		{"just inside grace behind", now.Add(offset - grace), true},
		{"beyond grace behind", now.Add(offset - grace - time.Second), false},
		{"well in the future", now.Add(offset + 24*time.Hour), false},
		{"already past", now.Add(offset - 24*time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shouldSend(tt.eventAt, daysBefore, now, poll, grace)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldSend_ExactlyOneTickOwnsAnInstant(t *testing.T) {
	poll := 15 * time.Minute
	eventAt := testNow.Add(7*24*time.Hour + 7*time.Minute)

	// Without the grace window, consecutive tick intervals partition time:
	// exactly one tick's [now, now+poll) contains the reminder instant
	owners := 0
	for i := -4; i <= 4; i++ {
		tickNow := testNow.Add(time.Duration(i) * poll)
		if shouldSend(eventAt, 7, tickNow, poll, 0) {
			owners++
		}
	}
	assert.Equal(t, 1, owners)
}

func TestTick_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	row := dispatches.row(user.ID, event.ID)
	require.NotNil(t, row)
	assert.Equal(t, 7, row.DaysBefore)
	require.NotNil(t, row.SentAt, "sent_at stamped after successful send")
	assert.True(t, row.RSVPTokenExpiresAt.After(testNow))

	require.Len(t, email.sent, 1)
	mail := email.sent[0]
	assert.Equal(t, user.Email, mail.recipient)
	assert.Equal(t, "Spring Cup", mail.reminder.EventTitle)
	assert.Contains(t, mail.reminder.RSVPURL, "https://club.example/rsvp?token=")
	assert.Contains(t, mail.reminder.UnsubscribeURL, "https://club.example/unsubscribe?token=")

	// The raw token in the link hashes to the stored hash, so the RSVP
	// endpoint can find this dispatch
	u, err := url.Parse(mail.reminder.RSVPURL)
	require.NoError(t, err)
	raw := u.Query().Get("token")
	assert.Equal(t, row.RSVPTokenHash, token.Hash(raw))
	assert.NotEqual(t, raw, row.RSVPTokenHash, "raw token never stored")
}

func TestTick_SecondTickDoesNotResend(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	_, err := w.Tick(context.Background())
	require.NoError(t, err)

	// Same tick window again (overlap scenario): the conflict resolves to a
	// sent row, nothing new goes out
	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, email.sentCount())
	assert.Equal(t, 1, dispatches.rowCount())
}

func TestTick_MissingBaseURLAbortsTick(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseURL = ""
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, dispatches.rowCount())
	assert.Equal(t, 0, email.sentCount())
}

func TestTick_EventOutsideWindowSkipped(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	// Reminder instant a full day away from this tick
	event := eventDueIn(t, cfg, 7, 24*time.Hour)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, dispatches.rowCount())
}

func TestTick_PendingRecentDispatchLeftAlone(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	existing := &models.ReminderDispatch{
		UserID:        user.ID,
		EventID:       event.ID,
		DaysBefore:    7,
		RSVPTokenHash: "oldhash",
		QueuedAt:      testNow.Add(-30 * time.Minute), // in flight, not stuck
	}
	_, err := dispatches.Create(context.Background(), existing)
	require.NoError(t, err)

	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, email.sentCount())

	row := dispatches.row(user.ID, event.ID)
	assert.Equal(t, "oldhash", row.RSVPTokenHash, "recent pending row untouched")
	assert.Equal(t, 0, dispatches.rearmed)
}

func TestTick_StuckDispatchRearmedAndResent(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	existing := &models.ReminderDispatch{
		UserID:        user.ID,
		EventID:       event.ID,
		DaysBefore:    7,
		RSVPTokenHash: "oldhash",
		QueuedAt:      testNow.Add(-7 * time.Hour), // older than the 6h recovery delay
	}
	_, err := dispatches.Create(context.Background(), existing)
	require.NoError(t, err)

	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, dispatches.rearmed)

	row := dispatches.row(user.ID, event.ID)
	require.NotNil(t, row)
	assert.NotEqual(t, "oldhash", row.RSVPTokenHash, "fresh tokens after re-arm")
	assert.True(t, row.QueuedAt.Equal(testNow))
	require.NotNil(t, row.SentAt)
}

func TestTick_SentDispatchNeverRequeued(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	sentAt := testNow.Add(-8 * time.Hour)
	existing := &models.ReminderDispatch{
		UserID:        user.ID,
		EventID:       event.ID,
		DaysBefore:    7,
		RSVPTokenHash: "oldhash",
		QueuedAt:      testNow.Add(-9 * time.Hour),
	}
	created, err := dispatches.Create(context.Background(), existing)
	require.NoError(t, err)
	require.NoError(t, dispatches.MarkSent(context.Background(), created.ID, sentAt))

	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, email.sentCount())
	assert.Equal(t, 0, dispatches.rearmed)
}

func TestTick_SendFailureRollsBackFreshRow(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{failing: true}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err, "per-pair failures do not abort the tick")
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, dispatches.rowCount(), "fresh row deleted so next tick retries")
	assert.Len(t, dispatches.deleted, 1)
}

func TestTick_SendFailureKeepsRearmedRow(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	existing := &models.ReminderDispatch{
		UserID:     user.ID,
		EventID:    event.ID,
		DaysBefore: 7,
		QueuedAt:   testNow.Add(-7 * time.Hour),
	}
	_, err := dispatches.Create(context.Background(), existing)
	require.NoError(t, err)

	email := &mockEmail{failing: true}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	_, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dispatches.rowCount(), "re-armed row stays for later recovery")
	assert.Empty(t, dispatches.deleted)

	row := dispatches.row(user.ID, event.ID)
	assert.Nil(t, row.SentAt)
}

func TestTick_MarkSentRetriesTransientErrors(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	dispatches.markSentErr = []error{errors.New("timeout"), errors.New("timeout"), nil}

	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	row := dispatches.row(user.ID, event.ID)
	require.NotNil(t, row.SentAt)
}

func TestTick_PerPairErrorDoesNotBlockOthers(t *testing.T) {
	cfg := testConfig(t)
	user1 := testUser()
	user2 := &models.User{
		ID: "user-2", Email: "other@example.com",
		EventReminderEnabled: true, EventReminderDaysBefore: 7,
	}
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	events := &mockEvents{byUser: map[string][]*models.Event{
		user1.ID: {event},
		user2.ID: {event},
	}}

	// user1's create fails with a non-conflict persistence error
	w := newTestWorker(t, &mockUsers{users: []*models.User{user1, user2}}, events, dispatches, email, cfg)
	dispatches.createErr = errors.New("connection reset")

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	// Clear the fault; both pairs recover on the next tick
	dispatches.createErr = nil
	sent, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestQueueAndSend_ConcurrentCallersProduceOneRow(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)
	eventAt := testNow.Add(7*24*time.Hour + 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.queueAndSend(context.Background(), user, event, eventAt, 7, testNow)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dispatches.rowCount(), "exactly one dispatch row survives")
	assert.Equal(t, 1, email.sentCount(), "losers of the create race back off")
}

func TestTick_SingleFlight(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	event := eventDueIn(t, cfg, 7, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{block: make(chan struct{})}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = w.Tick(context.Background())
	}()

	// Wait for the first tick to be blocked inside the email send
	assert.Eventually(t, func() bool {
		return w.inFlight.Load()
	}, time.Second, time.Millisecond)

	// An overlapping tick is refused outright
	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	close(email.block)
	<-firstDone
	assert.Equal(t, 1, email.sentCount())
}

func TestTick_DaysBeforeClampedToBounds(t *testing.T) {
	cfg := testConfig(t)
	user := testUser()
	user.EventReminderDaysBefore = 99 // corrupt preference clamps to 14

	event := eventDueIn(t, cfg, 14, 5*time.Minute)

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t,
		&mockUsers{users: []*models.User{user}},
		&mockEvents{byUser: map[string][]*models.Event{user.ID: {event}}},
		dispatches, email, cfg)

	sent, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	row := dispatches.row(user.ID, event.ID)
	assert.Equal(t, 14, row.DaysBefore)
}

func TestStartStop_WaitsForInFlightTick(t *testing.T) {
	cfg := testConfig(t)
	cfg.PollInterval = time.Hour // only the startup tick runs

	dispatches := newMockDispatches()
	email := &mockEmail{}
	w := newTestWorker(t, &mockUsers{}, &mockEvents{}, dispatches, email, cfg)

	started := make(chan struct{})
	go func() {
		close(started)
		w.Start(context.Background())
	}()

	<-started
	w.Stop()

	// After Stop returns the loop goroutine has exited; no tick in flight
	assert.False(t, w.inFlight.Load())
	assert.Equal(t, 0, email.sentCount())
}
