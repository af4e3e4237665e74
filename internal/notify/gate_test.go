package notify

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/domain"
)

func setupLedger(t *testing.T) (*LedgerRepository, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return NewLedgerRepository(db, zerolog.Nop()), db
}

// fakeMessenger records sends and can simulate failures.
type fakeMessenger struct {
	mu         sync.Mutex
	configured bool
	fail       bool
	messages   []string
	photos     int
}

func (m *fakeMessenger) IsConfigured() bool { return m.configured }

func (m *fakeMessenger) SendMessage(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("send failed")
	}
	m.messages = append(m.messages, text)
	return nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, _ []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("send failed")
	}
	m.photos++
	return nil
}

func (m *fakeMessenger) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// fakePrefs holds explicit switches; unset categories default to enabled.
type fakePrefs struct {
	switches map[string]bool
	err      error
}

func (p *fakePrefs) NotificationEnabled(category string) (bool, error) {
	if p.err != nil {
		return true, p.err
	}
	if enabled, ok := p.switches[category]; ok {
		return enabled, nil
	}
	return true, nil
}

func newTestGate(t *testing.T, prefs *fakePrefs, ch *fakeMessenger, clock domain.Clock) *Gate {
	t.Helper()
	ledger, _ := setupLedger(t)
	return NewGate(Options{
		Prefs:   prefs,
		Ledger:  ledger,
		Channel: ch,
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
}

func TestNotifyDisabledCategorySendsNothing(t *testing.T) {
	ch := &fakeMessenger{configured: true}
	prefs := &fakePrefs{switches: map[string]bool{string(CategoryScan): false}}
	gate := newTestGate(t, prefs, ch, nil)

	for i := 0; i < 3; i++ {
		assert.False(t, gate.Notify(context.Background(), CategoryScan, "new signals"))
	}
	assert.Equal(t, 0, ch.sent())
}

func TestNotifyRateLimitOneSendPerWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	clock := &stepClock{now: now}
	ch := &fakeMessenger{configured: true}
	gate := newTestGate(t, &fakePrefs{}, ch, clock)

	// Two triggers inside one window: exactly one message goes out.
	assert.True(t, gate.Notify(context.Background(), CategoryScan, "first"))
	assert.False(t, gate.Notify(context.Background(), CategoryScan, "second"))
	assert.Equal(t, 1, ch.sent())

	// Past the window the category may send again.
	clock.advance(MinInterval(CategoryScan))
	assert.True(t, gate.Notify(context.Background(), CategoryScan, "third"))
	assert.Equal(t, 2, ch.sent())
}

func TestNotifyRateLimitIsPerCategory(t *testing.T) {
	ch := &fakeMessenger{configured: true}
	gate := newTestGate(t, &fakePrefs{}, ch, nil)

	assert.True(t, gate.Notify(context.Background(), CategoryScan, "scan"))
	assert.True(t, gate.Notify(context.Background(), CategoryFXAlert, "fx"))
	assert.Equal(t, 2, ch.sent())
}

func TestNotifyUnconfiguredChannelSuppressed(t *testing.T) {
	ch := &fakeMessenger{configured: false}
	gate := newTestGate(t, &fakePrefs{}, ch, nil)

	assert.False(t, gate.Notify(context.Background(), CategoryScan, "text"))
	assert.Equal(t, 0, ch.sent())
}

func TestNotifyDeliveryFailureDoesNotStampLedger(t *testing.T) {
	ch := &fakeMessenger{configured: true, fail: true}
	gate := newTestGate(t, &fakePrefs{}, ch, nil)

	assert.False(t, gate.Notify(context.Background(), CategoryScan, "text"))

	// The failed attempt must not consume the rate-limit window.
	ch.fail = false
	assert.True(t, gate.Notify(context.Background(), CategoryScan, "retry"))
	assert.Equal(t, 1, ch.sent())
}

func TestNotifyPreferenceErrorDefaultsToEnabled(t *testing.T) {
	ch := &fakeMessenger{configured: true}
	prefs := &fakePrefs{err: errors.New("db closed")}
	gate := newTestGate(t, prefs, ch, nil)

	assert.True(t, gate.Notify(context.Background(), CategoryScan, "text"))
	assert.Equal(t, 1, ch.sent())
}

func TestNotifyPerUserChannelOverride(t *testing.T) {
	system := &fakeMessenger{configured: true}
	override := &fakeMessenger{configured: true}

	ledger, _ := setupLedger(t)
	gate := NewGate(Options{
		Prefs:   &fakePrefs{},
		Creds:   credsFunc(func() (string, string) { return "user-token", "user-chat" }),
		Ledger:  ledger,
		Channel: system,
		Rebind: func(token, chatID string) Messenger {
			assert.Equal(t, "user-token", token)
			assert.Equal(t, "user-chat", chatID)
			return override
		},
		Logger: zerolog.Nop(),
	})

	assert.True(t, gate.Notify(context.Background(), CategoryScan, "text"))
	assert.Equal(t, 0, system.sent())
	assert.Equal(t, 1, override.sent())
}

func TestNotifyNoOverrideFallsBackToSystemChannel(t *testing.T) {
	system := &fakeMessenger{configured: true}

	ledger, _ := setupLedger(t)
	gate := NewGate(Options{
		Prefs:   &fakePrefs{},
		Creds:   credsFunc(func() (string, string) { return "", "" }),
		Ledger:  ledger,
		Channel: system,
		Rebind: func(string, string) Messenger {
			t.Fatal("rebind must not run without stored credentials")
			return nil
		},
		Logger: zerolog.Nop(),
	})

	assert.True(t, gate.Notify(context.Background(), CategoryScan, "text"))
	assert.Equal(t, 1, system.sent())
}

func TestNotifyPhotoPipeline(t *testing.T) {
	ch := &fakeMessenger{configured: true}
	gate := newTestGate(t, &fakePrefs{}, ch, nil)

	assert.True(t, gate.NotifyPhoto(context.Background(), CategoryDigest, []byte{1, 2, 3}, "weekly digest"))
	assert.False(t, gate.NotifyPhoto(context.Background(), CategoryDigest, []byte{1, 2, 3}, "again"))
	assert.Equal(t, 1, ch.photos)
}

func TestLedgerRoundTrip(t *testing.T) {
	ledger, _ := setupLedger(t)

	last, err := ledger.LastSent(CategoryScan)
	require.NoError(t, err)
	assert.Nil(t, last)

	first := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.LogSent(CategoryScan, first))

	last, err = ledger.LastSent(CategoryScan)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(first))

	// Re-logging replaces the earlier stamp.
	second := first.Add(time.Hour)
	require.NoError(t, ledger.LogSent(CategoryScan, second))

	last, err = ledger.LastSent(CategoryScan)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(second))
}

func TestMinIntervalPerCategory(t *testing.T) {
	assert.Equal(t, 10*time.Minute, MinInterval(CategoryScan))
	assert.Equal(t, time.Hour, MinInterval(CategoryDigest))
	assert.Equal(t, 30*time.Minute, MinInterval(CategoryFXAlert))
	assert.Equal(t, 5*time.Minute, MinInterval(CategorySystem))
	assert.Equal(t, defaultMinInterval, MinInterval(Category("unknown")))
}

func TestCategoryIsValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.IsValid())
	}
	assert.False(t, Category("bogus").IsValid())
}

// stepClock is a manually advanced clock.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// credsFunc adapts a function to CredentialSource.
type credsFunc func() (string, string)

func (f credsFunc) TelegramCredentials() (string, string) { return f() }
