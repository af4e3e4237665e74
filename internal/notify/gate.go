// Package notify gates outbound notifications. Every send passes two checks
// first: the per-category user preference and the per-category rate limit.
// Delivery failures are logged and never fail the triggering operation.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/metrics"
)

// Category labels one class of outbound notification.
type Category string

const (
	CategoryScan       Category = "scan"
	CategoryDigest     Category = "digest"
	CategoryFXAlert    Category = "fx_alert"
	CategoryPriceAlert Category = "price_alert"
	CategoryGuru       Category = "guru"
	CategorySystem     Category = "system"
)

// Categories lists every known category, in display order.
var Categories = []Category{
	CategoryScan,
	CategoryDigest,
	CategoryFXAlert,
	CategoryPriceAlert,
	CategoryGuru,
	CategorySystem,
}

// minIntervals is the per-category floor between two sends. FX watches add
// their own per-watch cool-down on top of this.
var minIntervals = map[Category]time.Duration{
	CategoryScan:       10 * time.Minute,
	CategoryDigest:     time.Hour,
	CategoryFXAlert:    30 * time.Minute,
	CategoryPriceAlert: 10 * time.Minute,
	CategoryGuru:       time.Hour,
	CategorySystem:     5 * time.Minute,
}

// defaultMinInterval applies to categories registered nowhere.
const defaultMinInterval = 10 * time.Minute

// MinInterval returns the rate-limit window for a category.
func MinInterval(category Category) time.Duration {
	if d, ok := minIntervals[category]; ok {
		return d
	}
	return defaultMinInterval
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// PreferenceSource reads the user's per-category switches. Categories with
// no stored record default to enabled.
type PreferenceSource interface {
	NotificationEnabled(category string) (bool, error)
}

// CredentialSource provides the per-user channel override. Empty values mean
// no override; the system default channel is used.
type CredentialSource interface {
	TelegramCredentials() (token, chatID string)
}

// Messenger is the delivery channel.
type Messenger interface {
	IsConfigured() bool
	SendMessage(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, photo []byte, caption string) error
}

// Rebinder builds a Messenger bound to per-user credentials.
type Rebinder func(token, chatID string) Messenger

// Gate owns the notification pipeline: preference check, rate-limit check,
// channel resolution, delivery, ledger update.
type Gate struct {
	prefs   PreferenceSource
	creds   CredentialSource
	ledger  *LedgerRepository
	channel Messenger
	rebind  Rebinder
	clock   domain.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Options carries the gate's collaborators. Prefs, Ledger and Channel are
// required; Creds, Rebind, Clock and Metrics may be nil.
type Options struct {
	Prefs   PreferenceSource
	Creds   CredentialSource
	Ledger  *LedgerRepository
	Channel Messenger
	Rebind  Rebinder
	Clock   domain.Clock
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewGate builds the gate.
func NewGate(opts Options) *Gate {
	clock := opts.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Gate{
		prefs:   opts.Prefs,
		creds:   opts.Creds,
		ledger:  opts.Ledger,
		channel: opts.Channel,
		rebind:  opts.Rebind,
		clock:   clock,
		metrics: opts.Metrics,
		log:     opts.Logger.With().Str("component", "notify_gate").Logger(),
	}
}

// IsEnabled reports the user's switch for a category. Missing records and
// read failures default to enabled so a broken preferences row never
// silences alerts.
func (g *Gate) IsEnabled(category Category) bool {
	enabled, err := g.prefs.NotificationEnabled(string(category))
	if err != nil {
		g.log.Warn().Err(err).Str("category", string(category)).Msg("preference read failed, defaulting to enabled")
		return true
	}
	return enabled
}

// WithinRateLimit reports whether the category may send now: true when it
// never sent or its last send is older than the category interval.
func (g *Gate) WithinRateLimit(category Category) bool {
	last, err := g.ledger.LastSent(category)
	if err != nil {
		g.log.Warn().Err(err).Str("category", string(category)).Msg("ledger read failed, allowing send")
		return true
	}
	if last == nil {
		return true
	}
	return g.clock.Now().Sub(*last) >= MinInterval(category)
}

// Send delivers text through the resolved channel without consulting the
// gate checks. Most callers want Notify instead.
func (g *Gate) Send(ctx context.Context, text string) error {
	return g.resolveChannel().SendMessage(ctx, text)
}

// SendPhoto delivers a PNG with a caption through the resolved channel.
func (g *Gate) SendPhoto(ctx context.Context, photo []byte, caption string) error {
	return g.resolveChannel().SendPhoto(ctx, photo, caption)
}

// LogSent stamps the ledger for a category with the current instant.
func (g *Gate) LogSent(category Category) {
	if err := g.ledger.LogSent(category, g.clock.Now()); err != nil {
		g.log.Warn().Err(err).Str("category", string(category)).Msg("ledger write failed")
	}
}

// Notify runs the full pipeline for a text notification and reports whether
// it went out. Suppressions and delivery failures are logged, never
// returned: a failed notification must not fail the operation that
// triggered it.
func (g *Gate) Notify(ctx context.Context, category Category, text string) bool {
	return g.deliver(ctx, category, func(ch Messenger) error {
		return ch.SendMessage(ctx, text)
	})
}

// NotifyPhoto runs the full pipeline for a photo notification.
func (g *Gate) NotifyPhoto(ctx context.Context, category Category, photo []byte, caption string) bool {
	return g.deliver(ctx, category, func(ch Messenger) error {
		return ch.SendPhoto(ctx, photo, caption)
	})
}

func (g *Gate) deliver(ctx context.Context, category Category, send func(Messenger) error) bool {
	if !g.IsEnabled(category) {
		g.suppress(category, "disabled")
		return false
	}
	if !g.WithinRateLimit(category) {
		g.suppress(category, "rate_limited")
		return false
	}

	ch := g.resolveChannel()
	if !ch.IsConfigured() {
		g.suppress(category, "unconfigured")
		return false
	}

	if err := send(ch); err != nil {
		g.log.Error().Err(err).Str("category", string(category)).Msg("notification delivery failed")
		g.suppress(category, "delivery_failed")
		return false
	}

	g.LogSent(category)
	if g.metrics != nil {
		g.metrics.NotificationsSent.WithLabelValues(string(category)).Inc()
	}
	g.log.Info().Str("category", string(category)).Msg("notification sent")
	return true
}

// resolveChannel returns the per-user override channel when credentials are
// stored, otherwise the system default. The stored token is decrypted by
// the credential source on every use.
func (g *Gate) resolveChannel() Messenger {
	if g.creds == nil || g.rebind == nil {
		return g.channel
	}
	token, chatID := g.creds.TelegramCredentials()
	if token == "" && chatID == "" {
		return g.channel
	}
	return g.rebind(token, chatID)
}

func (g *Gate) suppress(category Category, reason string) {
	if g.metrics != nil {
		g.metrics.NotificationsSuppressed.WithLabelValues(string(category), reason).Inc()
	}
	g.log.Debug().Str("category", string(category)).Str("reason", reason).Msg("notification suppressed")
}
