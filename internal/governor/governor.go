// Package governor decides whether a free-tier user may issue a remote
// read now. Usage is a rolling one-hour window of call timestamps kept
// in the key-value store so it survives restarts.
package governor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/metrics"
)

// Tier is a user's access tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPaid:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown tier %q (want free or paid)", s)
}

// Defaults for the free tier.
const (
	DefaultHourlyLimit = 60
	DefaultWarnAt      = 48
	DefaultWindow      = time.Hour
)

// Config holds the governor's budget.
type Config struct {
	HourlyLimit int
	WarnAt      int
	Window      time.Duration
}

// DefaultConfig returns the free-tier budget.
func DefaultConfig() Config {
	return Config{
		HourlyLimit: DefaultHourlyLimit,
		WarnAt:      DefaultWarnAt,
		Window:      DefaultWindow,
	}
}

// RateLimitedError is returned when a read is refused for budget reasons.
// It is surfaced to the user and never retried automatically.
type RateLimitedError struct {
	Used    int
	Limit   int
	RetryAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("request budget exhausted (%d/%d this hour), please wait until %s",
		e.Used, e.Limit, e.RetryAt.Format(time.Kitchen))
}

// Decision describes an allowed call.
type Decision struct {
	Used  int
	Limit int
	// Warn is true for the single call that crossed the warning threshold.
	Warn bool
	// Bypass is true for tiers not subject to the budget.
	Bypass bool
}

// Governor tracks per-user usage. Its warning flag lives for one session.
type Governor struct {
	cfg     Config
	kv      kv.Store
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	bus     *events.Bus

	mu     sync.Mutex
	warned map[string]bool
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Governor) { g.log = l }
}

// WithMetrics records decisions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Governor) { g.metrics = m }
}

// WithBus publishes warnings and refusals.
func WithBus(b *events.Bus) Option {
	return func(g *Governor) { g.bus = b }
}

// New creates a Governor persisting its window in store.
func New(cfg Config, store kv.Store, opts ...Option) *Governor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	g := &Governor{
		cfg:    cfg,
		kv:     store,
		now:    time.Now,
		log:    logrus.StandardLogger(),
		warned: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func windowKey(userID string) string {
	return kv.Key("governor", userID)
}

// Allow decides whether userID may issue one remote read now and, if so,
// records it. Paid users always pass without being recorded. A refusal
// returns *RateLimitedError. Storage failures fail open.
func (g *Governor) Allow(ctx context.Context, userID string, tier Tier) (Decision, error) {
	if tier == TierPaid {
		return Decision{Bypass: true, Limit: g.cfg.HourlyLimit}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	calls, err := g.load(ctx, userID)
	if err != nil {
		g.log.WithError(err).WithField("user", userID).Warn("governor window unreadable, allowing call")
		g.metrics.RecordGovernor("allowed")
		return Decision{Limit: g.cfg.HourlyLimit}, nil
	}
	calls = prune(calls, now.Add(-g.cfg.Window))

	if len(calls) >= g.cfg.HourlyLimit {
		retryAt := time.UnixMilli(calls[0]).Add(g.cfg.Window)
		rl := &RateLimitedError{Used: len(calls), Limit: g.cfg.HourlyLimit, RetryAt: retryAt}
		g.log.WithFields(logrus.Fields{
			"user":     userID,
			"used":     rl.Used,
			"limit":    rl.Limit,
			"retry_at": retryAt,
		}).Info("free-tier read refused")
		g.metrics.RecordGovernor("refused")
		g.bus.Publish(events.RateLimited{UserID: userID, Used: rl.Used, Limit: rl.Limit, RetryAt: retryAt})
		// Keep the pruned window so it does not grow unbounded.
		_ = g.save(ctx, userID, calls)
		return Decision{}, rl
	}

	calls = append(calls, now.UnixMilli())
	if err := g.save(ctx, userID, calls); err != nil {
		g.log.WithError(err).WithField("user", userID).Warn("governor window not saved")
	}

	d := Decision{Used: len(calls), Limit: g.cfg.HourlyLimit}
	if g.cfg.WarnAt > 0 && d.Used >= g.cfg.WarnAt && !g.warned[userID] {
		g.warned[userID] = true
		d.Warn = true
		g.log.WithFields(logrus.Fields{"user": userID, "used": d.Used, "limit": d.Limit}).
			Info("approaching free-tier request limit")
		g.metrics.RecordGovernor("warned")
		g.bus.Publish(events.RateLimitWarning{UserID: userID, Used: d.Used, Limit: d.Limit})
		return d, nil
	}
	g.metrics.RecordGovernor("allowed")
	return d, nil
}

// Usage returns the number of calls in the current window.
func (g *Governor) Usage(ctx context.Context, userID string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	calls, err := g.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(prune(calls, g.now().Add(-g.cfg.Window))), nil
}

func (g *Governor) load(ctx context.Context, userID string) ([]int64, error) {
	raw, err := g.kv.Get(ctx, windowKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var calls []int64
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, fmt.Errorf("decode governor window: %w", err)
	}
	return calls, nil
}

func (g *Governor) save(ctx context.Context, userID string, calls []int64) error {
	raw, err := json.Marshal(calls)
	if err != nil {
		return err
	}
	return g.kv.Set(ctx, windowKey(userID), raw)
}

// prune drops timestamps at or before cutoff. calls is ascending.
func prune(calls []int64, cutoff time.Time) []int64 {
	c := cutoff.UnixMilli()
	i := 0
	for i < len(calls) && calls[i] <= c {
		i++
	}
	return calls[i:]
}
