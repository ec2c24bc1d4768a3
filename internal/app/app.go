// Package app wires one user's session: storage, the free-tier policy,
// the completion pipeline and mission generation.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/completion"
	"github.com/abhisek/missionz/internal/config"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/fetch"
	"github.com/abhisek/missionz/internal/generation"
	"github.com/abhisek/missionz/internal/governor"
	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/metrics"
	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/missionmode"
	"github.com/abhisek/missionz/internal/queue"
	"github.com/abhisek/missionz/internal/store"
	"github.com/abhisek/missionz/internal/streak"
)

const redisNamespace = "missionz"

// Session owns every component of one user's session. Nothing in it is
// shared across sessions.
type Session struct {
	UserID string
	Tier   governor.Tier

	Log      logrus.FieldLogger
	Store    *store.Store
	KV       kv.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Bus      *events.Bus

	Cache      *cache.Cache
	Governor   *governor.Governor
	Queue      *queue.Queue
	Streaks    *streak.Tracker
	Fetcher    *fetch.Fetcher
	Pipeline   *completion.Pipeline
	Adapter    *missionmode.Adapter
	Generation *generation.Service

	now     func() time.Time
	closeFn []func() error
}

// Option configures Open.
type Option func(*options)

type options struct {
	now func() time.Time
	kv  kv.Store
}

// WithClock overrides the session clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKV uses s instead of the configured key-value backend. The session
// does not close it.
func WithKV(s kv.Store) Option {
	return func(o *options) { o.kv = s }
}

// Open validates cfg and builds a session for cfg.User.
func Open(ctx context.Context, cfg config.Config, log logrus.FieldLogger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	tier, err := governor.ParseTier(cfg.User.Tier)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Store.DSN
	if dsn == "" && cfg.Store.Driver == store.DriverSQLite {
		if dsn, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve DB path: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Session{
		UserID: cfg.User.ID,
		Tier:   tier,
		Log:    log.WithField("user", cfg.User.ID),
		Store:  st,
		now:    o.now,
	}
	s.closeFn = append(s.closeFn, st.Close)

	if o.kv != nil {
		s.KV = o.kv
	} else {
		kvs, err := openKV(ctx, cfg.KV, st)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.KV = kvs
		s.closeFn = append([]func() error{kvs.Close}, s.closeFn...)
	}

	s.Registry = prometheus.NewRegistry()
	s.Metrics = metrics.New(s.Registry)
	s.Bus = events.NewBus()

	s.Cache = cache.New(s.KV, cfg.Cache.TTL,
		cache.WithClock(o.now), cache.WithMetrics(s.Metrics), cache.WithLogger(s.Log))

	s.Governor = governor.New(governor.Config{
		HourlyLimit: cfg.Governor.HourlyLimit,
		WarnAt:      cfg.Governor.WarnAt,
		Window:      governor.DefaultWindow,
	}, s.KV,
		governor.WithClock(o.now), governor.WithLogger(s.Log),
		governor.WithMetrics(s.Metrics), governor.WithBus(s.Bus))

	s.Queue = queue.New(s.KV, s.UserID, s.Metrics)
	s.Streaks = streak.NewTracker(s.UserID, st.StreakRepo(), s.Cache, s.Bus, s.Log)
	s.Fetcher = fetch.New(s.UserID, tier, st.MissionRepo(), s.Streaks, s.Cache, s.Governor, s.Log)

	s.Pipeline = completion.New(s.UserID, completion.Config{
		MaxAttempts: cfg.Completion.MaxAttempts,
		BackoffBase: cfg.Completion.BackoffBase,
		ReplayRate:  cfg.Replay.Rate,
	}, st.MissionRepo(), s.Queue,
		completion.WithClock(o.now), completion.WithLogger(s.Log),
		completion.WithMetrics(s.Metrics), completion.WithBus(s.Bus),
		completion.WithCache(s.Cache), completion.WithStreaks(s.Streaks))

	s.Adapter = missionmode.NewAdapter(s.Pipeline)

	var gen generation.Generator
	if cfg.Generation.Endpoint != "" {
		client := &http.Client{Timeout: cfg.Generation.Timeout + 5*time.Second}
		gen = generation.NewHTTPGenerator(cfg.Generation.Endpoint, cfg.Generation.APIKey, client)
	} else {
		gen = generation.NewLocalGenerator(st.MissionRepo(), o.now)
	}
	s.Generation = generation.NewService(s.UserID, gen, s.Fetcher, generation.Config{
		Timeout:      cfg.Generation.Timeout,
		RecheckDelay: cfg.Generation.RecheckDelay,
	},
		generation.WithClock(o.now), generation.WithLogger(s.Log),
		generation.WithMetrics(s.Metrics), generation.WithBus(s.Bus),
		generation.WithCache(s.Cache))

	if n, err := s.Queue.Len(ctx); err == nil {
		s.Metrics.SetQueueDepth(n)
	}
	return s, nil
}

func openKV(ctx context.Context, cfg config.KVConfig, st *store.Store) (kv.Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return st.KV(), nil
	case "memory":
		return kv.NewMemory(), nil
	case "redis":
		r, err := kv.OpenRedis(ctx, cfg.RedisURL, redisNamespace)
		if err != nil {
			return nil, fmt.Errorf("open redis kv: %w", err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
}

// Close releases the key-value backend and the store.
func (s *Session) Close() error {
	var first error
	for _, fn := range s.closeFn {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	s.closeFn = nil
	return first
}

// Today returns the session user's local calendar date.
func (s *Session) Today() civil.Date {
	return mission.Today(s.now())
}

// Complete reports a finished mission. A mission dated before today is
// completed as a catch-up; the pipeline's own pre-read supplies the date,
// so the row is read once and never through the governor.
func (s *Session) Complete(ctx context.Context, missionID string, t missionmode.Tally) (*missionmode.Report, error) {
	ctx = missionmode.WithCatchUp(missionmode.WithMission(ctx, missionID))
	return s.Adapter.Report(ctx, t)
}
