// Package cache keeps time-scoped snapshots of fetched mission lists and
// streak records for free-tier users.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/metrics"
	"github.com/abhisek/missionz/internal/mission"
)

// DefaultTTL is how long a fetched snapshot stays fresh.
const DefaultTTL = 5 * time.Minute

// Scopes of cached payloads.
const (
	ScopeMissions = "missions"
	ScopeStreak   = "streak"
)

// Entry is one cached snapshot as stored in the key-value store.
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Cache reads and writes snapshots through a kv.Store. Read failures
// degrade to a miss; the caller then fetches fresh data.
type Cache struct {
	kv      kv.Store
	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = l }
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New(store kv.Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		kv:  store,
		ttl: ttl,
		now: time.Now,
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MissionsKey is the cache key for a user's missions in one month.
func MissionsKey(userID string, year int, month time.Month) string {
	return kv.Key("cache", userID, ScopeMissions, fmt.Sprintf("%04d-%02d", year, int(month)))
}

// StreakKey is the cache key for a user's streak.
func StreakKey(userID string) string {
	return kv.Key("cache", userID, ScopeStreak)
}

func userPrefix(userID string) string {
	return kv.Key("cache", userID) + ":"
}

// Missions returns the cached mission list for the month, if fresh.
func (c *Cache) Missions(ctx context.Context, userID string, year int, month time.Month) ([]mission.Mission, bool) {
	var out []mission.Mission
	ok := c.get(ctx, ScopeMissions, MissionsKey(userID, year, month), &out)
	return out, ok
}

// PutMissions stores the mission list for the month.
func (c *Cache) PutMissions(ctx context.Context, userID string, year int, month time.Month, ms []mission.Mission) error {
	return c.put(ctx, MissionsKey(userID, year, month), ms)
}

// Streak returns the cached streak, if fresh.
func (c *Cache) Streak(ctx context.Context, userID string) (*mission.UserStreak, bool) {
	var out mission.UserStreak
	if !c.get(ctx, ScopeStreak, StreakKey(userID), &out) {
		return nil, false
	}
	return &out, true
}

// PutStreak stores the streak.
func (c *Cache) PutStreak(ctx context.Context, userID string, s *mission.UserStreak) error {
	return c.put(ctx, StreakKey(userID), s)
}

// Invalidate drops every cached snapshot of the user.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if err := c.kv.DeletePrefix(ctx, userPrefix(userID)); err != nil {
		return fmt.Errorf("invalidate cache for %s: %w", userID, err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, scope, key string, dst any) bool {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		c.metrics.RecordCacheLookup(scope, false)
		return false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("discarding corrupt cache entry")
		c.metrics.RecordCacheLookup(scope, false)
		return false
	}
	if c.now().Sub(e.FetchedAt) >= c.ttl {
		c.metrics.RecordCacheLookup(scope, false)
		return false
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("discarding corrupt cache payload")
		c.metrics.RecordCacheLookup(scope, false)
		return false
	}
	c.metrics.RecordCacheLookup(scope, true)
	return true
}

func (c *Cache) put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache payload %s: %w", key, err)
	}
	raw, err := json.Marshal(Entry{Key: key, Payload: payload, FetchedAt: c.now()})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}
