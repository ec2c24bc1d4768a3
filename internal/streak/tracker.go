// Package streak keeps the per-user streak aggregate.
package streak

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/store"
)

// Tracker reads, lazily creates and updates one user's streak row.
type Tracker struct {
	userID string
	repo   store.StreakRepo
	cache  *cache.Cache
	bus    *events.Bus
	log    logrus.FieldLogger
}

// NewTracker creates a tracker. cache and bus may be nil.
func NewTracker(userID string, repo store.StreakRepo, c *cache.Cache, bus *events.Bus, log logrus.FieldLogger) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{userID: userID, repo: repo, cache: c, bus: bus, log: log}
}

// Refresh returns the stored streak, creating a zeroed row if absent.
func (t *Tracker) Refresh(ctx context.Context) (*mission.UserStreak, error) {
	s, err := t.repo.Get(ctx, t.userID)
	if err != nil {
		return nil, fmt.Errorf("read streak: %w", err)
	}
	if s != nil {
		return s, nil
	}

	s = &mission.UserStreak{UserID: t.userID}
	if err := t.repo.Insert(ctx, s); err != nil {
		return nil, fmt.Errorf("create streak: %w", err)
	}
	t.log.WithField("user", t.userID).Info("created streak record")
	t.invalidate(ctx)
	return s, nil
}

// RecordCompletion applies one verified completion to the streak and
// persists it.
func (t *Tracker) RecordCompletion(ctx context.Context, c Completion) (*mission.UserStreak, error) {
	cur, err := t.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	next := Advance(*cur, c)
	if err := t.repo.Update(ctx, &next); err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}
	t.invalidate(ctx)

	t.log.WithFields(logrus.Fields{
		"user":         t.userID,
		"current":      next.CurrentStreak,
		"longest":      next.LongestStreak,
		"total_stars":  next.TotalStarsEarned,
		"perfect_days": next.PerfectDays,
	}).Debug("streak updated")
	t.bus.Publish(events.StreakUpdated{
		UserID:        t.userID,
		CurrentStreak: next.CurrentStreak,
		LongestStreak: next.LongestStreak,
		PerfectDays:   next.PerfectDays,
	})
	return &next, nil
}

func (t *Tracker) invalidate(ctx context.Context) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Invalidate(ctx, t.userID); err != nil {
		t.log.WithError(err).Warn("cache invalidation after streak update failed")
	}
}
