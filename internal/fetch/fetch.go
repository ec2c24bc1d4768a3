// Package fetch performs the remote reads of a session under the tier
// policy: free-tier reads go through the result cache and the request
// governor, paid-tier reads always hit the store.
package fetch

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/governor"
	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/store"
)

// StreakSource reads the streak aggregate, creating it when absent.
type StreakSource interface {
	Refresh(ctx context.Context) (*mission.UserStreak, error)
}

// Fetcher reads one user's missions and streak.
type Fetcher struct {
	userID   string
	tier     governor.Tier
	missions store.MissionRepo
	streaks  StreakSource
	cache    *cache.Cache
	gov      *governor.Governor
	log      logrus.FieldLogger
}

// New creates a Fetcher.
func New(userID string, tier governor.Tier, missions store.MissionRepo, streaks StreakSource,
	c *cache.Cache, gov *governor.Governor, log logrus.FieldLogger) *Fetcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Fetcher{
		userID:   userID,
		tier:     tier,
		missions: missions,
		streaks:  streaks,
		cache:    c,
		gov:      gov,
		log:      log,
	}
}

// Tier returns the tier reads are governed by.
func (f *Fetcher) Tier() governor.Tier {
	return f.tier
}

func (f *Fetcher) free() bool {
	return f.tier != governor.TierPaid && f.cache != nil && f.gov != nil
}

// Missions returns the user's missions in the month. A free-tier read
// over budget returns *governor.RateLimitedError.
func (f *Fetcher) Missions(ctx context.Context, year int, month time.Month) ([]mission.Mission, error) {
	if f.free() {
		if ms, ok := f.cache.Missions(ctx, f.userID, year, month); ok {
			return ms, nil
		}
	}
	return f.loadMissions(ctx, year, month)
}

// RefreshMissions skips the cache lookup but still spends budget and
// repopulates the cache.
func (f *Fetcher) RefreshMissions(ctx context.Context, year int, month time.Month) ([]mission.Mission, error) {
	return f.loadMissions(ctx, year, month)
}

func (f *Fetcher) loadMissions(ctx context.Context, year int, month time.Month) ([]mission.Mission, error) {
	if err := f.allow(ctx); err != nil {
		return nil, err
	}

	from, to := mission.MonthRange(year, month)
	ms, err := f.missions.ListRange(ctx, f.userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch missions %04d-%02d: %w", year, int(month), err)
	}

	if f.free() {
		if err := f.cache.PutMissions(ctx, f.userID, year, month, ms); err != nil {
			f.log.WithError(err).Warn("mission list not cached")
		}
	}
	return ms, nil
}

// MissionsOn returns the user's missions dated d.
func (f *Fetcher) MissionsOn(ctx context.Context, d civil.Date) ([]mission.Mission, error) {
	ms, err := f.Missions(ctx, d.Year, d.Month)
	if err != nil {
		return nil, err
	}
	var out []mission.Mission
	for _, m := range ms {
		if m.MissionDate == d {
			out = append(out, m)
		}
	}
	return out, nil
}

// Streak returns the user's streak aggregate.
func (f *Fetcher) Streak(ctx context.Context) (*mission.UserStreak, error) {
	if f.free() {
		if s, ok := f.cache.Streak(ctx, f.userID); ok {
			return s, nil
		}
	}
	if err := f.allow(ctx); err != nil {
		return nil, err
	}

	s, err := f.streaks.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch streak: %w", err)
	}
	if f.free() {
		if err := f.cache.PutStreak(ctx, f.userID, s); err != nil {
			f.log.WithError(err).Warn("streak not cached")
		}
	}
	return s, nil
}

func (f *Fetcher) allow(ctx context.Context) error {
	if !f.free() {
		return nil
	}
	_, err := f.gov.Allow(ctx, f.userID, f.tier)
	return err
}
