package store

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/abhisek/missionz/internal/mission"
)

// MissionRepo is the remote mission table. Every operation touches a
// single row or a single range read; no multi-statement transactions
// are used.
type MissionRepo interface {
	// Get returns the mission with id owned by userID, or a
	// *mission.NotFoundError.
	Get(ctx context.Context, userID, id string) (*mission.Mission, error)

	// ListRange returns the user's missions dated within [from, to],
	// ordered by date then option.
	ListRange(ctx context.Context, userID string, from, to civil.Date) ([]mission.Mission, error)

	// Insert creates a new mission row.
	Insert(ctx context.Context, m *mission.Mission) error

	// UpdateCompletion applies c to the mission only while it is still
	// pending. It returns the number of rows changed, which is zero when
	// the mission is missing or already terminal.
	UpdateCompletion(ctx context.Context, userID, id string, c mission.Completion) (int64, error)

	// SetStatus moves a pending mission to status without completion data.
	// It is used for skips.
	SetStatus(ctx context.Context, userID, id string, status mission.Status) (int64, error)
}

// StreakRepo is the remote user_streaks table.
type StreakRepo interface {
	// Get returns the user's streak, or nil if none exists.
	Get(ctx context.Context, userID string) (*mission.UserStreak, error)

	// Insert creates the streak row.
	Insert(ctx context.Context, s *mission.UserStreak) error

	// Update overwrites the streak row.
	Update(ctx context.Context, s *mission.UserStreak) error
}
