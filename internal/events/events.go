// Package events is the boundary between the completion pipeline and
// whatever presents its results. Components publish typed events; a
// presentation layer subscribes.
package events

import (
	"time"

	"cloud.google.com/go/civil"
)

// Type identifies an event kind.
type Type string

const (
	TypeMissionCompleted        Type = "mission_completed"
	TypeMissionCompletionFailed Type = "mission_completion_failed"
	TypeRateLimitWarning        Type = "rate_limit_warning"
	TypeRateLimited             Type = "rate_limited"
	TypeStreakUpdated           Type = "streak_updated"
	TypeGenerationTimedOut      Type = "generation_timed_out"
	TypePendingReplayed         Type = "pending_replayed"
	TypeReplayDropped           Type = "replay_dropped"
)

// Event is implemented by every published event.
type Event interface {
	EventType() Type
}

// MissionCompleted is published after a completion was written and verified.
type MissionCompleted struct {
	UserID    string
	MissionID string
	Stars     int
	IsPassed  bool
	CatchUp   bool
	Attempts  int
}

func (MissionCompleted) EventType() Type { return TypeMissionCompleted }

// MissionCompletionFailed is published when every write attempt failed.
// Queued reports whether the result was saved for replay.
type MissionCompletionFailed struct {
	UserID    string
	MissionID string
	Attempts  int
	Queued    bool
	Err       error
}

func (MissionCompletionFailed) EventType() Type { return TypeMissionCompletionFailed }

// RateLimitWarning is published once per session when free-tier usage
// crosses the warning threshold.
type RateLimitWarning struct {
	UserID string
	Used   int
	Limit  int
}

func (RateLimitWarning) EventType() Type { return TypeRateLimitWarning }

// RateLimited is published when a read was refused for budget reasons.
type RateLimited struct {
	UserID  string
	Used    int
	Limit   int
	RetryAt time.Time
}

func (RateLimited) EventType() Type { return TypeRateLimited }

// StreakUpdated is published after the streak aggregate changed.
type StreakUpdated struct {
	UserID        string
	CurrentStreak int
	LongestStreak int
	PerfectDays   int
}

func (StreakUpdated) EventType() Type { return TypeStreakUpdated }

// GenerationTimedOut is published when the generation call exceeded its
// time box. The missions may still appear after a recheck.
type GenerationTimedOut struct {
	UserID      string
	Date        civil.Date
	RecheckAt   time.Time
	TimeoutSecs int
}

func (GenerationTimedOut) EventType() Type { return TypeGenerationTimedOut }

// PendingReplayed is published when a queued result was finally persisted.
type PendingReplayed struct {
	UserID    string
	MissionID string
	Stars     int
}

func (PendingReplayed) EventType() Type { return TypePendingReplayed }

// ReplayDropped is published when a queued result can never be persisted
// and was removed from the queue.
type ReplayDropped struct {
	UserID    string
	MissionID string
	Err       error
}

func (ReplayDropped) EventType() Type { return TypeReplayDropped }
