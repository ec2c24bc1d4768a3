package generation

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/store"
)

// MaxMissionsPerDay caps how many missions a date can hold.
const MaxMissionsPerDay = 3

// QuestionsPerMission is the question count of a generated mission.
const QuestionsPerMission = 10

type skill struct {
	name       string
	difficulty mission.Difficulty
}

// catalog is rotated through by date so consecutive days differ.
var catalog = []skill{
	{"Place Value to 1,000", mission.DifficultyEasy},
	{"Add Within 100", mission.DifficultyEasy},
	{"Subtract Within 100", mission.DifficultyEasy},
	{"Multiplication Facts", mission.DifficultyMedium},
	{"Division Facts", mission.DifficultyMedium},
	{"Add Within 1,000", mission.DifficultyMedium},
	{"Unit Fractions", mission.DifficultyMedium},
	{"Multi-Digit Multiplication", mission.DifficultyHard},
	{"Equivalent Fractions", mission.DifficultyHard},
	{"Area and Perimeter", mission.DifficultyHard},
}

// LocalGenerator creates missions directly in the mission table. It is
// used offline and when no generation endpoint is configured.
type LocalGenerator struct {
	repo store.MissionRepo
	now  func() time.Time
}

// NewLocalGenerator creates a LocalGenerator. A nil now uses time.Now.
func NewLocalGenerator(repo store.MissionRepo, now func() time.Time) *LocalGenerator {
	if now == nil {
		now = time.Now
	}
	return &LocalGenerator{repo: repo, now: now}
}

// Generate fills req.LocalDate up to MaxMissionsPerDay missions, or adds
// exactly one when AddSingleMission is set. A date that already has
// missions is returned as-is unless a single mission is requested.
func (g *LocalGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	existing, err := g.repo.ListRange(ctx, req.UserID, req.LocalDate, req.LocalDate)
	if err != nil {
		return nil, fmt.Errorf("listing missions for %s: %w", req.LocalDate, err)
	}

	want := MaxMissionsPerDay - len(existing)
	switch {
	case req.AddSingleMission && want <= 0:
		return nil, &MaxMissionsError{Date: req.LocalDate, Max: MaxMissionsPerDay}
	case req.AddSingleMission:
		want = 1
	case len(existing) > 0:
		return &Response{Success: true, Missions: existing}, nil
	}

	created := make([]mission.Mission, 0, want)
	for i := 0; i < want; i++ {
		option := len(existing) + i + 1
		m := newMission(req.UserID, req.LocalDate, option, g.now().UTC())
		if err := g.repo.Insert(ctx, &m); err != nil {
			return nil, fmt.Errorf("creating mission %d for %s: %w", option, req.LocalDate, err)
		}
		created = append(created, m)
	}

	if req.AddSingleMission {
		return &Response{Success: true, Mission: &created[0]}, nil
	}
	return &Response{Success: true, Missions: created}, nil
}

func newMission(userID string, d civil.Date, option int, now time.Time) mission.Mission {
	epoch := civil.Date{Year: 2000, Month: time.January, Day: 1}
	idx := (d.DaysSince(epoch)*MaxMissionsPerDay + option - 1) % len(catalog)
	if idx < 0 {
		idx += len(catalog)
	}
	sk := catalog[idx]
	return mission.Mission{
		ID:             uuid.NewString(),
		UserID:         userID,
		MissionDate:    d,
		SkillName:      sk.name,
		Difficulty:     sk.difficulty,
		MissionOption:  option,
		Status:         mission.StatusPending,
		TotalQuestions: QuestionsPerMission,
		CanRetry:       true,
		CreatedAt:      now,
	}
}
