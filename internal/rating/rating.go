package rating

import (
	"github.com/abhisek/missionz/internal/mission"
)

const (
	// FastLimitSecs is the elapsed-time ceiling for a three-star result.
	FastLimitSecs = 600

	// MaxCatchUpDays is the last day after the mission date on which a
	// catch-up completion still earns stars.
	MaxCatchUpDays = 7
)

// Rating is the outcome of scoring one exercise session.
type Rating struct {
	AccuracyPct float64 `json:"accuracyPct"`
	Stars       int     `json:"stars"`
	IsPassed    bool    `json:"isPassed"`
}

// Rate scores a same-day completion.
func Rate(correct, total, elapsedSecs int) (Rating, error) {
	if total <= 0 {
		return Rating{}, &mission.InputError{Field: "totalQuestions", Value: total, Reason: "must be positive"}
	}

	var stars int
	switch {
	case atLeast(correct, total, 90) && elapsedSecs <= FastLimitSecs:
		stars = 3
	case atLeast(correct, total, 80):
		stars = 2
	case atLeast(correct, total, 70):
		stars = 1
	}

	return Rating{
		AccuracyPct: Accuracy(correct, total),
		Stars:       stars,
		// Pass requires strictly more than 80%, unlike the two-star cutoff.
		IsPassed: 100*correct > 80*total,
	}, nil
}

// RateCatchUp scores a late completion daysSince days after the mission
// date. Base stars use lower thresholds and then decay by
// CatchUpMultiplier. Past MaxCatchUpDays the mission is locked.
func RateCatchUp(correct, total, elapsedSecs, daysSince int) (Rating, error) {
	if total <= 0 {
		return Rating{}, &mission.InputError{Field: "totalQuestions", Value: total, Reason: "must be positive"}
	}
	mult, ok := CatchUpMultiplier(daysSince)
	if !ok {
		return Rating{}, &mission.LockedError{DaysSince: daysSince}
	}

	var base int
	switch {
	case atLeast(correct, total, 90) && elapsedSecs <= FastLimitSecs:
		base = 3
	case atLeast(correct, total, 70):
		base = 2
	case atLeast(correct, total, 50):
		base = 1
	}

	return Rating{
		AccuracyPct: Accuracy(correct, total),
		Stars:       mult.apply(base),
		IsPassed:    100*correct > 80*total,
	}, nil
}

// Multiplier is a catch-up decay factor expressed as a fraction.
type Multiplier struct {
	Num, Den int
}

// Float returns the multiplier as a float64.
func (m Multiplier) Float() float64 {
	return float64(m.Num) / float64(m.Den)
}

// apply returns floor(stars * m). Integer arithmetic keeps the floor exact.
func (m Multiplier) apply(stars int) int {
	return stars * m.Num / m.Den
}

// CatchUpMultiplier returns the decay applied to a completion daysSince
// days late. ok is false once the mission is locked.
func CatchUpMultiplier(daysSince int) (m Multiplier, ok bool) {
	switch {
	case daysSince <= 3:
		return Multiplier{1, 2}, true
	case daysSince <= MaxCatchUpDays:
		return Multiplier{1, 4}, true
	default:
		return Multiplier{}, false
	}
}

// Accuracy returns 100 * correct / total, or 0 when total is not positive.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(100*correct) / float64(total)
}

// atLeast reports whether correct/total >= pct/100 without floating point.
func atLeast(correct, total, pct int) bool {
	return 100*correct >= pct*total
}
