package streak

import (
	"cloud.google.com/go/civil"

	"github.com/abhisek/missionz/internal/mission"
)

// Completion is what the tracker needs to know about one verified
// mission completion.
type Completion struct {
	Date    civil.Date
	Stars   int
	CatchUp bool
	// PerfectDay is true when this completion made every mission of Date
	// completed.
	PerfectDay bool
}

// Advance applies c to s and returns the new aggregate.
//
// A same-day completion continues the streak when the previous completed
// date is the day before, keeps it on the same day and restarts it at 1
// otherwise. Catch-up completions only add to the totals.
func Advance(s mission.UserStreak, c Completion) mission.UserStreak {
	s.TotalMissionsCompleted++
	if c.Stars > 0 {
		s.TotalStarsEarned += c.Stars
	}
	if c.PerfectDay {
		s.PerfectDays++
	}

	if !c.CatchUp {
		switch last := s.LastCompletedDate; {
		case last == nil:
			s.CurrentStreak = 1
			s.LastCompletedDate = dateRef(c.Date)
		case *last == c.Date:
			if s.CurrentStreak == 0 {
				s.CurrentStreak = 1
			}
		case *last == c.Date.AddDays(-1):
			s.CurrentStreak++
			s.LastCompletedDate = dateRef(c.Date)
		case last.Before(c.Date):
			s.CurrentStreak = 1
			s.LastCompletedDate = dateRef(c.Date)
		}
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	return s
}

// Effective returns the streak length as seen on today: a streak whose
// last completion is older than yesterday is broken and shows as zero.
func Effective(s mission.UserStreak, today civil.Date) int {
	if s.LastCompletedDate == nil {
		return 0
	}
	if s.LastCompletedDate.Before(today.AddDays(-1)) {
		return 0
	}
	return s.CurrentStreak
}

// NextMilestone returns the next streak milestone above the current length.
func NextMilestone(current int) int {
	milestones := []int{3, 7, 14, 30}
	for _, m := range milestones {
		if m > current {
			return m
		}
	}
	// Beyond a month, every 30 days.
	return ((current / 30) + 1) * 30
}

func dateRef(d civil.Date) *civil.Date {
	return &d
}
