package theme

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/missionz/internal/mission"
)

// MaxStars is the number of star slots shown for a mission.
const MaxStars = 3

// Stars renders n filled stars out of MaxStars.
func Stars(n int) string {
	if n < 0 {
		n = 0
	}
	if n > MaxStars {
		n = MaxStars
	}
	return StarOn.Render(strings.Repeat("★", n)) + StarOff.Render(strings.Repeat("☆", MaxStars-n))
}

// StatusBadge renders a mission status.
func StatusBadge(s mission.Status) string {
	switch s {
	case mission.StatusCompleted:
		return Done.Render("done")
	case mission.StatusCatchUp:
		return Late.Render("caught up")
	case mission.StatusSkipped:
		return Pending.Render("skipped")
	}
	return Pending.Render("to do")
}

// MissionLine renders one mission as a single line.
func MissionLine(m mission.Mission) string {
	return fmt.Sprintf("%s  #%d %-28s %-6s %s  %s  %s",
		m.MissionDate,
		m.MissionOption,
		m.SkillName,
		m.Difficulty,
		Stars(m.StarsEarned),
		StatusBadge(m.Status),
		Hint.Render(m.ID))
}

// ProgressBar renders value/target as a bar of the given width.
func ProgressBar(value, target, width int) string {
	if width < 4 {
		width = 4
	}
	filled := 0
	if target > 0 {
		filled = width * value / target
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return ProgressFilled.Render(strings.Repeat("█", filled)) +
		ProgressEmpty.Render(strings.Repeat("░", width-filled))
}

// StreakCard renders the streak aggregate with progress toward the next
// milestone.
func StreakCard(s mission.UserStreak, effective, nextMilestone int) string {
	last := "never"
	if s.LastCompletedDate != nil {
		last = s.LastCompletedDate.String()
	}
	lines := []string{
		Title.Render(fmt.Sprintf("🔥 %d day streak", effective)),
		fmt.Sprintf("%s %d/%d to the next milestone", ProgressBar(effective, nextMilestone, 20), effective, nextMilestone),
		Body.Render(fmt.Sprintf("Longest streak: %d", s.LongestStreak)),
		Body.Render(fmt.Sprintf("Missions completed: %d", s.TotalMissionsCompleted)),
		Body.Render(fmt.Sprintf("Stars earned: %d", s.TotalStarsEarned)),
		Body.Render(fmt.Sprintf("Perfect days: %d", s.PerfectDays)),
		Hint.Render("Last completed: " + last),
	}
	return Card.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
