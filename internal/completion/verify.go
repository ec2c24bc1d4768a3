package completion

import (
	"github.com/abhisek/missionz/internal/mission"
)

// mismatch describes the first field of a read-back row that differs
// from the intended completion.
type mismatch struct {
	field     string
	want, got any
}

// verify compares the row read after a write with what was written.
// completedAt only has to be set: an earlier attempt may have landed
// with its own timestamp.
func verify(got *mission.Mission, want mission.Completion) *mismatch {
	switch {
	case got.Status != want.Status:
		return &mismatch{"status", want.Status, got.Status}
	case got.CorrectAnswers != want.CorrectAnswers:
		return &mismatch{"correct_answers", want.CorrectAnswers, got.CorrectAnswers}
	case got.CompletedQuestions != want.CompletedQuestions:
		return &mismatch{"completed_questions", want.CompletedQuestions, got.CompletedQuestions}
	case got.TimeSpentSeconds != want.TimeSpentSeconds:
		return &mismatch{"time_spent_seconds", want.TimeSpentSeconds, got.TimeSpentSeconds}
	case got.StarsEarned != want.StarsEarned:
		return &mismatch{"stars_earned", want.StarsEarned, got.StarsEarned}
	case got.CompletedAt == nil:
		return &mismatch{"completed_at", "non-null", nil}
	}
	return nil
}
