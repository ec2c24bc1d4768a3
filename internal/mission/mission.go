package mission

import (
	"time"

	"cloud.google.com/go/civil"
)

// Status is the lifecycle state of a mission.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusCatchUp   Status = "catchup"
)

// Terminal reports whether no further mutation is issued once a mission
// reaches this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCatchUp || s == StatusSkipped
}

// Done reports whether the status counts as a completed mission.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusCatchUp
}

// Difficulty is the coarse difficulty of a mission.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionAttempt records one answered question of a mission.
type QuestionAttempt struct {
	Index         int    `json:"index"`
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// Mission is one scheduled learning task for one user on one calendar date.
type Mission struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	MissionDate   civil.Date `json:"missionDate"`
	SkillName     string     `json:"skillName"`
	Difficulty    Difficulty `json:"difficulty"`
	MissionOption int        `json:"missionOption"`

	Status             Status            `json:"status"`
	TotalQuestions     int               `json:"totalQuestions"`
	CompletedQuestions int               `json:"completedQuestions"`
	CorrectAnswers     int               `json:"correctAnswers"`
	TimeSpentSeconds   int               `json:"timeSpentSeconds"`
	StarsEarned        int               `json:"starsEarned"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty"`
	CanRetry           bool              `json:"canRetry"`
	QuestionAttempts   []QuestionAttempt `json:"questionAttempts,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Result is the validated input to rating and persistence of one
// exercise session. It is not stored as-is.
type Result struct {
	TotalQuestions   int               `json:"totalQuestions"`
	CorrectAnswers   int               `json:"correctAnswers"`
	TimeSpentSeconds int               `json:"timeSpentSeconds"`
	QuestionAttempts []QuestionAttempt `json:"questionAttempts,omitempty"`
}

// Completion is the set of fields a completion write sets on a mission row.
type Completion struct {
	Status             Status
	CompletedQuestions int
	CorrectAnswers     int
	TimeSpentSeconds   int
	StarsEarned        int
	CompletedAt        time.Time
	QuestionAttempts   []QuestionAttempt
}

// UserStreak is the per-user progress aggregate.
type UserStreak struct {
	UserID                 string      `json:"userId"`
	CurrentStreak          int         `json:"currentStreak"`
	LongestStreak          int         `json:"longestStreak"`
	TotalMissionsCompleted int         `json:"totalMissionsCompleted"`
	TotalStarsEarned       int         `json:"totalStarsEarned"`
	PerfectDays            int         `json:"perfectDays"`
	LastCompletedDate      *civil.Date `json:"lastCompletedDate,omitempty"`
	UpdatedAt              time.Time   `json:"updatedAt"`
}

// Today returns the caller's local calendar date for now.
// Mission scheduling never compares against UTC dates.
func Today(now time.Time) civil.Date {
	return civil.DateOf(now.Local())
}

// MonthRange returns the first and last calendar date of the given month.
func MonthRange(year int, month time.Month) (civil.Date, civil.Date) {
	first := civil.Date{Year: year, Month: month, Day: 1}
	next := civil.Date{Year: year, Month: month + 1, Day: 1}
	if month == time.December {
		next = civil.Date{Year: year + 1, Month: time.January, Day: 1}
	}
	return first, next.AddDays(-1)
}
