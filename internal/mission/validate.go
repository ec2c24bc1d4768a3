package mission

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IDLength is the fixed length of a mission identifier in canonical
// hyphenated UUID form.
const IDLength = 36

// ValidateID checks that id is a canonical 36-character UUID.
func ValidateID(id string) error {
	if len(id) != IDLength {
		return &InvalidIDError{ID: id}
	}
	if _, err := uuid.Parse(id); err != nil {
		return &InvalidIDError{ID: id, Err: err}
	}
	return nil
}

// ValidateResult checks r and returns a copy with CorrectAnswers clamped
// into [0, TotalQuestions]. Clamping is logged when log is non-nil.
func ValidateResult(r Result, log logrus.FieldLogger) (Result, error) {
	if r.TotalQuestions <= 0 {
		return Result{}, &InputError{Field: "totalQuestions", Value: r.TotalQuestions, Reason: "must be positive"}
	}
	if r.TimeSpentSeconds < 0 {
		return Result{}, &InputError{Field: "timeSpentSeconds", Value: r.TimeSpentSeconds, Reason: "must not be negative"}
	}

	clamped := r.CorrectAnswers
	if clamped < 0 {
		clamped = 0
	}
	if clamped > r.TotalQuestions {
		clamped = r.TotalQuestions
	}
	if clamped != r.CorrectAnswers && log != nil {
		log.WithFields(logrus.Fields{
			"correct": r.CorrectAnswers,
			"clamped": clamped,
			"total":   r.TotalQuestions,
		}).Warn("correct answers out of range, clamped")
	}

	out := r
	out.CorrectAnswers = clamped
	if r.QuestionAttempts != nil {
		out.QuestionAttempts = append([]QuestionAttempt(nil), r.QuestionAttempts...)
	}
	return out, nil
}
