// Package missionmode lets any exercise activity report its tally into
// the completion pipeline without knowing about missions.
package missionmode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/missionz/internal/completion"
	"github.com/abhisek/missionz/internal/mission"
)

// Completer is the part of the completion pipeline the adapter drives.
type Completer interface {
	Complete(ctx context.Context, missionID string, r mission.Result) (completion.Outcome, error)
	CompleteCatchUp(ctx context.Context, missionID string, r mission.Result) (completion.Outcome, error)
}

// Tally is the raw result of one exercise session.
type Tally struct {
	Correct   int
	Total     int
	ElapsedMs int64
	Attempts  []mission.QuestionAttempt
}

// Report is the simplified result shown to the learner.
type Report struct {
	MissionID string
	Stars     int
	IsPassed  bool
	Queued    bool
	Summary   string
	Outcome   completion.Outcome
}

// Adapter forwards tallies to a Completer.
type Adapter struct {
	c Completer
}

// NewAdapter creates an Adapter.
func NewAdapter(c Completer) *Adapter {
	return &Adapter{c: c}
}

// Report forwards t for the mission named in ctx. Without a mission in
// the context it does nothing and returns nil, nil.
//
// A result that was queued after every write attempt failed is not an
// error here: the report carries Queued and a summary saying so.
func (a *Adapter) Report(ctx context.Context, t Tally) (*Report, error) {
	id, ok := MissionFrom(ctx)
	if !ok {
		return nil, nil
	}
	if t.Total <= 0 {
		return nil, &mission.InputError{Field: "totalQuestions", Value: t.Total, Reason: "must be positive"}
	}
	if t.Correct < 0 || t.Correct > t.Total {
		return nil, &mission.InputError{Field: "correctAnswers", Value: t.Correct, Reason: fmt.Sprintf("must be within 0..%d", t.Total)}
	}
	if t.ElapsedMs < 0 {
		return nil, &mission.InputError{Field: "elapsedMs", Value: int(t.ElapsedMs), Reason: "must not be negative"}
	}

	r := mission.Result{
		TotalQuestions:   t.Total,
		CorrectAnswers:   t.Correct,
		TimeSpentSeconds: int(t.ElapsedMs / 1000),
		QuestionAttempts: t.Attempts,
	}

	complete := a.c.Complete
	if CatchUpFrom(ctx) {
		complete = a.c.CompleteCatchUp
	}
	out, err := complete(ctx, id, r)

	var ex *mission.ExhaustedError
	switch {
	case err == nil:
	case errors.As(err, &ex) && ex.Queued:
	default:
		return nil, err
	}

	return &Report{
		MissionID: id,
		Stars:     out.Stars,
		IsPassed:  out.IsPassed,
		Queued:    out.Queued,
		Summary:   summarize(t, r.TimeSpentSeconds, out),
		Outcome:   out,
	}, nil
}

func summarize(t Tally, secs int, out completion.Outcome) string {
	elapsed := (time.Duration(secs) * time.Second).String()
	if out.Queued {
		return fmt.Sprintf("%d/%d correct in %s. Saved offline, it will sync when the connection is back.",
			t.Correct, t.Total, elapsed)
	}
	verdict := "Keep practicing!"
	if out.IsPassed {
		verdict = "Mission passed!"
	}
	s := fmt.Sprintf("%d/%d correct (%.0f%%) in %s. %s %d %s",
		t.Correct, t.Total, out.AccuracyPct, elapsed, verdict, out.Stars, plural(out.Stars, "star", "stars"))
	if out.CatchUp {
		s += " (catch-up)"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
