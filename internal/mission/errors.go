package mission

import (
	"fmt"
	"time"
)

// InputError indicates a completion result that failed local validation.
// It is raised before any I/O and is never retried.
type InputError struct {
	Field  string
	Value  int
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s (%d): %s", e.Field, e.Value, e.Reason)
}

// InvalidIDError indicates a malformed mission identifier.
type InvalidIDError struct {
	ID  string
	Err error
}

func (e *InvalidIDError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid mission id %q: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("invalid mission id %q", e.ID)
}

func (e *InvalidIDError) Unwrap() error { return e.Err }

// WriteError indicates the single-row update call itself failed.
type WriteError struct {
	MissionID string
	Attempt   int
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write mission %s (attempt %d): %v", e.MissionID, e.Attempt, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// VerificationError indicates the row read back after a write did not
// hold the intended values.
type VerificationError struct {
	MissionID string
	Attempt   int
	Field     string
	Want      any
	Got       any
	Err       error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify mission %s (attempt %d): %v", e.MissionID, e.Attempt, e.Err)
	}
	return fmt.Sprintf("verify mission %s (attempt %d): %s = %v, want %v",
		e.MissionID, e.Attempt, e.Field, e.Got, e.Want)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every write attempt failed and the
// result was handed to the pending queue.
type ExhaustedError struct {
	MissionID string
	Attempts  int
	Queued    bool
	Err       error
}

func (e *ExhaustedError) Error() string {
	state := "queued for replay"
	if !e.Queued {
		state = "not queued"
	}
	return fmt.Sprintf("complete mission %s: %d attempts failed, %s: %v",
		e.MissionID, e.Attempts, state, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// LockedError indicates a catch-up attempt outside the allowed window.
type LockedError struct {
	MissionID string
	DaysSince int
}

func (e *LockedError) Error() string {
	if e.MissionID == "" {
		return fmt.Sprintf("mission locked: %d days late", e.DaysSince)
	}
	return fmt.Sprintf("mission %s locked: %d days late", e.MissionID, e.DaysSince)
}

// AlreadyCompletedError indicates the mission already reached a terminal
// status. Stored values are left untouched.
type AlreadyCompletedError struct {
	MissionID   string
	Status      Status
	StarsEarned int
	CompletedAt *time.Time
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("mission %s already %s", e.MissionID, e.Status)
}

// NotFoundError indicates no mission row exists for the id and user.
type NotFoundError struct {
	MissionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mission %s not found", e.MissionID)
}
