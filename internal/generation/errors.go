package generation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// TimeoutError indicates the generation call did not answer within the
// time box. Missions may still appear later; see Service.Recheck.
type TimeoutError struct {
	Date  civil.Date
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("mission generation for %s timed out after %s", e.Date, e.After)
	}
	return fmt.Sprintf("mission generation for %s timed out", e.Date)
}

// RateLimitedError indicates the generation service refused the call
// with a rate limit (429).
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("mission generation rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("mission generation rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// QuotaExhaustedError indicates the account has no generation quota left (402).
type QuotaExhaustedError struct {
	Err error
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("mission generation quota exhausted: %v", e.Err)
}

func (e *QuotaExhaustedError) Unwrap() error { return e.Err }

// MaxMissionsError indicates the date already holds the maximum number
// of missions.
type MaxMissionsError struct {
	Date civil.Date
	Max  int
}

func (e *MaxMissionsError) Error() string {
	if e.Max > 0 {
		return fmt.Sprintf("maximum of %d missions reached for %s", e.Max, e.Date)
	}
	return fmt.Sprintf("maximum missions reached for %s", e.Date)
}

// InProgressError is returned when a generation call for the same user
// is already running.
type InProgressError struct {
	UserID string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("mission generation already in progress for user %s", e.UserID)
}

// ServiceError is any other failure reported by the generation service.
type ServiceError struct {
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("mission generation failed (HTTP %d): %s", e.Status, e.Message)
	case e.Message != "":
		return "mission generation failed: " + e.Message
	case e.Err != nil:
		return fmt.Sprintf("mission generation failed: %v", e.Err)
	}
	return "mission generation failed"
}

func (e *ServiceError) Unwrap() error { return e.Err }

// decode turns an HTTP status and service message into one of the typed
// errors above. status is 0 when the failure did not come from HTTP.
func decode(status int, msg string, retryAfter time.Duration, date civil.Date) error {
	lower := strings.ToLower(msg)
	base := errors.New(msg)
	switch {
	case status == http.StatusTooManyRequests ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return &RateLimitedError{RetryAfter: retryAfter, Err: base}
	case status == http.StatusPaymentRequired ||
		strings.Contains(lower, "quota") || strings.Contains(lower, "payment required"):
		return &QuotaExhaustedError{Err: base}
	case strings.Contains(lower, "max missions") || strings.Contains(lower, "maximum missions") ||
		strings.Contains(lower, "maximum number of missions"):
		return &MaxMissionsError{Date: date}
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout ||
		strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		return &TimeoutError{Date: date}
	}
	return &ServiceError{Status: status, Message: msg}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
