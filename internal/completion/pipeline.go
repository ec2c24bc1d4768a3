// Package completion turns an exercise result into a persisted, verified
// and rated mission completion.
//
// Each write is a single-row update followed by a read of the same row.
// The write only counts once every written field reads back as intended;
// anything else is retried with linear backoff. When every attempt fails
// the clamped result goes to the pending queue for later replay.
package completion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/metrics"
	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/queue"
	"github.com/abhisek/missionz/internal/rating"
	"github.com/abhisek/missionz/internal/store"
	"github.com/abhisek/missionz/internal/streak"
)

// Config controls the write protocol.
type Config struct {
	// MaxAttempts is the number of write-verify attempts (default 3).
	MaxAttempts int
	// BackoffBase is multiplied by the attempt number between attempts.
	BackoffBase time.Duration
	// ReplayRate caps queued replays per second. Zero means unlimited.
	ReplayRate float64
}

// DefaultConfig returns the standard protocol settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		ReplayRate:  2,
	}
}

// StreakRecorder applies verified completions to the streak aggregate.
type StreakRecorder interface {
	RecordCompletion(ctx context.Context, c streak.Completion) (*mission.UserStreak, error)
}

// Outcome is the result of one completion call.
type Outcome struct {
	MissionID   string
	Success     bool
	Stars       int
	AccuracyPct float64
	IsPassed    bool
	CatchUp     bool
	Attempts    int
	Queued      bool
	// Mission is the verified row after a successful write.
	Mission *mission.Mission
	// Streak is the updated aggregate, nil if the streak update failed.
	Streak *mission.UserStreak
}

// Pipeline completes missions for one user.
type Pipeline struct {
	userID   string
	cfg      Config
	missions store.MissionRepo
	queue    *queue.Queue
	cache    *cache.Cache
	streaks  StreakRecorder
	bus      *events.Bus
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	now      func() time.Time
	limiter  *rate.Limiter

	replaying atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source used for completedAt and catch-up age.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records protocol metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithBus publishes completion events.
func WithBus(b *events.Bus) Option {
	return func(p *Pipeline) { p.bus = b }
}

// WithCache invalidates c after every successful mutation.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithStreaks updates the streak after every successful completion.
func WithStreaks(s StreakRecorder) Option {
	return func(p *Pipeline) { p.streaks = s }
}

// New creates a Pipeline writing to missions and queueing into q.
func New(userID string, cfg Config, missions store.MissionRepo, q *queue.Queue, opts ...Option) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	limit := rate.Inf
	if cfg.ReplayRate > 0 {
		limit = rate.Limit(cfg.ReplayRate)
	}
	p := &Pipeline{
		userID:   userID,
		cfg:      cfg,
		missions: missions,
		queue:    q,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		limiter:  rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// request is one completion to run through the protocol.
type request struct {
	missionID string
	result    mission.Result
	catchUp   bool
	// asOf is the moment the result was produced. Catch-up age is
	// measured from its local date.
	asOf time.Time
	// replay marks a run from the pending queue.
	replay bool
}

// Complete persists a same-day completion of missionID.
//
// Invalid input fails with *mission.InputError or *mission.InvalidIDError
// before any I/O. A mission that is already terminal fails with
// *mission.AlreadyCompletedError and is left untouched. When every
// attempt fails the result is queued and *mission.ExhaustedError is
// returned together with an Outcome whose Queued field is set.
func (p *Pipeline) Complete(ctx context.Context, missionID string, r mission.Result) (Outcome, error) {
	return p.run(ctx, request{missionID: missionID, result: r, asOf: p.now()})
}

// CompleteCatchUp persists a late completion. Stars decay with the number
// of days since the mission date; past the catch-up window the mission is
// locked and *mission.LockedError is returned. A mission dated today or
// later is completed normally.
func (p *Pipeline) CompleteCatchUp(ctx context.Context, missionID string, r mission.Result) (Outcome, error) {
	return p.run(ctx, request{missionID: missionID, result: r, catchUp: true, asOf: p.now()})
}

func (p *Pipeline) run(ctx context.Context, req request) (Outcome, error) {
	res, err := mission.ValidateResult(req.result, p.log.WithField("mission", req.missionID))
	if err != nil {
		p.metrics.RecordCompletion("rejected")
		return Outcome{MissionID: req.missionID}, err
	}
	if err := mission.ValidateID(req.missionID); err != nil {
		p.metrics.RecordCompletion("rejected")
		return Outcome{MissionID: req.missionID}, err
	}
	req.result = res
	log := p.log.WithFields(logrus.Fields{"mission": req.missionID, "user": p.userID})

	current, err := p.missions.Get(ctx, p.userID, req.missionID)
	switch {
	case store.IsNotFound(err):
		p.metrics.RecordCompletion("rejected")
		return Outcome{MissionID: req.missionID}, err
	case err != nil:
		if req.catchUp {
			// Catch-up stars depend on the mission date; keep the result
			// and rate it on replay.
			log.WithError(err).Warn("mission unreadable before catch-up, queueing result")
			return p.exhausted(ctx, req, 0, err)
		}
		log.WithError(err).Warn("pre-read failed, writing anyway")
	case current.Status.Terminal():
		if req.replay {
			if out, ok := p.landed(ctx, req, current); ok {
				return out, nil
			}
		}
		return p.rejectCompleted(req.missionID, current)
	}

	rt, status, err := p.rate(req, current)
	if err != nil {
		var locked *mission.LockedError
		if errors.As(err, &locked) {
			locked.MissionID = req.missionID
			log.WithField("days_since", locked.DaysSince).Info("catch-up refused, mission locked")
		}
		p.metrics.RecordCompletion("rejected")
		return Outcome{MissionID: req.missionID}, err
	}

	want := completionOf(res, rt, status, p.now())

	var (
		lastErr error
		wrote   bool
	)
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		got, affected, err := p.attempt(ctx, req.missionID, attempt, want)
		wrote = wrote || affected > 0
		if err == nil {
			if affected == 0 {
				if !wrote && !req.replay {
					// Nothing in this call changed the row, so the values
					// were already stored by an earlier completion.
					return p.rejectCompleted(req.missionID, got)
				}
				log.WithField("attempt", attempt).Debug("write matched no pending row, earlier write verified")
			}
			return p.succeeded(ctx, req, rt, status, attempt, got), nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("completion attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return p.exhausted(ctx, req, attempt, err)
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		wait := p.cfg.BackoffBase * time.Duration(attempt)
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return p.exhausted(ctx, req, attempt, ctx.Err())
		case <-time.After(wait):
		}
	}

	return p.exhausted(ctx, req, p.cfg.MaxAttempts, lastErr)
}

// attempt performs one write followed by a verification read. It
// reports the rows the write changed even when verification fails.
func (p *Pipeline) attempt(ctx context.Context, id string, n int, want mission.Completion) (*mission.Mission, int64, error) {
	affected, err := p.missions.UpdateCompletion(ctx, p.userID, id, want)
	if err != nil {
		p.metrics.RecordWriteAttempt("write_error")
		return nil, 0, &mission.WriteError{MissionID: id, Attempt: n, Err: err}
	}

	got, err := p.missions.Get(ctx, p.userID, id)
	if err != nil {
		p.metrics.RecordWriteAttempt("read_error")
		return nil, affected, &mission.VerificationError{MissionID: id, Attempt: n, Err: err}
	}
	if m := verify(got, want); m != nil {
		p.metrics.RecordWriteAttempt("mismatch")
		p.metrics.RecordMismatch(m.field)
		return nil, affected, &mission.VerificationError{
			MissionID: id, Attempt: n, Field: m.field, Want: m.want, Got: m.got,
		}
	}

	p.metrics.RecordWriteAttempt("ok")
	return got, affected, nil
}

// rate scores a result. Catch-up stars decay with the days between the
// mission date and the local date of req.asOf.
func (p *Pipeline) rate(req request, current *mission.Mission) (rating.Rating, mission.Status, error) {
	res := req.result
	if req.catchUp && current != nil {
		if days := mission.Today(req.asOf).DaysSince(current.MissionDate); days > 0 {
			rt, err := rating.RateCatchUp(res.CorrectAnswers, res.TotalQuestions, res.TimeSpentSeconds, days)
			return rt, mission.StatusCatchUp, err
		}
	}
	rt, err := rating.Rate(res.CorrectAnswers, res.TotalQuestions, res.TimeSpentSeconds)
	return rt, mission.StatusCompleted, err
}

func completionOf(res mission.Result, rt rating.Rating, status mission.Status, at time.Time) mission.Completion {
	return mission.Completion{
		Status:             status,
		CompletedQuestions: res.TotalQuestions,
		CorrectAnswers:     res.CorrectAnswers,
		TimeSpentSeconds:   res.TimeSpentSeconds,
		StarsEarned:        rt.Stars,
		CompletedAt:        at,
		QuestionAttempts:   res.QuestionAttempts,
	}
}

// landed finishes a queued result whose write was stored but never
// verified. It reports false when the stored row holds other values.
func (p *Pipeline) landed(ctx context.Context, req request, current *mission.Mission) (Outcome, bool) {
	rt, status, err := p.rate(req, current)
	if err != nil {
		return Outcome{}, false
	}
	if verify(current, completionOf(req.result, rt, status, time.Time{})) != nil {
		return Outcome{}, false
	}
	p.log.WithFields(logrus.Fields{"mission": req.missionID, "user": p.userID}).
		Info("queued result already stored, finishing completion")
	return p.succeeded(ctx, req, rt, status, 0, current), true
}

func (p *Pipeline) rejectCompleted(id string, current *mission.Mission) (Outcome, error) {
	p.metrics.RecordCompletion("rejected")
	return Outcome{MissionID: id, Stars: current.StarsEarned}, &mission.AlreadyCompletedError{
		MissionID:   id,
		Status:      current.Status,
		StarsEarned: current.StarsEarned,
		CompletedAt: current.CompletedAt,
	}
}

func (p *Pipeline) succeeded(ctx context.Context, req request, rt rating.Rating, status mission.Status,
	attempts int, got *mission.Mission) Outcome {
	log := p.log.WithFields(logrus.Fields{"mission": req.missionID, "user": p.userID})

	if _, err := p.queue.Remove(ctx, req.missionID); err != nil {
		log.WithError(err).Warn("could not clear pending entry")
	}
	p.invalidate(ctx)

	out := Outcome{
		MissionID:   req.missionID,
		Success:     true,
		Stars:       rt.Stars,
		AccuracyPct: rt.AccuracyPct,
		IsPassed:    rt.IsPassed,
		CatchUp:     status == mission.StatusCatchUp,
		Attempts:    attempts,
		Mission:     got,
	}

	if p.streaks != nil {
		s, err := p.streaks.RecordCompletion(ctx, streak.Completion{
			Date:       got.MissionDate,
			Stars:      rt.Stars,
			CatchUp:    out.CatchUp,
			PerfectDay: p.perfectDay(ctx, got.MissionDate),
		})
		if err != nil {
			log.WithError(err).Error("streak update failed after verified completion")
		}
		out.Streak = s
	}

	outcome := "completed"
	if out.CatchUp {
		outcome = "catchup"
	}
	p.metrics.RecordCompletion(outcome)
	log.WithFields(logrus.Fields{"stars": rt.Stars, "attempts": attempts, "status": status}).Info("mission completed")

	p.bus.Publish(events.MissionCompleted{
		UserID:    p.userID,
		MissionID: req.missionID,
		Stars:     rt.Stars,
		IsPassed:  rt.IsPassed,
		CatchUp:   out.CatchUp,
		Attempts:  attempts,
	})
	return out
}

// exhausted hands the clamped result to the pending queue.
func (p *Pipeline) exhausted(ctx context.Context, req request, attempts int, cause error) (Outcome, error) {
	// Queue even when the caller's context is gone.
	qctx := context.WithoutCancel(ctx)
	log := p.log.WithFields(logrus.Fields{"mission": req.missionID, "user": p.userID, "attempts": attempts})

	queued := true
	if req.replay {
		// The entry is already queued; record the failed round.
		if err := p.bumpReplay(qctx, req.missionID); err != nil {
			log.WithError(err).Warn("could not update pending entry")
		}
	} else {
		entry := queue.Entry{
			MissionID: req.missionID,
			Results:   req.result,
			Timestamp: req.asOf,
			CatchUp:   req.catchUp,
		}
		if err := p.queue.Enqueue(qctx, entry); err != nil {
			queued = false
			log.WithError(err).Error("result lost: pending queue unavailable")
		}
	}

	if queued {
		log.WithError(cause).Error("completion attempts exhausted, result queued for replay")
	}
	p.metrics.RecordCompletion("queued")
	p.bus.Publish(events.MissionCompletionFailed{
		UserID:    p.userID,
		MissionID: req.missionID,
		Attempts:  attempts,
		Queued:    queued,
		Err:       cause,
	})

	return Outcome{MissionID: req.missionID, Attempts: attempts, Queued: queued},
		&mission.ExhaustedError{MissionID: req.missionID, Attempts: attempts, Queued: queued, Err: cause}
}

// perfectDay reports whether every mission dated d is now done.
func (p *Pipeline) perfectDay(ctx context.Context, d civil.Date) bool {
	ms, err := p.missions.ListRange(ctx, p.userID, d, d)
	if err != nil {
		p.log.WithError(err).WithField("date", d.String()).Warn("perfect day check failed")
		return false
	}
	if len(ms) == 0 {
		return false
	}
	for _, m := range ms {
		if !m.Status.Done() {
			return false
		}
	}
	return true
}

func (p *Pipeline) invalidate(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(ctx, p.userID); err != nil {
		p.log.WithError(err).Warn("cache invalidation after completion failed")
	}
}

func (p *Pipeline) bumpReplay(ctx context.Context, missionID string) error {
	entries, err := p.queue.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.MissionID == missionID {
			e.Attempts++
			return p.queue.Update(ctx, e)
		}
	}
	return fmt.Errorf("pending entry %s not found", missionID)
}
