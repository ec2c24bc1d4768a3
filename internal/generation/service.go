package generation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/metrics"
	"github.com/abhisek/missionz/internal/mission"
)

// Config controls the time box around a generation call.
type Config struct {
	Timeout      time.Duration
	RecheckDelay time.Duration
}

// DefaultConfig returns the production time box.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		RecheckDelay: 5 * time.Second,
	}
}

// Refresher re-reads a month of missions without consulting the cache.
type Refresher interface {
	RefreshMissions(ctx context.Context, year int, month time.Month) ([]mission.Mission, error)
}

// Service runs generation calls for one user.
type Service struct {
	userID  string
	gen     Generator
	refresh Refresher
	cfg     Config

	cache   *cache.Cache
	bus     *events.Bus
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	now     func() time.Time

	running atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBus sets the event bus.
func WithBus(b *events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// WithCache sets the cache invalidated after a successful generation.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a Service.
func NewService(userID string, gen Generator, refresh Refresher, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RecheckDelay < 0 {
		cfg.RecheckDelay = 0
	}
	s := &Service{
		userID:  userID,
		gen:     gen,
		refresh: refresh,
		cfg:     cfg,
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// InProgress reports whether a generation call is running.
func (s *Service) InProgress() bool {
	return s.running.Load()
}

type reply struct {
	resp *Response
	err  error
}

// Generate asks the generator for the missions of date, or for one more
// mission when single is set. The call is abandoned after the configured
// timeout with *TimeoutError; the missions may still be created, which
// Recheck finds out.
func (s *Service) Generate(ctx context.Context, date civil.Date, single bool) ([]mission.Mission, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordGeneration("in_progress")
		return nil, &InProgressError{UserID: s.userID}
	}
	defer s.running.Store(false)

	log := s.log.WithFields(logrus.Fields{
		"user":   s.userID,
		"date":   date.String(),
		"single": single,
	})

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		resp, err := s.gen.Generate(tctx, Request{UserID: s.userID, LocalDate: date, AddSingleMission: single})
		done <- reply{resp: resp, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, s.timedOut(log, date)
	}

	if r.err != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, s.timedOut(log, date)
		}
		err := s.classify(r.err)
		log.WithError(err).Warn("mission generation failed")
		return nil, err
	}
	if r.resp == nil || !r.resp.Success {
		msg := "empty response"
		if r.resp != nil && r.resp.Error != "" {
			msg = r.resp.Error
		}
		err := decode(0, msg, 0, date)
		s.metrics.RecordGeneration(label(err))
		log.WithError(err).Warn("mission generation refused")
		return nil, err
	}

	ms := r.resp.All()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, s.userID); err != nil {
			log.WithError(err).Warn("cache not invalidated after generation")
		}
	}
	s.metrics.RecordGeneration("success")
	log.WithField("missions", len(ms)).Info("missions generated")
	return ms, nil
}

// Recheck waits the recheck delay and re-reads the missions of date,
// bypassing the cache. It is the follow-up to a *TimeoutError.
func (s *Service) Recheck(ctx context.Context, date civil.Date) ([]mission.Mission, error) {
	if s.refresh == nil {
		return nil, errors.New("recheck: no mission source")
	}
	if s.cfg.RecheckDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.RecheckDelay):
		}
	}

	ms, err := s.refresh.RefreshMissions(ctx, date.Year, date.Month)
	if err != nil {
		return nil, fmt.Errorf("recheck missions for %s: %w", date, err)
	}
	var out []mission.Mission
	for _, m := range ms {
		if m.MissionDate == date {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) timedOut(log logrus.FieldLogger, date civil.Date) error {
	recheckAt := s.now().Add(s.cfg.RecheckDelay)
	log.WithField("timeout", s.cfg.Timeout).Warn("mission generation timed out")
	s.metrics.RecordGeneration("timeout")
	s.bus.Publish(events.GenerationTimedOut{
		UserID:      s.userID,
		Date:        date,
		RecheckAt:   recheckAt,
		TimeoutSecs: int(s.cfg.Timeout / time.Second),
	})
	return &TimeoutError{Date: date, After: s.cfg.Timeout}
}

// classify keeps errors a generator already decoded and wraps anything
// else as *ServiceError.
func (s *Service) classify(err error) error {
	var (
		te *TimeoutError
		rl *RateLimitedError
		qe *QuotaExhaustedError
		mm *MaxMissionsError
		se *ServiceError
	)
	switch {
	case errors.As(err, &te), errors.As(err, &rl), errors.As(err, &qe),
		errors.As(err, &mm), errors.As(err, &se):
	default:
		err = &ServiceError{Err: err}
	}
	s.metrics.RecordGeneration(label(err))
	return err
}

func label(err error) string {
	var (
		te *TimeoutError
		rl *RateLimitedError
		qe *QuotaExhaustedError
		mm *MaxMissionsError
	)
	switch {
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &qe):
		return "quota"
	case errors.As(err, &mm):
		return "max_missions"
	}
	return "error"
}
