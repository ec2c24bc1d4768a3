// Package replay drains the pending write queue on a fixed interval.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/completion"
)

// DefaultInterval is the replay period used when none is configured.
const DefaultInterval = time.Minute

// Replayer runs one pass over the pending queue.
type Replayer interface {
	ReplayPending(ctx context.Context) (completion.ReplayReport, error)
}

// Scheduler runs a Replayer periodically.
type Scheduler struct {
	scheduler gocron.Scheduler
	replayer  Replayer
	interval  time.Duration
	log       logrus.FieldLogger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	job    gocron.Job
}

// NewScheduler creates a Scheduler. It does not run until Start.
func NewScheduler(r Replayer, interval time.Duration, log logrus.FieldLogger) (*Scheduler, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		replayer:  r,
		interval:  interval,
		log:       log.WithField("component", "replay"),
	}, nil
}

// Start registers the replay job, runs it once immediately and then every
// interval until ctx is done or Stop is called. A run still in progress
// when the next one is due is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job != nil {
		return errors.New("replay scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.RunOnce(s.ctx)
		}),
		gocron.WithName("pending_replay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to register replay job: %w", err)
	}
	s.job = job

	s.scheduler.Start()
	s.log.WithField("interval", s.interval).Info("replay scheduler started")
	return nil
}

// Stop cancels a running replay and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return s.scheduler.Shutdown()
}

// RunOnce performs one replay pass and logs its report.
func (s *Scheduler) RunOnce(ctx context.Context) completion.ReplayReport {
	report, err := s.replayer.ReplayPending(ctx)
	switch {
	case errors.Is(err, completion.ErrReplayInProgress):
		s.log.Debug("replay already running, skipping")
	case errors.Is(err, context.Canceled):
		s.log.Debug("replay cancelled")
	case err != nil:
		s.log.WithError(err).Error("pending replay failed")
	case report.Total() > 0:
		s.log.WithFields(logrus.Fields{
			"replayed": report.Replayed,
			"stale":    report.Stale,
			"dropped":  report.Dropped,
			"kept":     report.Kept,
		}).Info("pending replay finished")
	}
	return report
}
