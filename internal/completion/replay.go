package completion

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/mission"
)

// ErrReplayInProgress is returned when ReplayPending is called while a
// replay is already running.
var ErrReplayInProgress = errors.New("pending replay already in progress")

// ReplayReport summarises one pass over the pending queue.
type ReplayReport struct {
	Replayed int
	Stale    int
	Dropped  int
	Kept     int
}

// Total returns the number of entries looked at.
func (r ReplayReport) Total() int {
	return r.Replayed + r.Stale + r.Dropped + r.Kept
}

// ReplayPending runs every queued result through the write protocol
// again, paced by the replay rate limit. Persisted and already completed
// entries leave the queue; entries that can never succeed are dropped
// and reported; transient failures stay queued.
func (p *Pipeline) ReplayPending(ctx context.Context) (ReplayReport, error) {
	var report ReplayReport
	if !p.replaying.CompareAndSwap(false, true) {
		return report, ErrReplayInProgress
	}
	defer p.replaying.Store(false)

	entries, err := p.queue.List(ctx)
	if err != nil {
		return report, err
	}
	defer func() {
		if n, err := p.queue.Len(context.WithoutCancel(ctx)); err == nil {
			p.metrics.SetQueueDepth(n)
		}
	}()

	for _, e := range entries {
		if err := p.limiter.Wait(ctx); err != nil {
			return report, err
		}
		log := p.log.WithFields(logrus.Fields{"mission": e.MissionID, "user": p.userID, "queued_at": e.Timestamp})

		out, err := p.run(ctx, request{
			missionID: e.MissionID,
			result:    e.Results,
			catchUp:   e.CatchUp,
			asOf:      e.Timestamp,
			replay:    true,
		})

		var (
			already *mission.AlreadyCompletedError
			exhaust *mission.ExhaustedError
		)
		switch {
		case err == nil:
			report.Replayed++
			p.metrics.RecordReplay("replayed")
			log.WithField("stars", out.Stars).Info("pending completion replayed")
			p.bus.Publish(events.PendingReplayed{UserID: p.userID, MissionID: e.MissionID, Stars: out.Stars})

		case errors.As(err, &already):
			report.Stale++
			p.metrics.RecordReplay("stale")
			log.WithField("status", already.Status).Info("pending entry already completed, removing")
			p.removeEntry(ctx, e.MissionID, log)

		case errors.As(err, &exhaust):
			report.Kept++
			p.metrics.RecordReplay("kept")
			if ctx.Err() != nil {
				return report, ctx.Err()
			}

		default:
			report.Dropped++
			p.metrics.RecordReplay("dropped")
			log.WithError(err).Error("pending completion can never be persisted, dropping")
			p.removeEntry(ctx, e.MissionID, log)
			p.bus.Publish(events.ReplayDropped{UserID: p.userID, MissionID: e.MissionID, Err: err})
		}
	}
	return report, nil
}

// Replaying reports whether a replay is running.
func (p *Pipeline) Replaying() bool {
	return p.replaying.Load()
}

func (p *Pipeline) removeEntry(ctx context.Context, missionID string, log logrus.FieldLogger) {
	if _, err := p.queue.Remove(ctx, missionID); err != nil {
		log.WithError(err).Warn("could not remove pending entry")
	}
}
