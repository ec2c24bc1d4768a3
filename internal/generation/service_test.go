package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/mission"
)

type genFunc func(ctx context.Context, req Request) (*Response, error)

func (f genFunc) Generate(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

type staticRefresher struct {
	missions []mission.Mission
	calls    int
}

func (r *staticRefresher) RefreshMissions(context.Context, int, time.Month) ([]mission.Mission, error) {
	r.calls++
	return r.missions, nil
}

var day = civil.Date{Year: 2024, Month: time.May, Day: 10}

func newService(t *testing.T, gen Generator, cfg Config) (*Service, *events.Recorder, *cache.Cache, *staticRefresher) {
	t.Helper()
	log, _ := test.NewNullLogger()
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec.Record)
	c := cache.New(kv.NewMemory(), time.Minute)
	ref := &staticRefresher{}
	s := NewService("u1", gen, ref, cfg,
		WithLogger(log), WithBus(bus), WithCache(c),
		WithClock(func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }))
	return s, rec, c, ref
}

func TestGenerate_Success(t *testing.T) {
	var got Request
	gen := genFunc(func(_ context.Context, req Request) (*Response, error) {
		got = req
		return &Response{Success: true, Missions: []mission.Mission{{ID: "a"}, {ID: "b"}}}, nil
	})
	s, _, c, _ := newService(t, gen, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, c.PutMissions(ctx, "u1", 2024, time.May, []mission.Mission{{ID: "old"}}))

	ms, err := s.Generate(ctx, day, true)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
	assert.Equal(t, Request{UserID: "u1", LocalDate: day, AddSingleMission: true}, got)

	_, ok := c.Missions(ctx, "u1", 2024, time.May)
	assert.False(t, ok, "cache should be invalidated after generation")
	assert.False(t, s.InProgress())
}

func TestGenerate_TimeoutIsDistinct(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	gen := genFunc(func(context.Context, Request) (*Response, error) {
		<-release
		return &Response{Success: true}, nil
	})
	s, rec, _, _ := newService(t, gen, Config{Timeout: 20 * time.Millisecond, RecheckDelay: 5 * time.Second})

	_, err := s.Generate(context.Background(), day, false)
	var te *TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, day, te.Date)

	evs := rec.OfType(events.TypeGenerationTimedOut)
	require.Len(t, evs, 1)
	ev := evs[0].(events.GenerationTimedOut)
	assert.Equal(t, day, ev.Date)
	assert.Equal(t, time.Date(2024, 5, 10, 9, 0, 5, 0, time.UTC), ev.RecheckAt)
}

func TestGenerate_DeadlineFromGenerator(t *testing.T) {
	gen := genFunc(func(ctx context.Context, _ Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s, _, _, _ := newService(t, gen, Config{Timeout: 10 * time.Millisecond})

	_, err := s.Generate(context.Background(), day, false)
	var te *TimeoutError
	assert.True(t, errors.As(err, &te), "got %v", err)
}

func TestGenerate_CallerCancelIsNotTimeout(t *testing.T) {
	gen := genFunc(func(ctx context.Context, _ Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s, rec, _, _ := newService(t, gen, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Generate(ctx, day, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.OfType(events.TypeGenerationTimedOut))
}

func TestGenerate_InProgress(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gen := genFunc(func(context.Context, Request) (*Response, error) {
		close(started)
		<-release
		return &Response{Success: true}, nil
	})
	s, _, _, _ := newService(t, gen, DefaultConfig())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background(), day, false)
		errc <- err
	}()
	<-started

	_, err := s.Generate(context.Background(), day, false)
	var ip *InProgressError
	assert.True(t, errors.As(err, &ip), "got %v", err)

	close(release)
	require.NoError(t, <-errc)
	assert.False(t, s.InProgress())
}

func TestGenerate_DecodesRefusals(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		check func(error) bool
	}{
		{"rate limit", "Rate limit exceeded", func(err error) bool { var e *RateLimitedError; return errors.As(err, &e) }},
		{"quota", "Monthly quota exhausted", func(err error) bool { var e *QuotaExhaustedError; return errors.As(err, &e) }},
		{"max missions", "Max missions reached for today", func(err error) bool { var e *MaxMissionsError; return errors.As(err, &e) }},
		{"timeout", "upstream timed out", func(err error) bool { var e *TimeoutError; return errors.As(err, &e) }},
		{"other", "boom", func(err error) bool { var e *ServiceError; return errors.As(err, &e) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := genFunc(func(context.Context, Request) (*Response, error) {
				return &Response{Success: false, Error: tt.msg}, nil
			})
			s, _, _, _ := newService(t, gen, DefaultConfig())
			_, err := s.Generate(context.Background(), day, false)
			assert.True(t, tt.check(err), "got %T %v", err, err)
		})
	}
}

func TestGenerate_WrapsUnknownErrors(t *testing.T) {
	cause := errors.New("connection refused")
	gen := genFunc(func(context.Context, Request) (*Response, error) { return nil, cause })
	s, _, _, _ := newService(t, gen, DefaultConfig())

	_, err := s.Generate(context.Background(), day, false)
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, cause)
}

func TestRecheck_FiltersDate(t *testing.T) {
	s, _, _, ref := newService(t, nil, Config{Timeout: time.Second, RecheckDelay: time.Millisecond})
	ref.missions = []mission.Mission{
		{ID: "a", MissionDate: day},
		{ID: "b", MissionDate: day.AddDays(1)},
	}

	ms, err := s.Recheck(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "a", ms[0].ID)
	assert.Equal(t, 1, ref.calls)
}

func TestRecheck_HonorsContext(t *testing.T) {
	s, _, _, ref := newService(t, nil, Config{Timeout: time.Second, RecheckDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Recheck(ctx, day)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ref.calls)
}
