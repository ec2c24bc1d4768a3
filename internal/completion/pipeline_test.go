package completion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/missionz/internal/cache"
	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/fetch"
	"github.com/abhisek/missionz/internal/governor"
	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/queue"
	"github.com/abhisek/missionz/internal/streak"
)

// fakeRepo is an in-memory mission table with injectable faults.
type fakeRepo struct {
	mu   sync.Mutex
	rows map[string]*mission.Mission

	writes     int
	listCalls  int
	dropWrites int   // writes that report success but are not persisted
	failWrites int   // writes that return an error
	getErr     error // returned by the next Get, then cleared
	// failReads is the number of Gets after the first write that fail.
	failReads int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]*mission.Mission)}
}

func (r *fakeRepo) add(user string, date civil.Date) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.rows[id] = &mission.Mission{
		ID: id, UserID: user, MissionDate: date, SkillName: "addition",
		Difficulty: mission.DifficultyEasy, MissionOption: len(r.rows) + 1,
		Status: mission.StatusPending, TotalQuestions: 10, CanRetry: true,
	}
	return id
}

func (r *fakeRepo) row(id string) mission.Mission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.rows[id]
}

func (r *fakeRepo) Get(_ context.Context, userID, id string) (*mission.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.getErr; err != nil {
		r.getErr = nil
		return nil, err
	}
	if r.failReads > 0 && r.writes > 0 {
		r.failReads--
		return nil, errors.New("read timeout")
	}
	m, ok := r.rows[id]
	if !ok || m.UserID != userID {
		return nil, &mission.NotFoundError{MissionID: id}
	}
	cp := *m
	return &cp, nil
}

func (r *fakeRepo) ListRange(_ context.Context, userID string, from, to civil.Date) ([]mission.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []mission.Mission
	for _, m := range r.rows {
		if m.UserID == userID && !m.MissionDate.Before(from) && !m.MissionDate.After(to) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeRepo) Insert(_ context.Context, m *mission.Mission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateCompletion(_ context.Context, userID, id string, c mission.Completion) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if r.failWrites > 0 {
		r.failWrites--
		return 0, errors.New("connection reset")
	}
	if r.dropWrites > 0 {
		r.dropWrites--
		return 1, nil
	}
	m, ok := r.rows[id]
	if !ok || m.UserID != userID || m.Status != mission.StatusPending {
		return 0, nil
	}
	at := c.CompletedAt
	m.Status = c.Status
	m.CompletedQuestions = c.CompletedQuestions
	m.CorrectAnswers = c.CorrectAnswers
	m.TimeSpentSeconds = c.TimeSpentSeconds
	m.StarsEarned = c.StarsEarned
	m.CompletedAt = &at
	m.QuestionAttempts = c.QuestionAttempts
	return 1, nil
}

func (r *fakeRepo) SetStatus(_ context.Context, userID, id string, status mission.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.UserID != userID || m.Status != mission.StatusPending {
		return 0, nil
	}
	m.Status = status
	return 1, nil
}

type fakeStreaks struct {
	got []streak.Completion
}

func (f *fakeStreaks) RecordCompletion(_ context.Context, c streak.Completion) (*mission.UserStreak, error) {
	f.got = append(f.got, c)
	return &mission.UserStreak{CurrentStreak: len(f.got), LongestStreak: len(f.got)}, nil
}

var today = time.Date(2024, 5, 3, 10, 0, 0, 0, time.Local)

func date(day int) civil.Date {
	return civil.Date{Year: 2024, Month: time.May, Day: day}
}

type harness struct {
	p       *Pipeline
	repo    *fakeRepo
	queue   *queue.Queue
	kv      *kv.Memory
	cache   *cache.Cache
	streaks *fakeStreaks
	events  *events.Recorder
	hook    *logtest.Hook
	now     *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	now := today
	h := &harness{
		repo:    newFakeRepo(),
		kv:      kv.NewMemory(),
		streaks: &fakeStreaks{},
		events:  &events.Recorder{},
		hook:    hook,
		now:     &now,
	}
	clock := func() time.Time { return *h.now }
	h.queue = queue.New(h.kv, "u1", nil)
	h.cache = cache.New(h.kv, time.Minute, cache.WithClock(clock))
	bus := events.NewBus()
	bus.Subscribe(h.events.Record)

	cfg := DefaultConfig()
	cfg.BackoffBase = 0
	cfg.ReplayRate = 0
	h.p = New("u1", cfg, h.repo, h.queue,
		WithClock(clock),
		WithLogger(log),
		WithBus(bus),
		WithCache(h.cache),
		WithStreaks(h.streaks),
	)
	return h
}

func result(correct, total, secs int) mission.Result {
	return mission.Result{TotalQuestions: total, CorrectAnswers: correct, TimeSpentSeconds: secs}
}

func TestComplete_Success(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))

	out, err := h.p.Complete(context.Background(), id, result(9, 10, 300))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Stars)
	assert.True(t, out.IsPassed)
	assert.Equal(t, 90.0, out.AccuracyPct)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.CatchUp)

	row := h.repo.row(id)
	assert.Equal(t, mission.StatusCompleted, row.Status)
	assert.Equal(t, 10, row.CompletedQuestions)
	assert.Equal(t, 9, row.CorrectAnswers)
	assert.Equal(t, 3, row.StarsEarned)
	require.NotNil(t, row.CompletedAt)
	assert.True(t, row.CompletedAt.Equal(today))

	require.Len(t, h.streaks.got, 1)
	assert.Equal(t, streak.Completion{Date: date(3), Stars: 3, PerfectDay: true}, h.streaks.got[0])
	assert.NotNil(t, out.Streak)
	assert.Len(t, h.events.OfType(events.TypeMissionCompleted), 1)
}

func TestComplete_BoundaryScenario(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))

	out, err := h.p.Complete(context.Background(), id, result(7, 10, 50))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Stars)
	assert.False(t, out.IsPassed)
	assert.Equal(t, 70.0, out.AccuracyPct)
}

func TestComplete_VerificationFailsTwiceThenSucceeds(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))
	h.repo.dropWrites = 2

	out, err := h.p.Complete(context.Background(), id, result(9, 10, 300))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, h.repo.writes)

	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	warnings := 0
	for _, e := range h.hook.AllEntries() {
		if e.Message == "completion attempt failed" {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestComplete_WriteErrorIsRetried(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))
	h.repo.failWrites = 1

	out, err := h.p.Complete(context.Background(), id, result(8, 10, 60))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, out.Stars)
}

func TestComplete_ExhaustionQueuesClampedResult(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))
	h.repo.dropWrites = 100

	out, err := h.p.Complete(context.Background(), id, result(15, 10, 200))

	var ex *mission.ExhaustedError
	require.True(t, errors.As(err, &ex), "got %v", err)
	assert.True(t, ex.Queued)
	assert.Equal(t, 3, ex.Attempts)
	var ver *mission.VerificationError
	assert.True(t, errors.As(err, &ver), "cause should be a verification error")

	assert.False(t, out.Success)
	assert.Zero(t, out.Stars)
	assert.True(t, out.Queued)
	assert.Equal(t, 3, h.repo.writes)

	entries, err := h.queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].MissionID)
	assert.Equal(t, 10, entries[0].Results.CorrectAnswers, "queued result must be clamped")
	assert.Equal(t, 10, entries[0].Results.TotalQuestions)
	assert.Equal(t, 200, entries[0].Results.TimeSpentSeconds)
	assert.True(t, entries[0].Timestamp.Equal(today))

	assert.Len(t, h.events.OfType(events.TypeMissionCompletionFailed), 1)
	assert.Empty(t, h.streaks.got)
	assert.Equal(t, mission.StatusPending, h.repo.row(id).Status)
}

func TestComplete_AlreadyCompletedIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.repo.add("u1", date(3))

	_, err := h.p.Complete(ctx, id, result(9, 10, 300))
	require.NoError(t, err)

	out, err := h.p.Complete(ctx, id, result(9, 10, 300))
	var done *mission.AlreadyCompletedError
	require.True(t, errors.As(err, &done), "got %v", err)
	assert.Equal(t, mission.StatusCompleted, done.Status)
	assert.Equal(t, 3, done.StarsEarned)
	assert.False(t, out.Success)

	// A worse retry must not touch the stored stars either.
	_, err = h.p.Complete(ctx, id, result(1, 10, 900))
	require.Error(t, err)

	assert.Equal(t, 1, h.repo.writes)
	assert.Equal(t, 3, h.repo.row(id).StarsEarned)
	assert.Len(t, h.streaks.got, 1)
}

func TestComplete_InvalidInputNeverWrites(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))

	tests := []struct {
		name string
		id   string
		r    mission.Result
		want any
	}{
		{"zero total", id, result(0, 0, 10), &mission.InputError{}},
		{"negative time", id, result(3, 10, -1), &mission.InputError{}},
		{"bad id", "not-a-mission", result(3, 10, 10), &mission.InvalidIDError{}},
		{"unknown mission", uuid.NewString(), result(3, 10, 10), &mission.NotFoundError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.p.Complete(context.Background(), tt.id, tt.r)
			require.Error(t, err)
			switch tt.want.(type) {
			case *mission.InputError:
				var e *mission.InputError
				assert.True(t, errors.As(err, &e), "got %v", err)
			case *mission.InvalidIDError:
				var e *mission.InvalidIDError
				assert.True(t, errors.As(err, &e), "got %v", err)
			case *mission.NotFoundError:
				var e *mission.NotFoundError
				assert.True(t, errors.As(err, &e), "got %v", err)
			}
		})
	}
	assert.Zero(t, h.repo.writes)
	n, _ := h.queue.Len(context.Background())
	assert.Zero(t, n)
}

func TestComplete_PreReadFailureStillWrites(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))
	h.repo.getErr = errors.New("timeout")

	out, err := h.p.Complete(context.Background(), id, result(9, 10, 100))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, h.repo.writes)
}

func TestComplete_PreReadFailureOnCompletedMissionIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.repo.add("u1", date(3))

	_, err := h.p.Complete(ctx, id, result(9, 10, 300))
	require.NoError(t, err)

	h.repo.getErr = errors.New("timeout")
	out, err := h.p.Complete(ctx, id, result(9, 10, 300))
	var done *mission.AlreadyCompletedError
	require.True(t, errors.As(err, &done), "got %v", err)
	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Stars)

	assert.Len(t, h.streaks.got, 1, "streak must be credited once")
	assert.Len(t, h.events.OfType(events.TypeMissionCompleted), 1)
}

func TestComplete_UnverifiedWriteIsConfirmedByLaterAttempt(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))
	h.repo.failReads = 1

	out, err := h.p.Complete(context.Background(), id, result(9, 10, 300))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Len(t, h.streaks.got, 1)
}

func TestCompleteCatchUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	twoDays := h.repo.add("u1", date(1))
	out, err := h.p.CompleteCatchUp(ctx, twoDays, result(10, 10, 100))
	require.NoError(t, err)
	assert.True(t, out.CatchUp)
	assert.Equal(t, 1, out.Stars)
	row := h.repo.row(twoDays)
	assert.Equal(t, mission.StatusCatchUp, row.Status)
	assert.Equal(t, 1, row.StarsEarned)
	require.Len(t, h.streaks.got, 1)
	assert.True(t, h.streaks.got[0].CatchUp)

	*h.now = time.Date(2024, 5, 9, 8, 0, 0, 0, time.Local)
	locked := h.repo.add("u1", date(1))
	_, err = h.p.CompleteCatchUp(ctx, locked, result(10, 10, 100))
	var le *mission.LockedError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, 8, le.DaysSince)
	assert.Equal(t, locked, le.MissionID)
	assert.Equal(t, 1, h.repo.writes, "locked mission must not be written")
}

func TestCompleteCatchUp_SameDayCompletesNormally(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))

	out, err := h.p.CompleteCatchUp(context.Background(), id, result(9, 10, 300))
	require.NoError(t, err)
	assert.False(t, out.CatchUp)
	assert.Equal(t, 3, out.Stars)
	assert.Equal(t, mission.StatusCompleted, h.repo.row(id).Status)
}

func TestCompleteCatchUp_UnreadableMissionIsQueued(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(1))
	h.repo.getErr = errors.New("timeout")

	out, err := h.p.CompleteCatchUp(context.Background(), id, result(10, 10, 100))
	var ex *mission.ExhaustedError
	require.True(t, errors.As(err, &ex), "got %v", err)
	assert.True(t, out.Queued)

	entries, err := h.queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].CatchUp)
	assert.Zero(t, h.repo.writes)
}

func TestComplete_PerfectDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.repo.add("u1", date(3))
	b := h.repo.add("u1", date(3))

	_, err := h.p.Complete(ctx, a, result(9, 10, 100))
	require.NoError(t, err)
	_, err = h.p.Complete(ctx, b, result(9, 10, 100))
	require.NoError(t, err)

	require.Len(t, h.streaks.got, 2)
	assert.False(t, h.streaks.got[0].PerfectDay)
	assert.True(t, h.streaks.got[1].PerfectDay)
}

func TestComplete_SuccessClearsPendingEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.repo.add("u1", date(3))
	h.repo.dropWrites = 3

	_, err := h.p.Complete(ctx, id, result(9, 10, 100))
	require.Error(t, err)

	out, err := h.p.Complete(ctx, id, result(9, 10, 100))
	require.NoError(t, err)
	assert.True(t, out.Success)

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestComplete_InvalidatesFreeTierCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.repo.add("u1", date(3))

	gov := governor.New(governor.DefaultConfig(), h.kv)
	f := fetch.New("u1", governor.TierFree, h.repo, nil, h.cache, gov, nil)

	_, err := f.Missions(ctx, 2024, time.May)
	require.NoError(t, err)
	_, err = f.Missions(ctx, 2024, time.May)
	require.NoError(t, err)
	base := h.repo.listCalls
	require.Equal(t, 1, base)

	_, err = h.p.Complete(ctx, id, result(9, 10, 100))
	require.NoError(t, err)
	afterComplete := h.repo.listCalls

	ms, err := f.Missions(ctx, 2024, time.May)
	require.NoError(t, err)
	assert.Equal(t, afterComplete+1, h.repo.listCalls, "fetch after completion must be remote")
	require.Len(t, ms, 1)
	assert.Equal(t, mission.StatusCompleted, ms[0].Status)
}

func TestComplete_CancelledContextStillQueues(t *testing.T) {
	h := newHarness(t)
	id := h.repo.add("u1", date(3))
	h.repo.dropWrites = 100
	h.p.cfg.BackoffBase = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	out, err := h.p.Complete(ctx, id, result(5, 10, 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, out.Queued)
	assert.Equal(t, 1, out.Attempts)

	n, err := h.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
