package governor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abhisek/missionz/internal/events"
	"github.com/abhisek/missionz/internal/kv"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type brokenKV struct{ kv.Store }

func (brokenKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (brokenKV) Set(context.Context, string, []byte) error   { return errors.New("disk gone") }

func newTestGovernor(t *testing.T, store kv.Store) (*Governor, *fakeClock, *events.Recorder) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)}
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec.Record)
	g := New(DefaultConfig(), store, WithClock(clock.Now), WithBus(bus))
	return g, clock, rec
}

func TestAllow_RefusesOverBudget(t *testing.T) {
	ctx := context.Background()
	g, clock, rec := newTestGovernor(t, kv.NewMemory())

	for i := 0; i < DefaultHourlyLimit; i++ {
		if _, err := g.Allow(ctx, "u1", TierFree); err != nil {
			t.Fatalf("call %d refused: %v", i+1, err)
		}
		clock.Advance(time.Second)
	}

	_, err := g.Allow(ctx, "u1", TierFree)
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitedError, got %v", err)
	}
	if rl.Used != DefaultHourlyLimit || rl.Limit != DefaultHourlyLimit {
		t.Errorf("Used/Limit = %d/%d", rl.Used, rl.Limit)
	}
	wantRetry := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)
	if !rl.RetryAt.Equal(wantRetry) {
		t.Errorf("RetryAt = %v, want %v", rl.RetryAt, wantRetry)
	}
	if n := len(rec.OfType(events.TypeRateLimited)); n != 1 {
		t.Errorf("RateLimited events = %d, want 1", n)
	}

	// Other users have their own window.
	if _, err := g.Allow(ctx, "u2", TierFree); err != nil {
		t.Errorf("u2 refused: %v", err)
	}

	// Once the oldest call leaves the window a slot frees up.
	clock.t = wantRetry.Add(time.Millisecond)
	if _, err := g.Allow(ctx, "u1", TierFree); err != nil {
		t.Errorf("expected allow after window slid: %v", err)
	}
}

func TestAllow_WarnsOncePerSession(t *testing.T) {
	ctx := context.Background()
	g, _, rec := newTestGovernor(t, kv.NewMemory())

	var warnedAt []int
	for i := 0; i < 55; i++ {
		d, err := g.Allow(ctx, "u1", TierFree)
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if d.Warn {
			warnedAt = append(warnedAt, d.Used)
		}
	}
	if len(warnedAt) != 1 || warnedAt[0] != DefaultWarnAt {
		t.Errorf("warned at %v, want [%d]", warnedAt, DefaultWarnAt)
	}
	if n := len(rec.OfType(events.TypeRateLimitWarning)); n != 1 {
		t.Errorf("RateLimitWarning events = %d, want 1", n)
	}
}

func TestAllow_PaidBypasses(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	g, _, _ := newTestGovernor(t, store)

	for i := 0; i < 100; i++ {
		d, err := g.Allow(ctx, "u1", TierPaid)
		if err != nil {
			t.Fatalf("paid call refused: %v", err)
		}
		if !d.Bypass {
			t.Fatal("expected Bypass for paid tier")
		}
	}
	used, err := g.Usage(ctx, "u1")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if used != 0 {
		t.Errorf("paid calls recorded: %d", used)
	}
}

func TestAllow_PersistsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	g1, clock, _ := newTestGovernor(t, store)
	for i := 0; i < 10; i++ {
		if _, err := g1.Allow(ctx, "u1", TierFree); err != nil {
			t.Fatal(err)
		}
	}

	g2 := New(DefaultConfig(), store, WithClock(clock.Now))
	used, err := g2.Usage(ctx, "u1")
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if used != 10 {
		t.Errorf("Usage = %d, want 10", used)
	}
}

func TestAllow_FailsOpen(t *testing.T) {
	g, _, _ := newTestGovernor(t, brokenKV{kv.NewMemory()})
	if _, err := g.Allow(context.Background(), "u1", TierFree); err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
}

func TestParseTier(t *testing.T) {
	if tier, err := ParseTier("paid"); err != nil || tier != TierPaid {
		t.Errorf("ParseTier(paid) = %v, %v", tier, err)
	}
	if _, err := ParseTier("gold"); err == nil {
		t.Error("expected error for unknown tier")
	}
}
