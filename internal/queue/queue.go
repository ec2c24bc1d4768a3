// Package queue is the durable local queue of completion results that
// could not be persisted after every retry.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/metrics"
	"github.com/abhisek/missionz/internal/mission"
)

// Entry is one queued completion. Results carries the clamped values.
type Entry struct {
	MissionID string         `json:"missionId"`
	Results   mission.Result `json:"results"`
	Timestamp time.Time      `json:"timestamp"`
	CatchUp   bool           `json:"catchUp,omitempty"`
	// Attempts counts replays that failed transiently.
	Attempts int `json:"attempts,omitempty"`
}

// Queue stores one user's entries as a single JSON list.
type Queue struct {
	kv      kv.Store
	userID  string
	metrics *metrics.Metrics

	mu sync.Mutex
}

// New returns the queue of userID.
func New(store kv.Store, userID string, m *metrics.Metrics) *Queue {
	return &Queue{kv: store, userID: userID, metrics: m}
}

func (q *Queue) key() string {
	return kv.Key("pending", q.userID)
}

// Enqueue adds e. An existing entry for the same mission is replaced so a
// mission is queued at most once.
func (q *Queue) Enqueue(ctx context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	out := entries[:0]
	for _, x := range entries {
		if x.MissionID != e.MissionID {
			out = append(out, x)
		}
	}
	out = append(out, e)
	if err := q.save(ctx, out); err != nil {
		return err
	}
	q.metrics.RecordEnqueue(len(out))
	return nil
}

// Remove deletes the entry for missionID. It reports whether one existed.
func (q *Queue) Remove(ctx context.Context, missionID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return false, err
	}
	out := entries[:0]
	removed := false
	for _, x := range entries {
		if x.MissionID == missionID {
			removed = true
			continue
		}
		out = append(out, x)
	}
	if !removed {
		return false, nil
	}
	if err := q.save(ctx, out); err != nil {
		return false, err
	}
	q.metrics.SetQueueDepth(len(out))
	return true, nil
}

// Update replaces the stored entry for e.MissionID, if present.
func (q *Queue) Update(ctx context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].MissionID == e.MissionID {
			entries[i] = e
			return q.save(ctx, entries)
		}
	}
	return nil
}

// List returns the entries in enqueue order.
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	return len(entries), err
}

func (q *Queue) load(ctx context.Context) ([]Entry, error) {
	raw, err := q.kv.Get(ctx, q.key())
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending queue: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode pending queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) save(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		if err := q.kv.Delete(ctx, q.key()); err != nil {
			return fmt.Errorf("clear pending queue: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode pending queue: %w", err)
	}
	if err := q.kv.Set(ctx, q.key(), raw); err != nil {
		return fmt.Errorf("write pending queue: %w", err)
	}
	return nil
}
