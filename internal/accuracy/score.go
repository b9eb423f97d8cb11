package accuracy

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/clock"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Score summarizes the historical prediction error for one provider, route,
// stop and hour of day. Score runs from 0 to 1, where 1 means the provider
// has been perfectly punctual for that bucket.
type Score struct {
	Provider           eta.Provider `json:"provider"`
	Route              string       `json:"route"`
	Stop               string       `json:"stop"`
	HourBucket         int          `json:"hour"`
	SampleCount        int          `json:"sample_count"`
	MeanErrorSeconds   float64      `json:"mean_error_seconds"`
	StddevErrorSeconds float64      `json:"stddev_error_seconds"`
	Score              float64      `json:"score"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

type scoreKey struct {
	provider eta.Provider
	route    string
	stop     string
	hour     int
}

// Recompute rebuilds confidence scores from a sample population. Samples are
// bucketed by provider, route, stop and local hour of day so that rush-hour
// reliability is judged separately from off-peak. Providers outside the
// eligible set are skipped; an empty eligible set admits every provider.
func Recompute(samples []Sample, eligible []eta.Provider, now time.Time) []Score {
	allowed := make(map[eta.Provider]bool, len(eligible))
	for _, p := range eligible {
		allowed[p] = true
	}

	stats := make(map[scoreKey]*welfordState)
	for _, s := range samples {
		if len(allowed) > 0 && !allowed[s.Provider] {
			continue
		}
		key := scoreKey{s.Provider, s.Route, s.Stop, s.HourBucket}
		w := stats[key]
		if w == nil {
			w = &welfordState{}
			stats[key] = w
		}
		w.update(s.ErrorSeconds)
	}

	scores := make([]Score, 0, len(stats))
	for key, w := range stats {
		scores = append(scores, Score{
			Provider:           key.provider,
			Route:              key.route,
			Stop:               key.stop,
			HourBucket:         key.hour,
			SampleCount:        w.count,
			MeanErrorSeconds:   w.mean,
			StddevErrorSeconds: w.stdDev(),
			Score:              confidence(w.mean, w.stdDev()),
			UpdatedAt:          now,
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Route != b.Route {
			return a.Route < b.Route
		}
		if a.Stop != b.Stop {
			return a.Stop < b.Stop
		}
		return a.HourBucket < b.HourBucket
	})
	return scores
}

// confidence maps an error distribution to a 0-1 score. Bias and spread count
// equally; one combined minute of error halves the score.
func confidence(mean, stddev float64) float64 {
	return 1 / (1 + (math.Abs(mean)+stddev)/60)
}

// Table is a read-mostly snapshot of the latest confidence scores. The
// serving path looks scores up from memory; a refresh swaps the whole
// snapshot in one step so lookups never block on the store.
type Table struct {
	mu     sync.RWMutex
	scores map[scoreKey]Score
}

func NewTable() *Table {
	return &Table{scores: make(map[scoreKey]Score)}
}

// Lookup returns the score for the given bucket, if one has been published.
func (t *Table) Lookup(p eta.Provider, route, stop string, hour int) (Score, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.scores[scoreKey{p, route, stop, hour}]
	return s, ok
}

// Replace swaps the published snapshot for the given scores.
func (t *Table) Replace(scores []Score) {
	next := make(map[scoreKey]Score, len(scores))
	for _, s := range scores {
		next[scoreKey{s.Provider, s.Route, s.Stop, s.HourBucket}] = s
	}
	t.mu.Lock()
	t.scores = next
	t.mu.Unlock()
}

// Len reports how many score buckets the snapshot holds.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.scores)
}

// Refresh reloads the snapshot from the store.
func (t *Table) Refresh(ctx context.Context, store Store) error {
	scores, err := store.Scores(ctx)
	if err != nil {
		return fmt.Errorf("failed to load confidence scores: %w", err)
	}
	t.Replace(scores)
	return nil
}

// Scorer periodically condenses the recorded samples into confidence scores
// and persists them through the store.
type Scorer struct {
	store    Store
	eligible []eta.Provider
	window   time.Duration
	clk      clock.Clock
}

// NewScorer creates a scorer over the given store. Only samples from the
// eligible providers recorded within the window contribute to scores.
func NewScorer(store Store, eligible []eta.Provider, window time.Duration, clk clock.Clock) *Scorer {
	if clk == nil {
		clk = clock.System()
	}
	return &Scorer{store: store, eligible: eligible, window: window, clk: clk}
}

// RunOnce recomputes all scores from the current sample population.
func (s *Scorer) RunOnce(ctx context.Context) error {
	now := s.clk.Now()
	samples, err := s.store.SamplesSince(ctx, now.Add(-s.window))
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	scores := Recompute(samples, s.eligible, now)
	if len(scores) == 0 {
		return nil
	}
	if err := s.store.UpsertScores(ctx, scores); err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}
	log.Printf("Scorer: recomputed %d score bucket(s) from %d sample(s)", len(scores), len(samples))
	return nil
}
