package accuracy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

func TestWelfordMatchesDirectComputation(t *testing.T) {
	values := []float64{30, -15, 60, 0, 45, -90, 120}

	var w welfordState
	var sum float64
	for _, v := range values {
		w.update(v)
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(sq / float64(len(values)))

	if math.Abs(w.mean-mean) > 1e-9 {
		t.Errorf("mean = %v, expected %v", w.mean, mean)
	}
	if math.Abs(w.stdDev()-stddev) > 1e-9 {
		t.Errorf("stddev = %v, expected %v", w.stdDev(), stddev)
	}
}

func TestWelfordStdDevNeedsTwoObservations(t *testing.T) {
	var w welfordState
	w.update(42)
	if got := w.stdDev(); got != 0 {
		t.Errorf("stddev after one observation = %v, expected 0", got)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name         string
		mean, stddev float64
		expected     float64
	}{
		{"perfect", 0, 0, 1},
		{"one minute late", 60, 0, 0.5},
		{"one minute early", -60, 0, 0.5},
		{"unbiased but noisy", 0, 60, 0.5},
		{"biased and noisy", 90, 30, 1.0 / 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := confidence(tc.mean, tc.stddev); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("confidence(%v, %v) = %v, expected %v", tc.mean, tc.stddev, got, tc.expected)
			}
		})
	}
}

func TestRecomputeBucketsAndFiltersSamples(t *testing.T) {
	now := time.Date(2025, 5, 12, 12, 0, 0, 0, eta.HKT)
	sample := func(p eta.Provider, route, stop string, hour int, errSec float64) Sample {
		return Sample{
			Provider:     p,
			Route:        route,
			Stop:         stop,
			Direction:    eta.Outbound,
			ErrorSeconds: errSec,
			HourBucket:   hour,
			RecordedAt:   now,
		}
	}
	samples := []Sample{
		sample(eta.KMB, "1A", "5", 8, 60),
		sample(eta.KMB, "1A", "5", 8, 120),
		sample(eta.KMB, "1A", "5", 9, -30),
		sample(eta.MTRBus, "K12", "K12-U020", 8, 0),
		sample(eta.Citybus, "107", "1001", 8, 45), // not eligible
	}

	scores := Recompute(samples, []eta.Provider{eta.KMB, eta.MTRBus}, now)
	if len(scores) != 3 {
		t.Fatalf("expected 3 score buckets, got %d", len(scores))
	}

	rush := scores[0]
	if rush.Provider != eta.KMB || rush.Route != "1A" || rush.HourBucket != 8 {
		t.Fatalf("unexpected first bucket: %+v", rush)
	}
	if rush.SampleCount != 2 {
		t.Errorf("sample count = %d, expected 2", rush.SampleCount)
	}
	if math.Abs(rush.MeanErrorSeconds-90) > 1e-9 {
		t.Errorf("mean error = %v, expected 90", rush.MeanErrorSeconds)
	}
	if math.Abs(rush.StddevErrorSeconds-30) > 1e-9 {
		t.Errorf("stddev = %v, expected 30", rush.StddevErrorSeconds)
	}
	if math.Abs(rush.Score-1.0/3) > 1e-9 {
		t.Errorf("score = %v, expected 1/3", rush.Score)
	}
	if !rush.UpdatedAt.Equal(now) {
		t.Errorf("updated at = %v, expected %v", rush.UpdatedAt, now)
	}

	if scores[1].HourBucket != 9 || scores[1].SampleCount != 1 {
		t.Errorf("unexpected second bucket: %+v", scores[1])
	}
	if scores[2].Provider != eta.MTRBus || scores[2].Score != 1 {
		t.Errorf("unexpected third bucket: %+v", scores[2])
	}
	for _, s := range scores {
		if s.Provider == eta.Citybus {
			t.Errorf("ineligible provider was scored: %+v", s)
		}
	}
}

func TestRecomputeEmptyEligibleAdmitsAll(t *testing.T) {
	now := time.Now()
	samples := []Sample{{Provider: eta.Citybus, Route: "107", Stop: "1001", HourBucket: 8, ErrorSeconds: 45}}
	scores := Recompute(samples, nil, now)
	if len(scores) != 1 || scores[0].Provider != eta.Citybus {
		t.Fatalf("expected one citybus bucket, got %+v", scores)
	}
}

func TestTableLookupAndReplace(t *testing.T) {
	table := NewTable()
	if _, ok := table.Lookup(eta.KMB, "1A", "5", 8); ok {
		t.Fatal("lookup on empty table should miss")
	}

	table.Replace([]Score{
		{Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 8, Score: 0.75},
		{Provider: eta.MTRBus, Route: "K12", Stop: "K12-U020", HourBucket: 17, Score: 0.5},
	})
	if table.Len() != 2 {
		t.Fatalf("table length = %d, expected 2", table.Len())
	}
	got, ok := table.Lookup(eta.KMB, "1A", "5", 8)
	if !ok || got.Score != 0.75 {
		t.Errorf("Lookup = %+v, %v, expected score 0.75", got, ok)
	}
	if _, ok := table.Lookup(eta.KMB, "1A", "5", 9); ok {
		t.Error("lookup for an unscored hour should miss")
	}

	table.Replace([]Score{{Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 9, Score: 0.9}})
	if _, ok := table.Lookup(eta.KMB, "1A", "5", 8); ok {
		t.Error("replaced snapshot should drop previous buckets")
	}
}

func TestTableRefreshLoadsFromStore(t *testing.T) {
	store := &memStore{scores: []Score{
		{Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 8, Score: 0.6},
	}}
	table := NewTable()
	if err := table.Refresh(context.Background(), store); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got, ok := table.Lookup(eta.KMB, "1A", "5", 8); !ok || got.Score != 0.6 {
		t.Errorf("Lookup after refresh = %+v, %v", got, ok)
	}
}

func TestScorerRunOncePersistsScores(t *testing.T) {
	now := time.Now()
	store := &memStore{samples: []Sample{
		{Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 8, ErrorSeconds: 60, RecordedAt: now.Add(-time.Hour)},
		{Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 8, ErrorSeconds: 120, RecordedAt: now.Add(-2 * time.Hour)},
		// Outside the retention window, must not contribute.
		{Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 8, ErrorSeconds: 9000, RecordedAt: now.Add(-100 * 24 * time.Hour)},
	}}

	scorer := NewScorer(store, []eta.Provider{eta.KMB, eta.MTRBus}, 90*24*time.Hour, nil)
	if err := scorer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	scores, err := store.Scores(context.Background())
	if err != nil {
		t.Fatalf("Scores failed: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected 1 score bucket, got %d", len(scores))
	}
	if scores[0].SampleCount != 2 {
		t.Errorf("sample count = %d, expected 2 (stale sample must be excluded)", scores[0].SampleCount)
	}
	if math.Abs(scores[0].MeanErrorSeconds-90) > 1e-9 {
		t.Errorf("mean error = %v, expected 90", scores[0].MeanErrorSeconds)
	}
}
