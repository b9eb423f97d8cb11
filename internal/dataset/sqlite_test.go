package dataset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "hketa-test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return store
}

func testSample(recordedAt time.Time) accuracy.Sample {
	predicted := time.Date(2025, 5, 12, 8, 5, 0, 0, eta.HKT)
	return accuracy.Sample{
		Provider:     eta.KMB,
		Route:        "1A",
		Stop:         "5",
		Direction:    eta.Outbound,
		PredictedAt:  predicted.Add(-5 * time.Minute),
		Predicted:    predicted,
		Observed:     predicted.Add(2 * time.Minute),
		ErrorSeconds: 120,
		HourBucket:   8,
		RecordedAt:   recordedAt,
	}
}

func TestSQLiteSampleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sample := testSample(time.Date(2025, 5, 12, 8, 10, 0, 0, eta.HKT))
	if err := store.InsertSample(ctx, sample); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}

	samples, err := store.SamplesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("SamplesSince failed: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}

	got := samples[0]
	if got.ID == "" {
		t.Error("expected a generated sample id")
	}
	if got.Provider != eta.KMB || got.Route != "1A" || got.Stop != "5" || got.Direction != eta.Outbound {
		t.Errorf("sample key = %s/%s/%s/%s", got.Provider, got.Route, got.Stop, got.Direction)
	}
	if !got.Predicted.Equal(sample.Predicted) {
		t.Errorf("predicted = %v, expected %v", got.Predicted, sample.Predicted)
	}
	if !got.Observed.Equal(sample.Observed) {
		t.Errorf("observed = %v, expected %v", got.Observed, sample.Observed)
	}
	if got.ErrorSeconds != 120 || got.HourBucket != 8 {
		t.Errorf("error = %v, bucket = %d; expected 120, 8", got.ErrorSeconds, got.HourBucket)
	}
}

func TestSQLiteSamplesSinceFiltersByRecordedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	recent := testSample(now.Add(-time.Hour))
	stale := testSample(now.Add(-100 * 24 * time.Hour))
	for _, s := range []accuracy.Sample{recent, stale} {
		if err := store.InsertSample(ctx, s); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}
	}

	samples, err := store.SamplesSince(ctx, now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("SamplesSince failed: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample inside the window, got %d", len(samples))
	}
	if !samples[0].RecordedAt.Equal(recent.RecordedAt) {
		t.Errorf("recorded at = %v, expected %v", samples[0].RecordedAt, recent.RecordedAt)
	}
}

func TestSQLiteUpsertScores(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	updated := time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC)

	first := accuracy.Score{
		Provider: eta.KMB, Route: "1A", Stop: "5", HourBucket: 8,
		SampleCount: 4, MeanErrorSeconds: 45, StddevErrorSeconds: 15,
		Score: 0.5, UpdatedAt: updated,
	}
	if err := store.UpsertScores(ctx, []accuracy.Score{first}); err != nil {
		t.Fatalf("UpsertScores failed: %v", err)
	}

	// Same bucket again with fresher statistics, plus a new bucket.
	second := first
	second.SampleCount = 6
	second.Score = 0.6
	second.UpdatedAt = updated.Add(30 * time.Minute)
	other := accuracy.Score{
		Provider: eta.MTRBus, Route: "K12", Stop: "K12-U020", HourBucket: 17,
		SampleCount: 2, Score: 0.9, UpdatedAt: updated,
	}
	if err := store.UpsertScores(ctx, []accuracy.Score{second, other}); err != nil {
		t.Fatalf("UpsertScores failed: %v", err)
	}

	scores, err := store.Scores(ctx)
	if err != nil {
		t.Fatalf("Scores failed: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 score rows, got %d", len(scores))
	}
	if scores[0].Provider != eta.KMB || scores[0].SampleCount != 6 || scores[0].Score != 0.6 {
		t.Errorf("kmb score = %+v, expected the upserted values", scores[0])
	}
	if !scores[0].UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("updated at = %v, expected %v", scores[0].UpdatedAt, second.UpdatedAt)
	}
	if scores[1].Provider != eta.MTRBus {
		t.Errorf("second row provider = %s, expected mtr_bus", scores[1].Provider)
	}
}

func TestSQLitePurgeSamplesBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	for _, s := range []accuracy.Sample{
		testSample(now.Add(-time.Hour)),
		testSample(now.Add(-100 * 24 * time.Hour)),
	} {
		if err := store.InsertSample(ctx, s); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}
	}

	if err := store.PurgeSamplesBefore(ctx, now.Add(-90*24*time.Hour)); err != nil {
		t.Fatalf("PurgeSamplesBefore failed: %v", err)
	}

	samples, err := store.SamplesSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("SamplesSince failed: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample after purge, got %d", len(samples))
	}
	if !samples[0].RecordedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("survivor recorded at = %v, expected the recent sample", samples[0].RecordedAt)
	}
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	store, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "hketa.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLite); !ok {
		t.Fatalf("Open returned %T, expected *SQLite", store)
	}
}
