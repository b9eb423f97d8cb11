// Package accuracy measures how trustworthy provider predictions are. A
// background sampler compares predicted arrivals against later observed ones
// and appends the outcome to a durable store; a periodic scorer condenses the
// accumulated samples into per-route confidence scores that the serving path
// reads without ever touching the store.
package accuracy

import (
	"context"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Sample is one predicted-versus-observed arrival comparison. Samples are
// append-only; they are never updated once recorded.
type Sample struct {
	ID           string
	Provider     eta.Provider
	Route        string
	Stop         string
	Direction    eta.Direction
	PredictedAt  time.Time // when the prediction was captured
	Predicted    time.Time // arrival time the operator predicted
	Observed     time.Time // when the vehicle was judged to have arrived
	ErrorSeconds float64   // observed minus predicted, negative means early
	HourBucket   int       // local hour of the predicted arrival, 0-23
	RecordedAt   time.Time
}

// Store defines the persistence interface for accuracy data.
type Store interface {
	InsertSample(ctx context.Context, s Sample) error
	SamplesSince(ctx context.Context, since time.Time) ([]Sample, error)
	UpsertScores(ctx context.Context, scores []Score) error
	Scores(ctx context.Context) ([]Score, error)
	PurgeSamplesBefore(ctx context.Context, cutoff time.Time) error
}

// FetchFunc retrieves the current predictions for a query. The sampler goes
// through the same adapter and normalization path as the serving side, but
// issues its own fetches so sampling never competes for cache flights.
type FetchFunc func(ctx context.Context, q eta.Query) ([]eta.Record, error)
