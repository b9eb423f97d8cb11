package accuracy

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/clock"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Sampler measures prediction accuracy for a fixed set of targets. Each
// target cycles through the same steps: capture the head prediction, wait
// until the vehicle is due, poll until the observer confirms the arrival,
// record the error. Cycles that cannot be confirmed within the grace window
// record nothing.
type Sampler struct {
	fetch    FetchFunc
	store    Store
	observer Observer
	clk      clock.Clock

	Interval time.Duration // spacing between polls while watching a target
	Grace    time.Duration // how long past the prediction to keep watching
	MaxError time.Duration // larger absolute errors are discarded as noise
}

// NewSampler creates a sampler with the default cadence. A nil observer gets
// the sequence-advancement default, a nil clock the system clock.
func NewSampler(fetch FetchFunc, store Store, observer Observer, clk clock.Clock) *Sampler {
	if observer == nil {
		observer = NewSequenceObserver()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Sampler{
		fetch:    fetch,
		store:    store,
		observer: observer,
		clk:      clk,
		Interval: time.Minute,
		Grace:    10 * time.Minute,
		MaxError: 2 * time.Hour,
	}
}

// Run samples every target until the context is cancelled. Each target is
// watched by its own goroutine so a long observation on one route never
// delays another.
func (s *Sampler) Run(ctx context.Context, targets []eta.Query) {
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(q eta.Query) {
			defer wg.Done()
			s.watch(ctx, q)
		}(target)
	}
	wg.Wait()
}

func (s *Sampler) watch(ctx context.Context, q eta.Query) {
	for {
		s.cycle(ctx, q)
		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(s.Interval):
		}
	}
}

// cycle runs one capture-observe-record pass for the target.
func (s *Sampler) cycle(ctx context.Context, q eta.Query) {
	records, err := s.fetch(ctx, q)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, eta.ErrEndOfService) {
			log.Printf("Sampler: %s: prediction fetch failed: %v", q.Key(), err)
		}
		return
	}
	if len(records) == 0 {
		return
	}

	capturedAt := s.clk.Now()
	predicted := records[0].ETA

	// Sleep through most of the waiting time. Watching starts two polls
	// ahead of the predicted arrival so the observer sees the approach.
	if wait := predicted.Sub(capturedAt) - 2*s.Interval; wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(wait):
		}
	}

	prev := Poll{At: capturedAt, Records: records}
	deadline := predicted.Add(s.Grace)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(s.Interval):
		}
		now := s.clk.Now()
		if now.After(deadline) {
			log.Printf("Sampler: %s: inconclusive, no arrival observed within grace window", q.Key())
			return
		}

		curr := Poll{At: now}
		recs, err := s.fetch(ctx, q)
		switch {
		case err == nil:
			curr.Records = recs
		case errors.Is(err, eta.ErrEndOfService):
			// End of service reads as an emptied queue, so the day's last
			// departure can still be observed by absence.
		default:
			if ctx.Err() != nil {
				return
			}
			log.Printf("Sampler: %s: observation fetch failed: %v", q.Key(), err)
			continue
		}

		if observed, ok := s.observer.Arrived(prev, curr); ok {
			s.record(ctx, q, capturedAt, predicted, observed)
			return
		}
		prev = curr
	}
}

// record persists one confirmed observation.
func (s *Sampler) record(ctx context.Context, q eta.Query, capturedAt, predicted, observed time.Time) {
	diff := observed.Sub(predicted)
	if diff > s.MaxError || diff < -s.MaxError {
		log.Printf("Sampler: %s: discarding implausible %.0fs error", q.Key(), diff.Seconds())
		return
	}
	sample := Sample{
		Provider:     q.Provider,
		Route:        q.Route,
		Stop:         q.Stop,
		Direction:    q.Direction,
		PredictedAt:  capturedAt,
		Predicted:    predicted,
		Observed:     observed,
		ErrorSeconds: diff.Seconds(),
		HourBucket:   predicted.In(eta.HKT).Hour(),
		RecordedAt:   s.clk.Now(),
	}
	if err := s.store.InsertSample(ctx, sample); err != nil {
		log.Printf("Sampler: %s: failed to record sample: %v", q.Key(), err)
		return
	}
	log.Printf("Sampler: %s: recorded %.0fs error (predicted %s, observed %s)",
		q.Key(), diff.Seconds(),
		predicted.In(eta.HKT).Format(time.TimeOnly),
		observed.In(eta.HKT).Format(time.TimeOnly))
}
