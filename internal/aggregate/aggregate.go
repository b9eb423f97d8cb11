// Package aggregate composes per-provider cache reads into one response,
// preserving partial failure: one provider going down degrades the response
// instead of failing it.
package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/cache"
	"github.com/markmybytes/HKETA-Server/internal/clock"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// ProviderResult is one provider's slot in an aggregate response. Either
// Records or Error is populated; Stale marks records served from an expired
// cache entry under the serve-stale policy.
type ProviderResult struct {
	Records    []eta.Record    `json:"records,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stale      bool            `json:"stale,omitempty"`
	Confidence *accuracy.Score `json:"confidence,omitempty"`
}

// Response is the composite answer for one multi-provider query.
type Response struct {
	Route       string                          `json:"route"`
	Stop        string                          `json:"stop"`
	Direction   eta.Direction                   `json:"direction"`
	Results     map[eta.Provider]ProviderResult `json:"results"`
	Degraded    bool                            `json:"degraded"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// ConfidenceSource is a non-blocking view of the latest published confidence
// scores. Lookups must never wait on recomputation.
type ConfidenceSource interface {
	Lookup(p eta.Provider, route, stop string, hour int) (accuracy.Score, bool)
}

// Options tune aggregator policy.
type Options struct {
	// ServeStale fills a failed provider slot with the last expired cache
	// entry when one exists. The slot still counts as degraded.
	ServeStale bool
}

// Aggregator fans a query out to the per-provider caches.
type Aggregator struct {
	caches     map[eta.Provider]*cache.Cache
	confidence ConfidenceSource
	clk        clock.Clock
	opts       Options
}

// New creates an aggregator over the given per-provider caches. confidence
// may be nil when no scoring pipeline runs.
func New(caches map[eta.Provider]*cache.Cache, confidence ConfidenceSource, clk clock.Clock, opts Options) *Aggregator {
	if clk == nil {
		clk = clock.System()
	}
	return &Aggregator{caches: caches, confidence: confidence, clk: clk, opts: opts}
}

// Providers lists the providers this aggregator can serve.
func (a *Aggregator) Providers() []eta.Provider {
	ids := make([]eta.Provider, 0, len(a.caches))
	for _, p := range eta.Providers() {
		if _, ok := a.caches[p]; ok {
			ids = append(ids, p)
		}
	}
	return ids
}

// Query invokes the cache of every requested provider concurrently and
// merges the results. A single provider's failure fills its slot with the
// failure reason and sets Degraded; only when every provider fails does the
// call itself fail, with ErrAllProvidersUnavailable. An empty provider list
// means every registered provider.
func (a *Aggregator) Query(ctx context.Context, route, stop string, dir eta.Direction, providers []eta.Provider) (*Response, error) {
	if len(providers) == 0 {
		providers = a.Providers()
	}

	resp := &Response{
		Route:       route,
		Stop:        stop,
		Direction:   dir,
		Results:     make(map[eta.Provider]ProviderResult, len(providers)),
		GeneratedAt: a.clk.Now(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p eta.Provider) {
			defer wg.Done()
			result := a.queryProvider(ctx, p, route, stop, dir)
			mu.Lock()
			resp.Results[p] = result
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	failures := 0
	for _, result := range resp.Results {
		if result.Error != "" {
			failures++
		}
	}
	resp.Degraded = failures > 0

	if failures == len(resp.Results) {
		return nil, fmt.Errorf("query %s/%s/%s: %w", route, stop, dir, eta.ErrAllProvidersUnavailable)
	}
	return resp, nil
}

func (a *Aggregator) queryProvider(ctx context.Context, p eta.Provider, route, stop string, dir eta.Direction) ProviderResult {
	c, ok := a.caches[p]
	if !ok {
		return ProviderResult{Error: fmt.Sprintf("unknown provider %q", p)}
	}

	q := eta.Query{Provider: p, Route: route, Stop: stop, Direction: dir}
	records, err := c.Get(ctx, q)
	if err != nil {
		result := ProviderResult{Error: err.Error()}
		if a.opts.ServeStale {
			if entry, ok := c.Stale(q); ok {
				result.Records = entry.Records
				result.Stale = true
			}
		}
		return result
	}

	result := ProviderResult{Records: records}
	result.Confidence = a.lookupConfidence(p, route, stop)
	return result
}

// lookupConfidence attaches the latest score for the current hour bucket.
// Providers outside the scoring scope simply have no score and are omitted.
func (a *Aggregator) lookupConfidence(p eta.Provider, route, stop string) *accuracy.Score {
	if a.confidence == nil {
		return nil
	}
	hour := a.clk.Now().In(eta.HKT).Hour()
	score, ok := a.confidence.Lookup(p, route, stop, hour)
	if !ok {
		return nil
	}
	return &score
}
