// Package provider implements one fetch adapter per Hong Kong transit
// operator, mapping each upstream response into canonical ETA records. Every
// adapter isolates its operator's quirks: field names, time formats without
// zone info, partial-route encodings, and in-band service notices.
package provider

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Adapter fetches live ETA data from one operator.
type Adapter interface {
	ID() eta.Provider
	Fetch(ctx context.Context, q eta.Query) ([]eta.Record, error)
}

// Registry holds configured adapters keyed by provider id.
type Registry struct {
	adapters map[eta.Provider]Adapter
	order    []eta.Provider
}

// NewRegistry builds a registry from the given adapters, preserving their
// order for deterministic iteration.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[eta.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, ok := r.adapters[a.ID()]; ok {
			continue
		}
		r.adapters[a.ID()] = a
		r.order = append(r.order, a.ID())
	}
	return r
}

// Defaults returns a registry with every supported operator sharing one HTTP
// client.
func Defaults(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return NewRegistry(
		NewKMB(client),
		NewCitybus(client),
		NewNLB(client),
		NewMTRBus(client),
		NewMTRLightRail(client),
		NewMTRTrain(client),
	)
}

// Get returns the adapter for id.
func (r *Registry) Get(id eta.Provider) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs lists registered provider ids in registration order.
func (r *Registry) IDs() []eta.Provider {
	ids := make([]eta.Provider, len(r.order))
	copy(ids, r.order)
	return ids
}

// Normalized wraps an adapter's fetch with canonical-record validation,
// logging any sub-records dropped for data-quality reasons.
func Normalized(a Adapter) func(ctx context.Context, q eta.Query) ([]eta.Record, error) {
	return func(ctx context.Context, q eta.Query) ([]eta.Record, error) {
		records, err := a.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		valid, dropped := eta.Normalize(records)
		if dropped > 0 {
			log.Printf("%s: dropped %d malformed record(s) for %s", a.ID(), dropped, q.Key())
		}
		return valid, nil
	}
}

// parseHKT parses a timestamp in one of the upstream layouts, interpreting
// zone-less values as Hong Kong time.
func parseHKT(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, eta.HKT)
}
