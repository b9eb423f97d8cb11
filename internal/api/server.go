// Package api exposes the aggregation engine over HTTP: per-provider ETA
// reads, the multi-provider aggregate endpoint, confidence lookups, and a
// GTFS-RT trip-updates feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"google.golang.org/protobuf/proto"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/aggregate"
	"github.com/markmybytes/HKETA-Server/internal/cache"
	"github.com/markmybytes/HKETA-Server/internal/clock"
	"github.com/markmybytes/HKETA-Server/internal/eta"
	"github.com/markmybytes/HKETA-Server/internal/gtfsrt"
)

// Pinger is the slice of the dataset store the health endpoint needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP surface over the per-provider caches, the
// aggregator, and the published confidence table.
type Server struct {
	agg        *aggregate.Aggregator
	caches     map[eta.Provider]*cache.Cache
	confidence *accuracy.Table
	db         Pinger
	clk        clock.Clock
}

// NewServer assembles the HTTP surface. db may be nil when no dataset store
// is attached; the health endpoint then reports process status only.
func NewServer(agg *aggregate.Aggregator, caches map[eta.Provider]*cache.Cache, confidence *accuracy.Table, db Pinger, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.System()
	}
	return &Server{agg: agg, caches: caches, confidence: confidence, db: db, clk: clk}
}

// Router builds the chi router with CORS configured for the given origins.
func (s *Server) Router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/health", s.handleHealth)
	r.Get("/eta/{provider}/{route}/{direction}/etas", s.handleProviderETA)
	r.Get("/eta/aggregate/{route}/{direction}", s.handleAggregate)
	r.Get("/accuracy/confidence/{provider}/{route}", s.handleConfidence)
	r.Get("/gtfs-rt/trip-updates", s.handleTripUpdates)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]any{
		"status":    "ok",
		"timestamp": s.clk.Now().UTC(),
	}
	w.Header().Set("Content-Type", "application/json")

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status["status"] = "error"
			status["database"] = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(status)
			return
		}
		status["database"] = "connected"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleProviderETA(w http.ResponseWriter, r *http.Request) {
	p, err := eta.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeRouteNotExist, err.Error())
		return
	}
	dir, err := eta.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeRouteNotExist, err.Error())
		return
	}
	stop := r.URL.Query().Get("stop")
	if stop == "" {
		writeError(w, http.StatusBadRequest, CodeRouteNotExist, "stop query parameter is required")
		return
	}
	c, ok := s.caches[p]
	if !ok {
		writeError(w, http.StatusNotFound, CodeRouteNotExist, fmt.Sprintf("provider %s is not registered", p))
		return
	}

	q := eta.Query{
		Provider:    p,
		Route:       chi.URLParam(r, "route"),
		Stop:        stop,
		Direction:   dir,
		ServiceType: r.URL.Query().Get("service_type"),
	}
	records, err := c.Get(r.Context(), q)
	if err != nil {
		writeFetchFailure(w, err)
		return
	}
	if len(records) == 0 {
		writeData(w, CodeNoEntry, []RenderedETA{})
		return
	}
	writeData(w, CodeSuccess, RenderETAs(records, r.URL.Query().Get("lang"), s.clk.Now()))
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	dir, err := eta.ParseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeRouteNotExist, err.Error())
		return
	}
	stop := r.URL.Query().Get("stop")
	if stop == "" {
		writeError(w, http.StatusBadRequest, CodeRouteNotExist, "stop query parameter is required")
		return
	}

	var providers []eta.Provider
	if raw := r.URL.Query().Get("providers"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			p, err := eta.ParseProvider(part)
			if err != nil {
				writeError(w, http.StatusNotFound, CodeRouteNotExist, err.Error())
				return
			}
			providers = append(providers, p)
		}
	}

	resp, err := s.agg.Query(r.Context(), chi.URLParam(r, "route"), stop, dir, providers)
	if err != nil {
		if errors.Is(err, eta.ErrAllProvidersUnavailable) {
			writeError(w, http.StatusServiceUnavailable, CodeAPIError, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, CodeServerError, err.Error())
		return
	}
	writeData(w, CodeSuccess, renderAggregate(resp, r.URL.Query().Get("lang"), s.clk.Now()))
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	p, err := eta.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeRouteNotExist, err.Error())
		return
	}
	stop := r.URL.Query().Get("stop")
	if stop == "" {
		writeError(w, http.StatusBadRequest, CodeRouteNotExist, "stop query parameter is required")
		return
	}

	hour := s.clk.Now().In(eta.HKT).Hour()
	if raw := r.URL.Query().Get("hour"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h < 0 || h > 23 {
			writeError(w, http.StatusBadRequest, CodeServerError, "hour must be between 0 and 23")
			return
		}
		hour = h
	}

	if s.confidence == nil {
		writeData(w, CodeNoEntry, nil)
		return
	}
	score, ok := s.confidence.Lookup(p, chi.URLParam(r, "route"), stop, hour)
	if !ok {
		writeData(w, CodeNoEntry, nil)
		return
	}
	writeData(w, CodeSuccess, score)
}

// handleTripUpdates serves whatever is currently fresh in the caches as a
// GTFS-RT feed. It never triggers upstream fetches; an idle server returns
// an empty feed.
func (s *Server) handleTripUpdates(w http.ResponseWriter, r *http.Request) {
	var records []eta.Record
	for _, c := range s.caches {
		records = append(records, c.FreshRecords()...)
	}

	body, err := proto.Marshal(gtfsrt.Export(records, s.clk.Now()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// writeFetchFailure maps a fetch error onto the envelope. Service conditions
// reported by the operator are successful exchanges; only transport-level
// failures get a non-200 status.
func writeFetchFailure(w http.ResponseWriter, err error) {
	var schemaErr *eta.UpstreamSchemaError
	var upstreamResp *eta.UpstreamErrorResponse
	switch {
	case errors.Is(err, eta.ErrEndOfService):
		writeCondition(w, CodeEndOfService, err.Error())
	case errors.Is(err, eta.ErrStationClosed):
		writeCondition(w, CodeStopClosure, err.Error())
	case errors.Is(err, eta.ErrAbnormalService):
		writeCondition(w, CodeAbnormalService, err.Error())
	case errors.As(err, &upstreamResp):
		writeCondition(w, CodeErrorResponse, upstreamResp.Message)
	case errors.Is(err, eta.ErrUpstreamTimeout), errors.Is(err, eta.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeAPIError, err.Error())
	case errors.As(err, &schemaErr):
		writeError(w, http.StatusServiceUnavailable, CodeAPIError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, CodeServerError, err.Error())
	}
}
