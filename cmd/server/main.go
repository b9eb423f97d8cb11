package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/aggregate"
	"github.com/markmybytes/HKETA-Server/internal/api"
	"github.com/markmybytes/HKETA-Server/internal/cache"
	"github.com/markmybytes/HKETA-Server/internal/clock"
	"github.com/markmybytes/HKETA-Server/internal/config"
	"github.com/markmybytes/HKETA-Server/internal/dataset"
	"github.com/markmybytes/HKETA-Server/internal/eta"
	"github.com/markmybytes/HKETA-Server/internal/provider"
)

func main() {
	// Load base .env first, then .env.local (which overrides for local
	// development).
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	log.Printf("Config loaded: cache_ttl=%v, serve_stale=%v", cfg.CacheTTLDefault, cfg.ServeStale)

	store, err := dataset.Open(context.Background(), cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open dataset store: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure dataset schema: %v", err)
	}

	clk := clock.System()
	registry := provider.Defaults(nil)

	// One request-collapsing cache per operator, each with its own TTL.
	caches := make(map[eta.Provider]*cache.Cache)
	for _, id := range registry.IDs() {
		adapter, _ := registry.Get(id)
		caches[id] = cache.New(provider.Normalized(adapter), cfg.TTLFor(id), clk)
	}

	table := accuracy.NewTable()
	refreshScores := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := table.Refresh(ctx, store); err != nil {
			log.Printf("Warning: refreshing confidence scores: %v", err)
		}
	}
	refreshScores()
	log.Printf("Confidence table loaded: %d bucket(s)", table.Len())

	// Keep the published table in step with the sampler's recomputations.
	go func() {
		ticker := time.NewTicker(cfg.ScoreInterval)
		defer ticker.Stop()
		for range ticker.C {
			refreshScores()
		}
	}()

	agg := aggregate.New(caches, table, clk, aggregate.Options{ServeStale: cfg.ServeStale})
	srv := api.NewServer(agg, caches, table, store, clk)

	log.Printf("API server starting on :%s", cfg.Port)
	log.Println("ETA endpoints:")
	log.Println("  GET /eta/{provider}/{route}/{direction}/etas")
	log.Println("  GET /eta/aggregate/{route}/{direction}")
	log.Println("Accuracy:")
	log.Println("  GET /accuracy/confidence/{provider}/{route}")
	log.Println("Feeds:")
	log.Println("  GET /gtfs-rt/trip-updates")
	log.Println("Health:")
	log.Println("  GET /health (with database check)")

	if err := http.ListenAndServe(":"+cfg.Port, srv.Router(cfg.CORSOrigins)); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
