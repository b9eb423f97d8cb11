package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/config"
	"github.com/markmybytes/HKETA-Server/internal/dataset"
	"github.com/markmybytes/HKETA-Server/internal/eta"
	"github.com/markmybytes/HKETA-Server/internal/provider"
)

func main() {
	log.Println("Starting accuracy sampler...")

	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	log.Printf("Config loaded: sample_interval=%v, retention=%v", cfg.SampleInterval, cfg.Retention())

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Initialize Dataset Store
	// ═══════════════════════════════════════════════════════
	store, err := dataset.Open(context.Background(), cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open dataset store: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure dataset schema: %v", err)
	}
	log.Println("Dataset store initialized")

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Load Sampling Targets
	// ═══════════════════════════════════════════════════════
	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		log.Fatalf("Failed to load sampling targets: %v", err)
	}
	if len(targets) == 0 {
		log.Fatalf("No sampling targets in %s", cfg.TargetsFile)
	}
	log.Printf("Loaded %d sampling target(s) from %s", len(targets), cfg.TargetsFile)

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Initialize Sampler and Scorer
	// ═══════════════════════════════════════════════════════
	registry := provider.Defaults(nil)
	fetchers := make(map[eta.Provider]accuracy.FetchFunc)
	for _, id := range registry.IDs() {
		adapter, _ := registry.Get(id)
		fetchers[id] = provider.Normalized(adapter)
	}
	// The sampler fetches directly from the adapters, not through the
	// serving caches, so sampling never warms or evicts serving entries.
	fetch := func(ctx context.Context, q eta.Query) ([]eta.Record, error) {
		f, ok := fetchers[q.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", q.Provider)
		}
		return f(ctx, q)
	}

	sampler := accuracy.NewSampler(fetch, store, nil, nil)
	sampler.Interval = cfg.SampleInterval
	sampler.Grace = cfg.ObserveGrace

	scorer := accuracy.NewScorer(store, cfg.ConfidenceProviders, cfg.Retention(), nil)

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Start Background Loops
	// ═══════════════════════════════════════════════════════
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		sampler.Run(ctx, targets)
	}()

	// Initial recompute so a fresh deploy publishes scores immediately.
	if err := scorer.RunOnce(ctx); err != nil {
		log.Printf("Score recompute error: %v", err)
	}

	go func() {
		ticker := time.NewTicker(cfg.ScoreInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := scorer.RunOnce(ctx); err != nil {
					log.Printf("Score recompute error: %v", err)
				}
			case <-ctx.Done():
				log.Println("Score loop stopped")
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.Retention())
				if err := store.PurgeSamplesBefore(ctx, cutoff); err != nil {
					log.Printf("Cleanup error: %v", err)
				}
			case <-ctx.Done():
				log.Println("Cleanup loop stopped")
				return
			}
		}
	}()

	log.Printf("Sampler running (%d target(s), poll every %v)", len(targets), cfg.SampleInterval)

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()

	select {
	case <-samplerDone:
	case <-time.After(2 * time.Second):
	}
	log.Println("Goodbye!")
}
