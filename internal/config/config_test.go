package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markmybytes/HKETA-Server/internal/eta"
)

func TestLoadDefaults(t *testing.T) {
	// Neutralize variables the host environment may carry.
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("port = %q, expected 8080", cfg.Port)
	}
	if cfg.CacheTTLDefault != 25*time.Second {
		t.Errorf("default ttl = %v, expected 25s", cfg.CacheTTLDefault)
	}
	if cfg.SQLitePath != "data/hketa.db" {
		t.Errorf("sqlite path = %q", cfg.SQLitePath)
	}
	if cfg.RetentionDays != 90 || cfg.Retention() != 90*24*time.Hour {
		t.Errorf("retention = %d days (%v)", cfg.RetentionDays, cfg.Retention())
	}
	if len(cfg.ConfidenceProviders) != 2 ||
		cfg.ConfidenceProviders[0] != eta.KMB || cfg.ConfidenceProviders[1] != eta.MTRBus {
		t.Errorf("confidence providers = %v, expected [kmb mtr_bus]", cfg.ConfidenceProviders)
	}
	if cfg.ServeStale {
		t.Error("serve stale should default to off")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CACHE_TTL_DEFAULT", "40s")
	t.Setenv("CACHE_TTL_KMB", "10s")
	t.Setenv("CACHE_TTL_MTR_LRT", "15")
	t.Setenv("SERVE_STALE", "true")
	t.Setenv("CONFIDENCE_PROVIDERS", "kmb")
	t.Setenv("SAMPLE_INTERVAL", "30")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("port = %q, expected 9000", cfg.Port)
	}
	if cfg.TTLFor(eta.KMB) != 10*time.Second {
		t.Errorf("kmb ttl = %v, expected 10s", cfg.TTLFor(eta.KMB))
	}
	if cfg.TTLFor(eta.MTRLightRail) != 15*time.Second {
		t.Errorf("lrt ttl = %v, expected 15s (bare integers are seconds)", cfg.TTLFor(eta.MTRLightRail))
	}
	if cfg.TTLFor(eta.Citybus) != 40*time.Second {
		t.Errorf("ctb ttl = %v, expected the 40s default", cfg.TTLFor(eta.Citybus))
	}
	if !cfg.ServeStale {
		t.Error("serve stale should be on")
	}
	if len(cfg.ConfidenceProviders) != 1 || cfg.ConfidenceProviders[0] != eta.KMB {
		t.Errorf("confidence providers = %v, expected [kmb]", cfg.ConfidenceProviders)
	}
	if cfg.SampleInterval != 30*time.Second {
		t.Errorf("sample interval = %v, expected 30s", cfg.SampleInterval)
	}
}

func writeTargets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write targets file: %v", err)
	}
	return path
}

func TestLoadTargets(t *testing.T) {
	path := writeTargets(t, `
targets:
  - provider: kmb
    route: 1A
    stop: "5"
    direction: outbound
    service_type: "1"
  - provider: mtr_bus
    route: K12
    stop: K12-U020
    direction: outbound
`)

	targets, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Provider != eta.KMB || targets[0].Route != "1A" || targets[0].Stop != "5" {
		t.Errorf("first target = %+v", targets[0])
	}
	if targets[0].Direction != eta.Outbound || targets[0].ServiceType != "1" {
		t.Errorf("first target direction/service = %s/%s", targets[0].Direction, targets[0].ServiceType)
	}
	if targets[1].Provider != eta.MTRBus || targets[1].ServiceType != "" {
		t.Errorf("second target = %+v", targets[1])
	}
}

func TestLoadTargetsRejectsUnknownProvider(t *testing.T) {
	path := writeTargets(t, `
targets:
  - provider: tram
    route: "1"
    stop: "10"
    direction: outbound
`)
	if _, err := LoadTargets(path); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}

func TestLoadTargetsRejectsMissingFields(t *testing.T) {
	path := writeTargets(t, `
targets:
  - provider: kmb
    route: 1A
    direction: outbound
`)
	if _, err := LoadTargets(path); err == nil {
		t.Fatal("expected an error for a target without a stop")
	}
}

func TestLoadTargetsMissingFile(t *testing.T) {
	if _, err := LoadTargets(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
