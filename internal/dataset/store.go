// Package dataset persists accuracy samples and confidence scores. SQLite is
// the default backend and keeps single-node deployments dependency-free; a
// DATABASE_URL switches to PostgreSQL so the sampler and the API server can
// share one dataset across processes.
package dataset

import (
	"context"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
)

// Store is the durable backend behind the accuracy pipeline.
type Store interface {
	accuracy.Store

	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open selects a backend. A non-empty databaseURL connects to PostgreSQL,
// otherwise the SQLite file at sqlitePath is used.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		return OpenPostgres(ctx, databaseURL)
	}
	return OpenSQLite(sqlitePath)
}
