package dataset

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// schemaSQL is the single source of truth for the database schema, shared
// with the PostgreSQL backend apart from dialect differences.
//
//go:embed schema.sql
var schemaSQL string

// SQLite stores the dataset in a single local file. SQLite supports one
// writer at a time, so all writes are serialized behind a mutex on top of a
// single pooled connection.
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex
}

// OpenSQLite opens the database file with WAL mode enabled, creating the
// parent directory on first run.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	log.Printf("Dataset: connected to SQLite database %s", path)
	return &SQLite{conn: conn}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) InsertSample(ctx context.Context, sample accuracy.Sample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO accuracy_samples (
			sample_id, provider, route, stop, direction,
			predicted_at_utc, predicted_utc, observed_utc,
			error_seconds, hour_bucket, recorded_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, string(sample.Provider), sample.Route, sample.Stop, string(sample.Direction),
		utcString(sample.PredictedAt), utcString(sample.Predicted), utcString(sample.Observed),
		sample.ErrorSeconds, sample.HourBucket, utcString(sample.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

func (s *SQLite) SamplesSince(ctx context.Context, since time.Time) ([]accuracy.Sample, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT sample_id, provider, route, stop, direction,
			predicted_at_utc, predicted_utc, observed_utc,
			error_seconds, hour_bucket, recorded_at_utc
		FROM accuracy_samples
		WHERE recorded_at_utc >= ?
		ORDER BY recorded_at_utc`,
		utcString(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []accuracy.Sample
	for rows.Next() {
		var (
			sample              accuracy.Sample
			provider, direction string
			predictedAt         string
			predicted, observed string
			recordedAt          string
		)
		err := rows.Scan(
			&sample.ID, &provider, &sample.Route, &sample.Stop, &direction,
			&predictedAt, &predicted, &observed,
			&sample.ErrorSeconds, &sample.HourBucket, &recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		sample.Provider = eta.Provider(provider)
		sample.Direction = eta.Direction(direction)
		if sample.PredictedAt, err = parseUTC(predictedAt); err != nil {
			return nil, err
		}
		if sample.Predicted, err = parseUTC(predicted); err != nil {
			return nil, err
		}
		if sample.Observed, err = parseUTC(observed); err != nil {
			return nil, err
		}
		if sample.RecordedAt, err = parseUTC(recordedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows: %w", err)
	}
	return samples, nil
}

func (s *SQLite) UpsertScores(ctx context.Context, scores []accuracy.Score) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO confidence_scores (
			provider, route, stop, hour_bucket,
			sample_count, mean_error_seconds, stddev_error_seconds, score, updated_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, route, stop, hour_bucket) DO UPDATE SET
			sample_count = excluded.sample_count,
			mean_error_seconds = excluded.mean_error_seconds,
			stddev_error_seconds = excluded.stddev_error_seconds,
			score = excluded.score,
			updated_at_utc = excluded.updated_at_utc`)
	if err != nil {
		return fmt.Errorf("failed to prepare score statement: %w", err)
	}
	defer stmt.Close()

	for _, score := range scores {
		_, err := stmt.ExecContext(ctx,
			string(score.Provider), score.Route, score.Stop, score.HourBucket,
			score.SampleCount, score.MeanErrorSeconds, score.StddevErrorSeconds,
			score.Score, utcString(score.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert score: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}

func (s *SQLite) Scores(ctx context.Context) ([]accuracy.Score, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT provider, route, stop, hour_bucket,
			sample_count, mean_error_seconds, stddev_error_seconds, score, updated_at_utc
		FROM confidence_scores
		ORDER BY provider, route, stop, hour_bucket`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var scores []accuracy.Score
	for rows.Next() {
		var (
			score     accuracy.Score
			provider  string
			updatedAt string
		)
		err := rows.Scan(
			&provider, &score.Route, &score.Stop, &score.HourBucket,
			&score.SampleCount, &score.MeanErrorSeconds, &score.StddevErrorSeconds,
			&score.Score, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		score.Provider = eta.Provider(provider)
		if score.UpdatedAt, err = parseUTC(updatedAt); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score rows: %w", err)
	}
	return scores, nil
}

// PurgeSamplesBefore deletes samples recorded before the cutoff, enforcing
// the rolling retention window.
func (s *SQLite) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM accuracy_samples WHERE recorded_at_utc < ?`,
		utcString(cutoff),
	)
	if err != nil {
		return fmt.Errorf("failed to purge samples: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Printf("Dataset: purged %d sample(s) recorded before %s", rows, utcString(cutoff))
	}
	return nil
}

// Timestamps are stored as RFC 3339 UTC strings so lexicographic comparison
// in SQL matches chronological order.
func utcString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseUTC(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", value, err)
	}
	return t, nil
}
