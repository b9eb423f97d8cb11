package dataset

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/markmybytes/HKETA-Server/internal/accuracy"
	"github.com/markmybytes/HKETA-Server/internal/eta"
)

// Postgres stores the dataset in a shared PostgreSQL database, so the
// sampler and the API server can run as separate processes over one dataset.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at the given URL.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Dataset: connected to PostgreSQL database")
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist. The embedded schema
// sticks to DDL both SQLite and PostgreSQL accept.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) InsertSample(ctx context.Context, sample accuracy.Sample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO accuracy_samples (
			sample_id, provider, route, stop, direction,
			predicted_at_utc, predicted_utc, observed_utc,
			error_seconds, hour_bucket, recorded_at_utc
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sample.ID, string(sample.Provider), sample.Route, sample.Stop, string(sample.Direction),
		utcString(sample.PredictedAt), utcString(sample.Predicted), utcString(sample.Observed),
		sample.ErrorSeconds, sample.HourBucket, utcString(sample.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

func (p *Postgres) SamplesSince(ctx context.Context, since time.Time) ([]accuracy.Sample, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT sample_id, provider, route, stop, direction,
			predicted_at_utc, predicted_utc, observed_utc,
			error_seconds, hour_bucket, recorded_at_utc
		FROM accuracy_samples
		WHERE recorded_at_utc >= $1
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

func (p *Postgres) UpsertScores(ctx context.Context, scores []accuracy.Score) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, score := range scores {
		_, err := tx.Exec(ctx, `
			INSERT INTO confidence_scores (
				provider, route, stop, hour_bucket,
				sample_count, mean_error_seconds, stddev_error_seconds, score, updated_at_utc
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (provider, route, stop, hour_bucket) DO UPDATE SET
				sample_count = excluded.sample_count,
				mean_error_seconds = excluded.mean_error_seconds,
				stddev_error_seconds = excluded.stddev_error_seconds,
				score = excluded.score,
				updated_at_utc = excluded.updated_at_utc`,
			string(score.Provider), score.Route, score.Stop, score.HourBucket,
			score.SampleCount, score.MeanErrorSeconds, score.StddevErrorSeconds,
			score.Score, utcString(score.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert score: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}

func (p *Postgres) Scores(ctx context.Context) ([]accuracy.Score, error) {
	rows, err := p.pool.Query(ctx, `
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

func (p *Postgres) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM accuracy_samples WHERE recorded_at_utc < $1`,
		utcString(cutoff),
	)
	if err != nil {
		return fmt.Errorf("failed to purge samples: %w", err)
	}
	if rows := tag.RowsAffected(); rows > 0 {
		log.Printf("Dataset: purged %d sample(s) recorded before %s", rows, utcString(cutoff))
	}
	return nil
}
