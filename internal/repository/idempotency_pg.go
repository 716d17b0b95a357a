package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/riskgate/internal/middleware"
	"github.com/jmoiron/sqlx"
)

type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

func NewPostgresIdempotencyStore(ctx context.Context, db *sqlx.DB) *PostgresIdempotencyStore {
	store := &PostgresIdempotencyStore{db: db}
	_ = store.ensureSchema(ctx)
	return store
}

func (s *PostgresIdempotencyStore) GetOrLock(key string) (*middleware.IdempotencyRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), idemTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, processing, created_at)
		VALUES ($1, true, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, time.Now().UTC())
	if err == nil {
		if rows, _ := result.RowsAffected(); rows > 0 {
			return nil, false
		}
	}

	var rec middleware.IdempotencyRecord
	err = s.db.QueryRowxContext(ctx, `
		SELECT status_code, response_body, created_at, processing
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&rec.Status, &rec.Body, &rec.CreatedAt, &rec.Processing)
	if err != nil {
		return nil, false
	}
	return &rec, true
}

func (s *PostgresIdempotencyStore) Save(key string, status int, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), idemTimeout)
	defer cancel()
	_, _ = s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status_code = $2, response_body = $3, processing = false
		WHERE key = $1
	`, key, status, body)
}

func (s *PostgresIdempotencyStore) Unlock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), idemTimeout)
	defer cancel()
	_, _ = s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
}

func (s *PostgresIdempotencyStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Cleanup removes keys older than the retention window.
func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
