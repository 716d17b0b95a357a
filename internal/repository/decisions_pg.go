package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/jmoiron/sqlx"
)

type PostgresDecisionRepo struct {
	db *sqlx.DB
}

func NewPostgresDecisionRepo(ctx context.Context, db *sqlx.DB) (*PostgresDecisionRepo, error) {
	repo := &PostgresDecisionRepo{db: db}
	if err := repo.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure entry_decisions schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresDecisionRepo) Insert(ctx context.Context, rec *model.DecisionRecord) error {
	if rec == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entry_decisions (id, symbol, allowed, gate, reason, date_utc, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Symbol, rec.Allowed, rec.Gate, rec.Reason, rec.DateUTC, rec.EvaluatedAt)
	return err
}

func (r *PostgresDecisionRepo) List(ctx context.Context, symbol string, limit int) ([]*model.DecisionRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT id, symbol, allowed, gate, reason, date_utc, evaluated_at FROM entry_decisions`
	args := []interface{}{}
	idx := 1
	if symbol != "" {
		query += fmt.Sprintf(" WHERE symbol = $%d", idx)
		args = append(args, strings.ToUpper(symbol))
		idx++
	}
	query += fmt.Sprintf(" ORDER BY evaluated_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.DecisionRecord, 0, limit)
	for rows.Next() {
		var rec model.DecisionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Symbol,
			&rec.Allowed,
			&rec.Gate,
			&rec.Reason,
			&rec.DateUTC,
			&rec.EvaluatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *PostgresDecisionRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entry_decisions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			allowed BOOLEAN NOT NULL,
			gate TEXT NOT NULL,
			reason TEXT NOT NULL,
			date_utc TEXT NOT NULL,
			evaluated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_entry_decisions_symbol ON entry_decisions(symbol, evaluated_at DESC)`)
	return nil
}

// Cleanup drops decisions older than the retention window.
func (r *PostgresDecisionRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM entry_decisions WHERE evaluated_at < $1`, cutoff)
	return err
}
