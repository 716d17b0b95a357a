package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const pgUniqueViolation = "23505"

const dayStateColumns = `date_utc, day_pnl, max_day_pnl, trades_today, consecutive_losses, cooldown_until, updated_at`

// PostgresDayStateStore keeps one day_state row per UTC date. RecordFill
// serializes on that row with SELECT ... FOR UPDATE.
type PostgresDayStateStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresDayStateStore(ctx context.Context, db *sqlx.DB, timeout time.Duration) (*PostgresDayStateStore, error) {
	repo := &PostgresDayStateStore{db: db, timeout: timeout}
	if err := repo.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure day_state schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresDayStateStore) GetDayState(ctx context.Context, now time.Time) (model.DayState, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	date := model.DateUTC(now)
	if _, err := r.db.ExecContext(ctx, insertDayStateSQL, date, now.UTC()); err != nil {
		return model.DayState{}, fmt.Errorf("create day_state %s: %w", date, err)
	}

	var st model.DayState
	err := r.db.GetContext(ctx, &st, `SELECT `+dayStateColumns+` FROM day_state WHERE date_utc = $1`, date)
	if err != nil {
		return model.DayState{}, fmt.Errorf("load day_state %s: %w", date, err)
	}
	return st, nil
}

const insertDayStateSQL = `
	INSERT INTO day_state (date_utc, day_pnl, max_day_pnl, trades_today, consecutive_losses, updated_at)
	VALUES ($1, 0, 0, 0, 0, $2)
	ON CONFLICT (date_utc) DO NOTHING`

func (r *PostgresDayStateStore) RecordFill(ctx context.Context, fill model.Fill, policy model.CooldownPolicy) (model.DayState, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	date := model.DateUTC(fill.Timestamp)
	fill.DateUTC = date

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.DayState{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertDayStateSQL, date, fill.Timestamp.UTC()); err != nil {
		return model.DayState{}, fmt.Errorf("create day_state %s: %w", date, err)
	}

	var st model.DayState
	if err := tx.GetContext(ctx, &st,
		`SELECT `+dayStateColumns+` FROM day_state WHERE date_utc = $1 FOR UPDATE`, date); err != nil {
		return model.DayState{}, fmt.Errorf("lock day_state %s: %w", date, err)
	}

	next := model.ApplyFill(st, fill, policy)
	if _, err := tx.ExecContext(ctx, `
		UPDATE day_state
		SET day_pnl = $2, max_day_pnl = $3, trades_today = $4,
		    consecutive_losses = $5, cooldown_until = $6, updated_at = $7
		WHERE date_utc = $1`,
		date, next.DayPnL, next.MaxDayPnL, next.TradesToday,
		next.ConsecutiveLosses, next.CooldownUntil, next.UpdatedAt); err != nil {
		return model.DayState{}, fmt.Errorf("update day_state %s: %w", date, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fills (id, ts, date_utc, symbol, side, qty, price, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		fill.ID, fill.Timestamp.UTC(), fill.DateUTC, fill.Symbol, fill.Side,
		fill.Qty, fill.Price, fill.PnL); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.DayState{}, fmt.Errorf("%w: %s", service.ErrDuplicateFill, fill.ID)
		}
		return model.DayState{}, fmt.Errorf("append fill %s: %w", fill.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return model.DayState{}, fmt.Errorf("commit fill %s: %w", fill.ID, err)
	}
	return next, nil
}

func (r *PostgresDayStateStore) ResetDayState(ctx context.Context, dateUTC string, at time.Time) error {
	if _, err := model.ParseDateUTC(dateUTC); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO day_state (date_utc, day_pnl, max_day_pnl, trades_today, consecutive_losses, updated_at)
		VALUES ($1, 0, 0, 0, 0, $2)
		ON CONFLICT (date_utc)
		DO UPDATE SET day_pnl = 0, max_day_pnl = 0, trades_today = 0,
		              consecutive_losses = 0, cooldown_until = NULL, updated_at = $2`,
		dateUTC, at.UTC())
	if err != nil {
		return fmt.Errorf("reset day_state %s: %w", dateUTC, err)
	}
	return nil
}

// ListFills returns matching fills, newest first.
func (r *PostgresDayStateStore) ListFills(ctx context.Context, q model.FillQuery) ([]model.Fill, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT id, ts, date_utc, symbol, side, qty, price, pnl FROM fills`
	clauses := []string{}
	args := []any{}
	idx := 1

	if q.DateUTC != "" {
		clauses = append(clauses, fmt.Sprintf("date_utc = $%d", idx))
		args = append(args, q.DateUTC)
		idx++
	}
	if q.Symbol != "" {
		clauses = append(clauses, fmt.Sprintf("symbol = $%d", idx))
		args = append(args, strings.ToUpper(q.Symbol))
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d", idx)
	args = append(args, service.ClampFillLimit(q.Limit))

	fills := []model.Fill{}
	if err := r.db.SelectContext(ctx, &fills, query, args...); err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	return fills, nil
}

func (r *PostgresDayStateStore) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS day_state (
			date_utc TEXT PRIMARY KEY,
			day_pnl NUMERIC NOT NULL DEFAULT 0,
			max_day_pnl NUMERIC NOT NULL DEFAULT 0,
			trades_today INTEGER NOT NULL DEFAULT 0,
			consecutive_losses INTEGER NOT NULL DEFAULT 0,
			cooldown_until TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fills (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			date_utc TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty NUMERIC NOT NULL,
			price NUMERIC NOT NULL,
			pnl NUMERIC NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_fills_date_ts ON fills(date_utc, ts DESC)`)
	return nil
}
