package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/pkg/clock"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/pkg/metrics"
	"github.com/google/uuid"
)

// DecisionRecorder receives every entry decision, e.g. for an audit trail.
type DecisionRecorder interface {
	Record(rec model.DecisionRecord)
}

type Option func(*RiskEngine)

func WithLogger(l *slog.Logger) Option {
	return func(e *RiskEngine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithDecisionRecorder(r DecisionRecorder) Option {
	return func(e *RiskEngine) { e.recorder = r }
}

// RiskEngine gates new entries against the persisted day state. It holds no
// mutable state of its own; everything lives in the DayStateStore.
type RiskEngine struct {
	store    DayStateStore
	cfg      model.RiskConfig
	clock    clock.Clock
	log      *slog.Logger
	recorder DecisionRecorder
}

// NewRiskEngine panics on a nil store or clock and on an invalid config:
// those are wiring mistakes, not runtime conditions.
func NewRiskEngine(store DayStateStore, cfg model.RiskConfig, clk clock.Clock, opts ...Option) *RiskEngine {
	if store == nil {
		panic("risk engine: nil DayStateStore")
	}
	if clk == nil {
		panic("risk engine: nil clock")
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("risk engine: invalid config: %v", err))
	}
	e := &RiskEngine{
		store: store,
		cfg:   cfg,
		clock: clk,
		log:   logger.Get(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RiskEngine) Config() model.RiskConfig { return e.cfg }

// Now reads the injected clock.
func (e *RiskEngine) Now() time.Time { return e.clock.Now().UTC() }

// AllowEntry evaluates the gates in order and stops at the first denial.
// A denial is a normal result. The error is non-nil only when the day state
// could not be read, and in that case the decision is a denial as well.
func (e *RiskEngine) AllowEntry(ctx context.Context, now time.Time, symbol string, account model.AccountState) (model.Decision, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now = now.UTC()

	st, err := e.store.GetDayState(ctx, now)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get_day_state").Inc()
		logger.LogError(ctx, err, "risk state unreadable, denying entry", "symbol", symbol)
		dec := model.Deny(model.GateStateUnavailable, "Risk state unavailable, entry denied: %v", err)
		e.observe(now, symbol, dec)
		return dec, apperrors.StateUnavailable("get_day_state", err)
	}

	dec := e.evaluate(now, symbol, st, account)
	e.observe(now, symbol, dec)
	return dec, nil
}

func (e *RiskEngine) evaluate(now time.Time, symbol string, st model.DayState, account model.AccountState) model.Decision {
	cfg := e.cfg

	if st.DayPnL.LessThanOrEqual(cfg.DailyMaxLoss) {
		return model.Deny(model.GateDailyMaxLoss,
			"Daily max loss reached: day PnL %s <= limit %s", st.DayPnL, cfg.DailyMaxLoss)
	}

	if dd := st.Drawdown(); dd.GreaterThanOrEqual(cfg.DailyTrailDrawdown) {
		return model.Deny(model.GateTrailDrawdown,
			"Daily trail drawdown reached: %s below peak %s (day PnL %s) >= limit %s",
			dd, st.MaxDayPnL, st.DayPnL, cfg.DailyTrailDrawdown)
	}

	if st.TradesToday >= cfg.MaxTradesPerDay {
		return model.Deny(model.GateMaxTrades,
			"Max trades per day reached: %d >= %d", st.TradesToday, cfg.MaxTradesPerDay)
	}

	// ConsecutiveLosses is only cleared by the next non-losing fill, so once
	// CooldownUntil has passed this gate opens while the streak still reads high.
	if st.ConsecutiveLosses >= cfg.MaxConsecutiveLosses && st.CooldownUntil != nil && now.Before(*st.CooldownUntil) {
		return model.Deny(model.GateCooldown,
			"Loss cooldown active until %s: %d consecutive losses >= %d",
			st.CooldownUntil.UTC().Format(time.RFC3339), st.ConsecutiveLosses, cfg.MaxConsecutiveLosses)
	}

	if cfg.OnePositionPerSymbol {
		if p, ok := account.OpenPosition(symbol); ok {
			return model.Deny(model.GateOpenPosition,
				"Position already open for %s: size %s", symbol, p.Size)
		}
	}

	return model.Allow()
}

func (e *RiskEngine) observe(now time.Time, symbol string, dec model.Decision) {
	metrics.EntryDecisions.WithLabelValues(dec.Gate).Inc()
	if dec.Allowed {
		e.log.Debug("entry allowed", "symbol", symbol)
	} else {
		e.log.Info("entry denied", "symbol", symbol, "gate", dec.Gate, "reason", dec.Reason)
	}
	if e.recorder != nil {
		e.recorder.Record(model.DecisionRecord{
			ID:          uuid.New().String(),
			Symbol:      symbol,
			Allowed:     dec.Allowed,
			Gate:        dec.Gate,
			Reason:      dec.Reason,
			DateUTC:     model.DateUTC(now),
			EvaluatedAt: now,
		})
	}
}

// RecordFill normalizes and validates fill, then applies it to the day
// state of its UTC date in one atomic store operation.
func (e *RiskEngine) RecordFill(ctx context.Context, fill model.Fill) (model.DayState, error) {
	fill, err := e.normalizeFill(fill)
	if err != nil {
		return model.DayState{}, err
	}

	st, err := e.store.RecordFill(ctx, fill, e.cfg.CooldownPolicy())
	if errors.Is(err, ErrDuplicateFill) {
		e.log.Warn("duplicate fill ignored", "fill_id", fill.ID, "symbol", fill.Symbol)
		return model.DayState{}, apperrors.New(apperrors.ErrDuplicateFill, "fill "+fill.ID+" already recorded", err)
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("record_fill").Inc()
		return model.DayState{}, apperrors.StateUnavailable("record_fill", err)
	}

	metrics.FillsRecorded.WithLabelValues(fill.Side, fill.Outcome()).Inc()
	e.log.Info("fill recorded",
		"fill_id", fill.ID,
		"symbol", fill.Symbol,
		"side", fill.Side,
		"qty", fill.Qty.String(),
		"price", fill.Price.String(),
		"pnl", fill.PnL.String(),
		"day_pnl", st.DayPnL.String(),
		"trades_today", st.TradesToday,
		"consecutive_losses", st.ConsecutiveLosses,
	)
	if fill.PnL.IsNegative() && st.CooldownUntil != nil && st.ConsecutiveLosses >= e.cfg.MaxConsecutiveLosses {
		e.log.Warn("loss cooldown armed",
			"until", st.CooldownUntil.Format(time.RFC3339),
			"consecutive_losses", st.ConsecutiveLosses,
		)
	}
	return st, nil
}

func (e *RiskEngine) normalizeFill(fill model.Fill) (model.Fill, error) {
	fill.Symbol = strings.ToUpper(strings.TrimSpace(fill.Symbol))
	if fill.Symbol == "" {
		return model.Fill{}, apperrors.InvalidInput("fill symbol is required")
	}
	side, ok := model.NormalizeSide(fill.Side)
	if !ok {
		return model.Fill{}, apperrors.InvalidInput("fill side must be BUY or SELL, got %q", fill.Side)
	}
	fill.Side = side
	if !fill.Qty.IsPositive() {
		return model.Fill{}, apperrors.InvalidInput("fill qty must be > 0, got %s", fill.Qty)
	}
	if !fill.Price.IsPositive() {
		return model.Fill{}, apperrors.InvalidInput("fill price must be > 0, got %s", fill.Price)
	}
	if fill.Timestamp.IsZero() {
		fill.Timestamp = e.Now()
	}
	fill.Timestamp = fill.Timestamp.UTC()
	if fill.ID == "" {
		fill.ID = uuid.New().String()
	}
	fill.DateUTC = model.DateUTC(fill.Timestamp)
	return fill, nil
}

// GetDayState returns a read-only snapshot of the day containing now.
func (e *RiskEngine) GetDayState(ctx context.Context, now time.Time) (model.DayState, error) {
	st, err := e.store.GetDayState(ctx, now.UTC())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get_day_state").Inc()
		return model.DayState{}, apperrors.StateUnavailable("get_day_state", err)
	}
	return st, nil
}

// ResetDayState zeroes the row of dateUTC, or of today when dateUTC is empty.
// The fills log is untouched. Ops and tests only.
func (e *RiskEngine) ResetDayState(ctx context.Context, dateUTC string) (string, error) {
	if dateUTC == "" {
		dateUTC = model.DateUTC(e.Now())
	}
	if _, err := model.ParseDateUTC(dateUTC); err != nil {
		return "", apperrors.InvalidInput("%v", err)
	}
	if err := e.store.ResetDayState(ctx, dateUTC, e.Now()); err != nil {
		metrics.StoreErrors.WithLabelValues("reset_day_state").Inc()
		return "", apperrors.StateUnavailable("reset_day_state", err)
	}
	e.log.Warn("day state reset", "date_utc", dateUTC)
	return dateUTC, nil
}
