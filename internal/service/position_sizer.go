package service

import (
	"log/slog"
	"strings"

	"github.com/GoPolymarket/riskgate/internal/exchange"
	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// DefaultRiskPerTrade is the share of margin put at risk between entry and stop.
var DefaultRiskPerTrade = decimal.RequireFromString("0.01")

// PositionSizer turns a risk budget into an exchange-compliant quantity.
type PositionSizer struct {
	validator    *exchange.Validator
	riskPerTrade decimal.Decimal
	log          *slog.Logger
}

// NewPositionSizer falls back to DefaultRiskPerTrade when riskPerTrade is not positive.
func NewPositionSizer(validator *exchange.Validator, riskPerTrade decimal.Decimal, log *slog.Logger) *PositionSizer {
	if validator == nil {
		validator = exchange.NewValidator(nil, log)
	}
	if !riskPerTrade.IsPositive() {
		riskPerTrade = DefaultRiskPerTrade
	}
	return &PositionSizer{
		validator:    validator,
		riskPerTrade: riskPerTrade,
		log:          logger.OrDefault(log),
	}
}

func (s *PositionSizer) RiskPerTrade() decimal.Decimal { return s.riskPerTrade }

// CalculatePositionSize sizes the entry so that hitting the stop loses
// riskAmount, then snaps it through ValidateOrderParams at entryPrice.
func (s *PositionSizer) CalculatePositionSize(symbol string, riskAmount, entryPrice, stopLossPrice decimal.Decimal) (model.OrderParams, error) {
	if !entryPrice.IsPositive() || !stopLossPrice.IsPositive() {
		return model.OrderParams{}, apperrors.InvalidInput(
			"entry and stop loss prices must be > 0, got entry %s stop %s", entryPrice, stopLossPrice)
	}
	if !riskAmount.IsPositive() {
		return model.OrderParams{}, apperrors.InvalidInput("risk amount must be > 0, got %s", riskAmount)
	}
	distance := entryPrice.Sub(stopLossPrice).Abs()
	if distance.IsZero() {
		return model.OrderParams{}, apperrors.InvalidInput("entry price equals stop loss price %s", entryPrice)
	}

	raw := riskAmount.Div(distance)
	s.log.Debug("position size computed",
		"symbol", symbol,
		"risk_amount", riskAmount.String(),
		"stop_distance", distance.String(),
		"raw_qty", raw.String(),
	)
	return s.validator.ValidateOrderParams(symbol, raw, &entryPrice)
}

// ValidateAndRoundQty takes the most conservative of the requested, risk
// based and margin based quantities. The minimum quantity check runs on
// that raw size; rounding and the notional re-check come after.
func (s *PositionSizer) ValidateAndRoundQty(req model.SizingRequest) (decimal.Decimal, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !req.Qty.IsPositive() {
		return decimal.Zero, apperrors.InvalidInput("qty must be > 0, got %s", req.Qty)
	}
	if req.Margin.IsNegative() {
		return decimal.Zero, apperrors.InvalidInput("margin must not be negative, got %s", req.Margin)
	}
	if !req.Leverage.IsPositive() {
		return decimal.Zero, apperrors.InvalidInput("leverage must be > 0, got %s", req.Leverage)
	}

	riskQty := req.Qty
	if req.SLDistance.IsPositive() {
		riskQty = req.Margin.Mul(s.riskPerTrade).Div(req.SLDistance)
	}
	marginQty := req.Margin.Mul(req.Leverage)
	safe := decimal.Min(req.Qty, riskQty, marginQty)

	f := s.validator.Filter(symbol)
	if safe.LessThan(f.MinQty) {
		metrics.QuantityAdjustments.WithLabelValues("below_min").Inc()
		return decimal.Zero, apperrors.BelowMinQty(
			"safe quantity %s is below minimum %s for %s (requested %s, risk %s, margin %s)",
			safe, f.MinQty, symbol, req.Qty, riskQty, marginQty)
	}

	rounded, err := s.validator.ValidateQuantity(symbol, safe)
	if err != nil {
		return decimal.Zero, err
	}

	ref := req.ReferencePrice
	if !ref.IsPositive() {
		ref = f.ReferencePrice
	}
	if !ref.IsPositive() {
		s.log.Warn("no reference price, notional check skipped", "symbol", symbol, "qty", rounded.String())
		return rounded, nil
	}
	if err := s.validator.CheckNotional(symbol, ref, rounded); err != nil {
		return decimal.Zero, err
	}

	if !rounded.Equal(req.Qty) {
		s.log.Info("quantity reduced to safe size",
			"symbol", symbol,
			"requested", req.Qty.String(),
			"risk_qty", riskQty.String(),
			"margin_qty", marginQty.String(),
			"qty", rounded.String(),
		)
	}
	return rounded, nil
}
