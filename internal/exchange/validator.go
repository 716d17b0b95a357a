package exchange

import (
	"log/slog"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Validator snaps prices and quantities onto the exchange grid. All
// arithmetic is decimal; a float never touches a tick or step.
type Validator struct {
	table *FilterTable
	log   *slog.Logger
}

func NewValidator(table *FilterTable, log *slog.Logger) *Validator {
	if table == nil {
		table = DefaultFilterTable()
	}
	return &Validator{table: table, log: logger.OrDefault(log)}
}

func (v *Validator) Filter(symbol string) model.ExchangeFilter {
	f, _ := v.table.Lookup(symbol)
	return f
}

// floorToStep truncates a non-negative value down to a multiple of step.
func floorToStep(value, step decimal.Decimal) decimal.Decimal {
	q, _ := value.QuoRem(step, 0)
	return q.Mul(step)
}

// ValidatePrice floors price to the symbol's tick size.
func (v *Validator) ValidatePrice(symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, apperrors.InvalidInput("price must be > 0, got %s", price)
	}
	f := v.Filter(symbol)
	snapped := floorToStep(price, f.TickSize)
	if !snapped.IsPositive() {
		return decimal.Zero, apperrors.InvalidInput("price %s is below tick size %s for %s", price, f.TickSize, symbol)
	}
	if !snapped.Equal(price) {
		v.log.Info("price snapped to tick size",
			"symbol", symbol,
			"price", price.String(),
			"snapped", snapped.String(),
			"tick_size", f.TickSize.String(),
		)
		metrics.QuantityAdjustments.WithLabelValues("price_tick").Inc()
	}
	return snapped, nil
}

// ValidateQuantity clamps qty into [minQty, maxQty], floors it to the step
// size, and lifts the result back to minQty if flooring dropped below it.
func (v *Validator) ValidateQuantity(symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, apperrors.InvalidInput("quantity must be > 0, got %s", qty)
	}
	f := v.Filter(symbol)

	clamped := qty
	switch {
	case qty.LessThan(f.MinQty):
		clamped = f.MinQty
		v.log.Warn("quantity below minimum, clamped",
			"symbol", symbol, "qty", qty.String(), "min_qty", f.MinQty.String())
		metrics.QuantityAdjustments.WithLabelValues("qty_clamp_min").Inc()
	case qty.GreaterThan(f.MaxQty):
		clamped = f.MaxQty
		v.log.Warn("quantity above maximum, clamped",
			"symbol", symbol, "qty", qty.String(), "max_qty", f.MaxQty.String())
		metrics.QuantityAdjustments.WithLabelValues("qty_clamp_max").Inc()
	}

	snapped := floorToStep(clamped, f.StepSize)
	if snapped.LessThan(f.MinQty) {
		snapped = f.MinQty
	}
	if !snapped.Equal(clamped) {
		v.log.Info("quantity snapped to step size",
			"symbol", symbol,
			"qty", clamped.String(),
			"snapped", snapped.String(),
			"step_size", f.StepSize.String(),
		)
		metrics.QuantityAdjustments.WithLabelValues("qty_step").Inc()
	}
	return snapped, nil
}

// ValidateNotional reports whether price*qty meets the symbol's minimum notional.
func (v *Validator) ValidateNotional(symbol string, price, qty decimal.Decimal) bool {
	return v.CheckNotional(symbol, price, qty) == nil
}

// CheckNotional is ValidateNotional with a typed NotionalTooSmall failure.
func (v *Validator) CheckNotional(symbol string, price, qty decimal.Decimal) error {
	f := v.Filter(symbol)
	notional := price.Mul(qty)
	if notional.LessThan(f.MinNotional) {
		return apperrors.NotionalTooSmall("notional %s (price %s x qty %s) is below minimum %s for %s",
			notional, price, qty, f.MinNotional, symbol)
	}
	return nil
}

// ValidateOrderParams is the single entry point for order placement: it
// snaps qty and, when given, price, then enforces the minimum notional.
func (v *Validator) ValidateOrderParams(symbol string, qty decimal.Decimal, price *decimal.Decimal) (model.OrderParams, error) {
	out := model.OrderParams{Symbol: normalizeSymbol(symbol)}

	q, err := v.ValidateQuantity(out.Symbol, qty)
	if err != nil {
		return model.OrderParams{}, err
	}
	out.Qty = q

	if price == nil {
		return out, nil
	}
	p, err := v.ValidatePrice(out.Symbol, *price)
	if err != nil {
		return model.OrderParams{}, err
	}
	out.Price = &p
	if err := v.CheckNotional(out.Symbol, p, q); err != nil {
		return model.OrderParams{}, err
	}
	return out, nil
}
