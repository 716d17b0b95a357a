package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExchangeFilter holds the per-symbol order constraints of the exchange.
type ExchangeFilter struct {
	Symbol      string          `json:"symbol"`
	TickSize    decimal.Decimal `json:"tick_size"`
	StepSize    decimal.Decimal `json:"step_size"`
	MinQty      decimal.Decimal `json:"min_qty"`
	MaxQty      decimal.Decimal `json:"max_qty"`
	MinNotional decimal.Decimal `json:"min_notional"`
	// ReferencePrice is an optional mark used for notional checks when the
	// caller has no price of its own. Zero means unknown.
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

func (f ExchangeFilter) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"tick_size":    f.TickSize,
		"step_size":    f.StepSize,
		"min_qty":      f.MinQty,
		"max_qty":      f.MaxQty,
		"min_notional": f.MinNotional,
	} {
		if !v.IsPositive() {
			return fmt.Errorf("filter %s: %s must be > 0, got %s", f.Symbol, name, v)
		}
	}
	if f.MinQty.GreaterThan(f.MaxQty) {
		return fmt.Errorf("filter %s: min_qty %s > max_qty %s", f.Symbol, f.MinQty, f.MaxQty)
	}
	if f.ReferencePrice.IsNegative() {
		return fmt.Errorf("filter %s: reference_price must not be negative", f.Symbol)
	}
	return nil
}

// OrderParams is an exchange-compliant quantity and, when one was given, price.
type OrderParams struct {
	Symbol string           `json:"symbol"`
	Qty    decimal.Decimal  `json:"qty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}
