package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryCheckRequest asks whether a new entry in Symbol is allowed.
// Now is optional and defaults to the server clock.
type EntryCheckRequest struct {
	Symbol    string     `json:"symbol" binding:"required"`
	Positions []Position `json:"positions"`
	Now       *time.Time `json:"now,omitempty"`
}

// FillRequest reports an executed fill. Timestamp defaults to the server clock.
// ID is the exchange fill id; when empty the server assigns one.
type FillRequest struct {
	ID        string          `json:"id,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Symbol    string          `json:"symbol" binding:"required"`
	Side      string          `json:"side" binding:"required"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	PnL       decimal.Decimal `json:"pnl"`
}

func (r FillRequest) ToFill() Fill {
	f := Fill{
		ID:     r.ID,
		Symbol: r.Symbol,
		Side:   r.Side,
		Qty:    r.Qty,
		Price:  r.Price,
		PnL:    r.PnL,
	}
	if r.Timestamp != nil {
		f.Timestamp = *r.Timestamp
	}
	return f
}

type OrderValidateRequest struct {
	Symbol string           `json:"symbol" binding:"required"`
	Qty    decimal.Decimal  `json:"qty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

type PositionSizeRequest struct {
	Symbol        string          `json:"symbol" binding:"required"`
	RiskAmount    decimal.Decimal `json:"risk_amount"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
}

// SizingRequest is the input of ValidateAndRoundQty.
type SizingRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Qty            decimal.Decimal `json:"qty"`
	SLDistance     decimal.Decimal `json:"sl_distance"`
	Margin         decimal.Decimal `json:"margin"`
	Leverage       decimal.Decimal `json:"leverage"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
}

type SizeResponse struct {
	Symbol string          `json:"symbol"`
	Qty    decimal.Decimal `json:"qty"`
}
