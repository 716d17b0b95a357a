package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// NormalizeSide upper-cases side and maps LONG/SHORT onto BUY/SELL.
// The second return is false for anything else.
func NormalizeSide(side string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case SideBuy, "LONG":
		return SideBuy, true
	case SideSell, "SHORT":
		return SideSell, true
	default:
		return "", false
	}
}

// Fill is an executed trade. It is appended to the fills log and never updated.
type Fill struct {
	ID        string          `json:"id" db:"id" gorm:"column:id;primaryKey"`
	Timestamp time.Time       `json:"timestamp" db:"ts" gorm:"column:ts"`
	DateUTC   string          `json:"date_utc" db:"date_utc" gorm:"column:date_utc;index"`
	Symbol    string          `json:"symbol" db:"symbol" gorm:"column:symbol"`
	Side      string          `json:"side" db:"side" gorm:"column:side"`
	Qty       decimal.Decimal `json:"qty" db:"qty" gorm:"column:qty;type:numeric"`
	Price     decimal.Decimal `json:"price" db:"price" gorm:"column:price;type:numeric"`
	PnL       decimal.Decimal `json:"pnl" db:"pnl" gorm:"column:pnl;type:numeric"`
}

func (Fill) TableName() string { return "fills" }

// FillQuery filters the fills log. Zero values mean "any"; Limit <= 0 means the store default.
type FillQuery struct {
	DateUTC string
	Symbol  string
	Limit   int
}

// Outcome labels the fill for metrics.
func (f Fill) Outcome() string {
	switch {
	case f.PnL.IsNegative():
		return "loss"
	case f.PnL.IsPositive():
		return "win"
	default:
		return "flat"
	}
}
