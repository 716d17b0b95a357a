package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Position struct {
	Symbol string          `json:"symbol"`
	Size   decimal.Decimal `json:"size"`
}

// AccountState is the caller's snapshot of the exchange account.
type AccountState struct {
	Positions []Position `json:"positions"`
}

// OpenPosition returns the first nonzero position held in symbol.
func (a AccountState) OpenPosition(symbol string) (Position, bool) {
	for _, p := range a.Positions {
		if strings.EqualFold(p.Symbol, symbol) && !p.Size.IsZero() {
			return p, true
		}
	}
	return Position{}, false
}
