package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the key format of a day state row.
const DateLayout = "2006-01-02"

// DateUTC returns the UTC calendar date of t as a day state key.
func DateUTC(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDateUTC validates a YYYY-MM-DD key and returns its UTC midnight.
func ParseDateUTC(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// DayState is the aggregate trading state of one UTC calendar day.
type DayState struct {
	DateUTC           string          `json:"date_utc" db:"date_utc"`
	DayPnL            decimal.Decimal `json:"day_pnl" db:"day_pnl"`
	MaxDayPnL         decimal.Decimal `json:"max_day_pnl" db:"max_day_pnl"`
	TradesToday       int             `json:"trades_today" db:"trades_today"`
	ConsecutiveLosses int             `json:"consecutive_losses" db:"consecutive_losses"`
	CooldownUntil     *time.Time      `json:"cooldown_until,omitempty" db:"cooldown_until"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// NewDayState returns the zeroed row for date.
func NewDayState(date string) DayState {
	return DayState{
		DateUTC:   date,
		DayPnL:    decimal.Zero,
		MaxDayPnL: decimal.Zero,
	}
}

// Clone returns a copy that shares no pointers with s.
func (s DayState) Clone() DayState {
	out := s
	if s.CooldownUntil != nil {
		until := *s.CooldownUntil
		out.CooldownUntil = &until
	}
	return out
}

// Drawdown is the retracement of DayPnL from the day's peak.
func (s DayState) Drawdown() decimal.Decimal {
	return s.MaxDayPnL.Sub(s.DayPnL)
}

// CooldownPolicy carries the thresholds RecordFill needs to arm a cooldown.
type CooldownPolicy struct {
	MaxConsecutiveLosses int
	Cooldown             time.Duration
}

// ApplyFill is the single day state transition. Stores call it inside their
// atomic unit; it never mutates s.
func ApplyFill(s DayState, f Fill, p CooldownPolicy) DayState {
	next := s.Clone()
	next.DayPnL = s.DayPnL.Add(f.PnL)
	next.MaxDayPnL = decimal.Max(s.MaxDayPnL, next.DayPnL)
	next.TradesToday = s.TradesToday + 1

	if f.PnL.IsNegative() {
		next.ConsecutiveLosses = s.ConsecutiveLosses + 1
		if p.MaxConsecutiveLosses > 0 && next.ConsecutiveLosses >= p.MaxConsecutiveLosses {
			until := f.Timestamp.UTC().Add(p.Cooldown)
			next.CooldownUntil = &until
		}
	} else {
		next.ConsecutiveLosses = 0
		next.CooldownUntil = nil
	}
	next.UpdatedAt = f.Timestamp.UTC()
	return next
}
