package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RiskConfig holds the entry gate thresholds.
type RiskConfig struct {
	DailyMaxLoss         decimal.Decimal `json:"daily_max_loss"`       // negative, e.g. -30
	DailyTrailDrawdown   decimal.Decimal `json:"daily_trail_drawdown"` // positive, e.g. 20
	MaxTradesPerDay      int             `json:"max_trades_per_day"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	CooldownMinutes      float64         `json:"cooldown_minutes"`
	OnePositionPerSymbol bool            `json:"one_position_per_symbol"`
}

// DefaultRiskConfig is the conservative fallback used when no usable config is found.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		DailyMaxLoss:         decimal.NewFromInt(-30),
		DailyTrailDrawdown:   decimal.NewFromInt(20),
		MaxTradesPerDay:      6,
		MaxConsecutiveLosses: 3,
		CooldownMinutes:      15,
		OnePositionPerSymbol: true,
	}
}

func (c RiskConfig) Validate() error {
	var errs []error
	if !c.DailyMaxLoss.IsNegative() {
		errs = append(errs, fmt.Errorf("daily_max_loss must be negative, got %s", c.DailyMaxLoss))
	}
	if !c.DailyTrailDrawdown.IsPositive() {
		errs = append(errs, fmt.Errorf("daily_trail_drawdown must be positive, got %s", c.DailyTrailDrawdown))
	}
	if c.MaxTradesPerDay <= 0 {
		errs = append(errs, fmt.Errorf("max_trades_per_day must be positive, got %d", c.MaxTradesPerDay))
	}
	if c.MaxConsecutiveLosses <= 0 {
		errs = append(errs, fmt.Errorf("max_consecutive_losses must be positive, got %d", c.MaxConsecutiveLosses))
	}
	if c.CooldownMinutes < 0 {
		errs = append(errs, fmt.Errorf("cooldown_minutes must not be negative, got %g", c.CooldownMinutes))
	}
	return errors.Join(errs...)
}

func (c RiskConfig) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownMinutes * float64(time.Minute))
}

func (c RiskConfig) CooldownPolicy() CooldownPolicy {
	return CooldownPolicy{
		MaxConsecutiveLosses: c.MaxConsecutiveLosses,
		Cooldown:             c.CooldownDuration(),
	}
}

// Gate labels, in evaluation order.
const (
	GateDailyMaxLoss     = "daily_max_loss"
	GateTrailDrawdown    = "trail_drawdown"
	GateMaxTrades        = "max_trades"
	GateCooldown         = "cooldown"
	GateOpenPosition     = "open_position"
	GateStateUnavailable = "state_unavailable"
	GateAllowed          = "allowed"
)

// Decision is the answer to "may a new entry be opened now".
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Gate    string `json:"gate"`
}

func Allow() Decision {
	return Decision{Allowed: true, Reason: "Entry allowed", Gate: GateAllowed}
}

func Deny(gate, format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...), Gate: gate}
}
