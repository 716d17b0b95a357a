package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/sony/gobreaker"
)

// BreakerStore trips after consecutive backend failures so that entry
// checks fail closed immediately instead of waiting on a dead store.
type BreakerStore struct {
	next service.DayStateStore
	cb   *gobreaker.CircuitBreaker
}

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func NewBreakerStore(next service.DayStateStore, cfg BreakerSettings, log *slog.Logger) *BreakerStore {
	log = logger.OrDefault(log)
	if cfg.Name == "" {
		cfg.Name = "day_state_store"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Validation errors are the caller's fault, not the backend's.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, service.ErrDuplicateFill) ||
				apperrors.IsType(err, apperrors.ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("store circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) GetDayState(ctx context.Context, now time.Time) (model.DayState, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetDayState(ctx, now)
	})
	if err != nil {
		return model.DayState{}, b.wrap("get_day_state", err)
	}
	return res.(model.DayState), nil
}

func (b *BreakerStore) RecordFill(ctx context.Context, fill model.Fill, policy model.CooldownPolicy) (model.DayState, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.RecordFill(ctx, fill, policy)
	})
	if err != nil {
		return model.DayState{}, b.wrap("record_fill", err)
	}
	return res.(model.DayState), nil
}

func (b *BreakerStore) ResetDayState(ctx context.Context, dateUTC string, at time.Time) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.ResetDayState(ctx, dateUTC, at)
	})
	if err != nil {
		return b.wrap("reset_day_state", err)
	}
	return nil
}

func (b *BreakerStore) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.StateUnavailable(op+" (circuit open)", err)
	}
	return err
}
