package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const maxTxAttempts = 16

// RedisDayStateStore keeps each day in a hash <prefix>:day:<date> and its
// fills in the list <prefix>:fills:<date>. RecordFill is optimistic: the
// hash is WATCHed and the update commits in one MULTI/EXEC.
type RedisDayStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisDayStateStore(client *redis.Client, prefix string) *RedisDayStateStore {
	return &RedisDayStateStore{client: client, prefix: keyPrefix(prefix)}
}

func (s *RedisDayStateStore) dayKey(date string) string   { return s.prefix + ":day:" + date }
func (s *RedisDayStateStore) fillsKey(date string) string { return s.prefix + ":fills:" + date }
func (s *RedisDayStateStore) datesKey() string            { return s.prefix + ":fill_dates" }
func (s *RedisDayStateStore) idsKey() string              { return s.prefix + ":fill_ids" }

func (s *RedisDayStateStore) GetDayState(ctx context.Context, now time.Time) (model.DayState, error) {
	date := model.DateUTC(now)
	key := s.dayKey(date)
	zero := encodeDayState(model.NewDayState(date), now.UTC())

	var all *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// HSETNX per field keeps creation idempotent for concurrent first readers.
		for field, val := range zero {
			pipe.HSetNX(ctx, key, field, val)
		}
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return model.DayState{}, fmt.Errorf("load day %s: %w", date, err)
	}
	return decodeDayState(date, all.Val())
}

func (s *RedisDayStateStore) RecordFill(ctx context.Context, fill model.Fill, policy model.CooldownPolicy) (model.DayState, error) {
	date := model.DateUTC(fill.Timestamp)
	fill.DateUTC = date
	key := s.dayKey(date)

	payload, err := json.Marshal(fill)
	if err != nil {
		return model.DayState{}, fmt.Errorf("encode fill: %w", err)
	}

	var next model.DayState
	txf := func(tx *redis.Tx) error {
		dup, err := tx.SIsMember(ctx, s.idsKey(), fill.ID).Result()
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: %s", service.ErrDuplicateFill, fill.ID)
		}
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		st := model.NewDayState(date)
		if len(vals) > 0 {
			if st, err = decodeDayState(date, vals); err != nil {
				return err
			}
		}
		next = model.ApplyFill(st, fill, policy)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeDayState(next, next.UpdatedAt))
			pipe.RPush(ctx, s.fillsKey(date), payload)
			pipe.SAdd(ctx, s.datesKey(), date)
			pipe.SAdd(ctx, s.idsKey(), fill.ID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key, s.idsKey())
		if err == nil {
			return next, nil
		}
		if errors.Is(err, service.ErrDuplicateFill) {
			return model.DayState{}, err
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return model.DayState{}, fmt.Errorf("record fill %s: %w", fill.ID, err)
	}
	return model.DayState{}, fmt.Errorf("record fill %s: day %s contended after %d attempts", fill.ID, date, maxTxAttempts)
}

func (s *RedisDayStateStore) ResetDayState(ctx context.Context, dateUTC string, at time.Time) error {
	if _, err := model.ParseDateUTC(dateUTC); err != nil {
		return err
	}
	key := s.dayKey(dateUTC)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeDayState(model.NewDayState(dateUTC), at.UTC()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset day %s: %w", dateUTC, err)
	}
	return nil
}

// ListFills walks the per-day lists newest day first.
func (s *RedisDayStateStore) ListFills(ctx context.Context, q model.FillQuery) ([]model.Fill, error) {
	limit := service.ClampFillLimit(q.Limit)

	dates := []string{q.DateUTC}
	if q.DateUTC == "" {
		all, err := s.client.SMembers(ctx, s.datesKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("list fill dates: %w", err)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(all)))
		dates = all
	}

	out := make([]model.Fill, 0, limit)
	for _, date := range dates {
		raw, err := s.client.LRange(ctx, s.fillsKey(date), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list fills %s: %w", date, err)
		}
		day := make([]model.Fill, 0, len(raw))
		for _, item := range raw {
			var f model.Fill
			if err := json.Unmarshal([]byte(item), &f); err != nil {
				continue
			}
			if q.Symbol != "" && !strings.EqualFold(f.Symbol, q.Symbol) {
				continue
			}
			day = append(day, f)
		}
		sort.SliceStable(day, func(i, j int) bool { return day[i].Timestamp.After(day[j].Timestamp) })
		for _, f := range day {
			out = append(out, f)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func encodeDayState(st model.DayState, updatedAt time.Time) map[string]any {
	cooldown := ""
	if st.CooldownUntil != nil {
		cooldown = st.CooldownUntil.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"date_utc":           st.DateUTC,
		"day_pnl":            st.DayPnL.String(),
		"max_day_pnl":        st.MaxDayPnL.String(),
		"trades_today":       st.TradesToday,
		"consecutive_losses": st.ConsecutiveLosses,
		"cooldown_until":     cooldown,
		"updated_at":         updatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeDayState(date string, vals map[string]string) (model.DayState, error) {
	st := model.NewDayState(date)
	var err error
	if v := vals["day_pnl"]; v != "" {
		if st.DayPnL, err = decimal.NewFromString(v); err != nil {
			return model.DayState{}, fmt.Errorf("day %s day_pnl: %w", date, err)
		}
	}
	if v := vals["max_day_pnl"]; v != "" {
		if st.MaxDayPnL, err = decimal.NewFromString(v); err != nil {
			return model.DayState{}, fmt.Errorf("day %s max_day_pnl: %w", date, err)
		}
	}
	if v := vals["trades_today"]; v != "" {
		if st.TradesToday, err = strconv.Atoi(v); err != nil {
			return model.DayState{}, fmt.Errorf("day %s trades_today: %w", date, err)
		}
	}
	if v := vals["consecutive_losses"]; v != "" {
		if st.ConsecutiveLosses, err = strconv.Atoi(v); err != nil {
			return model.DayState{}, fmt.Errorf("day %s consecutive_losses: %w", date, err)
		}
	}
	if v := vals["cooldown_until"]; v != "" {
		until, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return model.DayState{}, fmt.Errorf("day %s cooldown_until: %w", date, err)
		}
		until = until.UTC()
		st.CooldownUntil = &until
	}
	if v := vals["updated_at"]; v != "" {
		if st.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return model.DayState{}, fmt.Errorf("day %s updated_at: %w", date, err)
		}
		st.UpdatedAt = st.UpdatedAt.UTC()
	}
	return st, nil
}
