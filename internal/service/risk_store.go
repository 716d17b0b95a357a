package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
)

// DayStateStore owns the per-UTC-day risk rows. RecordFill is the only
// mutator besides ResetDayState and must be atomic per date.
type DayStateStore interface {
	GetDayState(ctx context.Context, now time.Time) (model.DayState, error)
	RecordFill(ctx context.Context, fill model.Fill, policy model.CooldownPolicy) (model.DayState, error)
	ResetDayState(ctx context.Context, dateUTC string, at time.Time) error
}

// ErrDuplicateFill is returned by RecordFill when the fill ID was already
// booked. The day state is left untouched.
var ErrDuplicateFill = errors.New("fill already recorded")

// FillLog reads the append-only fills log. The risk engine never reads it.
type FillLog interface {
	ListFills(ctx context.Context, q model.FillQuery) ([]model.Fill, error)
}

const (
	defaultFillLimit = 100
	maxFillLimit     = 1000
)

// ClampFillLimit applies the default and maximum page size of fill listings.
func ClampFillLimit(limit int) int {
	if limit <= 0 || limit > maxFillLimit {
		return defaultFillLimit
	}
	return limit
}

// MemoryDayStateStore keeps day state in process. A single RWMutex
// serializes fills; readers get value copies.
type MemoryDayStateStore struct {
	mu    sync.RWMutex
	days  map[string]model.DayState // Key: YYYY-MM-DD
	fills []model.Fill
	ids   map[string]struct{}
}

func NewMemoryDayStateStore() *MemoryDayStateStore {
	return &MemoryDayStateStore{
		days: make(map[string]model.DayState),
		ids:  make(map[string]struct{}),
	}
}

func (s *MemoryDayStateStore) GetDayState(ctx context.Context, now time.Time) (model.DayState, error) {
	if err := ctx.Err(); err != nil {
		return model.DayState{}, err
	}
	date := model.DateUTC(now)

	s.mu.RLock()
	st, ok := s.days[date]
	s.mu.RUnlock()
	if ok {
		return st.Clone(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another caller may have created the row meanwhile.
	if st, ok = s.days[date]; !ok {
		st = model.NewDayState(date)
		st.UpdatedAt = now.UTC()
		s.days[date] = st
	}
	return st.Clone(), nil
}

func (s *MemoryDayStateStore) RecordFill(ctx context.Context, fill model.Fill, policy model.CooldownPolicy) (model.DayState, error) {
	if err := ctx.Err(); err != nil {
		return model.DayState{}, err
	}
	date := model.DateUTC(fill.Timestamp)
	fill.DateUTC = date

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[fill.ID]; dup {
		return model.DayState{}, fmt.Errorf("%w: %s", ErrDuplicateFill, fill.ID)
	}
	st, ok := s.days[date]
	if !ok {
		st = model.NewDayState(date)
	}
	next := model.ApplyFill(st, fill, policy)
	s.days[date] = next
	s.fills = append(s.fills, fill)
	s.ids[fill.ID] = struct{}{}
	return next.Clone(), nil
}

func (s *MemoryDayStateStore) ResetDayState(ctx context.Context, dateUTC string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := model.ParseDateUTC(dateUTC); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.NewDayState(dateUTC)
	st.UpdatedAt = at.UTC()
	s.days[dateUTC] = st
	return nil
}

// ListFills returns matching fills, newest first.
func (s *MemoryDayStateStore) ListFills(ctx context.Context, q model.FillQuery) ([]model.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := ClampFillLimit(q.Limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Fill, 0, limit)
	for i := len(s.fills) - 1; i >= 0; i-- {
		f := s.fills[i]
		if q.DateUTC != "" && f.DateUTC != q.DateUTC {
			continue
		}
		if q.Symbol != "" && !strings.EqualFold(f.Symbol, q.Symbol) {
			continue
		}
		out = append(out, f)
	}
	// Fills may arrive out of timestamp order, so sort before cutting the page.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
