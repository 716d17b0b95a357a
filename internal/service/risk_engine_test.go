package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/riskgate/internal/pkg/clock"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(t *testing.T, cfg model.RiskConfig) (*RiskEngine, *MemoryDayStateStore, *clock.Manual) {
	t.Helper()
	store := NewMemoryDayStateStore()
	clk := clock.NewManual(t0)
	return NewRiskEngine(store, cfg, clk, WithLogger(logger.Discard())), store, clk
}

func recordPnL(t *testing.T, e *RiskEngine, ts time.Time, pnl string) model.DayState {
	t.Helper()
	st, err := e.RecordFill(context.Background(), model.Fill{
		Timestamp: ts,
		Symbol:    "BTCUSDT",
		Side:      "SELL",
		Qty:       dec("0.01"),
		Price:     dec("60000"),
		PnL:       dec(pnl),
	})
	require.NoError(t, err)
	return st
}

func TestAllowEntry_FreshDayAllows(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	got, err := e.AllowEntry(context.Background(), t0, "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.True(t, got.Allowed)
	assert.Equal(t, "Entry allowed", got.Reason)
	assert.Equal(t, model.GateAllowed, got.Gate)
}

func TestAllowEntry_DailyMaxLoss(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	recordPnL(t, e, t0, "-12")
	recordPnL(t, e, t0.Add(time.Minute), "-12")
	st := recordPnL(t, e, t0.Add(2*time.Minute), "-12")
	assert.True(t, st.DayPnL.Equal(dec("-36")))

	got, err := e.AllowEntry(context.Background(), t0.Add(time.Hour), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateDailyMaxLoss, got.Gate)
	assert.Equal(t, "Daily max loss reached: day PnL -36 <= limit -30", got.Reason)
}

func TestAllowEntry_DailyMaxLossBoundaryIsInclusive(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	recordPnL(t, e, t0, "-30")

	got, err := e.AllowEntry(context.Background(), t0.Add(time.Hour), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateDailyMaxLoss, got.Gate)
}

func TestAllowEntry_TrailDrawdownWhileProfitable(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	recordPnL(t, e, t0, "25")
	st := recordPnL(t, e, t0.Add(time.Minute), "-20")
	assert.True(t, st.DayPnL.Equal(dec("5")))
	assert.True(t, st.MaxDayPnL.Equal(dec("25")))

	got, err := e.AllowEntry(context.Background(), t0.Add(time.Hour), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateTrailDrawdown, got.Gate)
	assert.Equal(t, "Daily trail drawdown reached: 20 below peak 25 (day PnL 5) >= limit 20", got.Reason)
}

func TestAllowEntry_TradeCap(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	for i := 0; i < 6; i++ {
		recordPnL(t, e, t0.Add(time.Duration(i)*time.Minute), "1")
	}

	got, err := e.AllowEntry(context.Background(), t0.Add(time.Hour), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateMaxTrades, got.Gate)
	assert.Contains(t, got.Reason, "Max trades per day")
	assert.Equal(t, "Max trades per day reached: 6 >= 6", got.Reason)
}

func TestAllowEntry_CooldownLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	var st model.DayState
	for i := 0; i < 3; i++ {
		st = recordPnL(t, e, t0, "-5")
	}
	require.NotNil(t, st.CooldownUntil)
	assert.Equal(t, t0.Add(15*time.Minute), *st.CooldownUntil)

	got, err := e.AllowEntry(context.Background(), t0, "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateCooldown, got.Gate)
	assert.Contains(t, got.Reason, "cooldown")
	assert.Equal(t, "Loss cooldown active until 2026-03-14T10:15:00Z: 3 consecutive losses >= 3", got.Reason)

	got, err = e.AllowEntry(context.Background(), t0.Add(20*time.Minute), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.True(t, got.Allowed)
}

// The loss streak is cleared only by the next non-losing fill. Once the
// cooldown window passes, entries are allowed while the streak still reads
// at the threshold.
func TestAllowEntry_CooldownLagKeepsStreakUntilNextFill(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	for i := 0; i < 3; i++ {
		recordPnL(t, e, t0, "-5")
	}

	later := t0.Add(20 * time.Minute)
	got, err := e.AllowEntry(context.Background(), later, "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.True(t, got.Allowed)

	st, err := e.GetDayState(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ConsecutiveLosses, "streak is not reset by elapsed time")
	require.NotNil(t, st.CooldownUntil)

	// A fourth loss re-arms the cooldown from its own timestamp.
	st = recordPnL(t, e, later, "-1")
	assert.Equal(t, 4, st.ConsecutiveLosses)
	require.NotNil(t, st.CooldownUntil)
	assert.Equal(t, later.Add(15*time.Minute), *st.CooldownUntil)

	got, err = e.AllowEntry(context.Background(), later.Add(time.Minute), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.Equal(t, model.GateCooldown, got.Gate)
}

func TestAllowEntry_OnePositionPerSymbol(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	account := model.AccountState{Positions: []model.Position{
		{Symbol: "ETHUSDT", Size: dec("2")},
		{Symbol: "BTCUSDT", Size: dec("0.5")},
	}}

	got, err := e.AllowEntry(context.Background(), t0, "btcusdt", account)
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateOpenPosition, got.Gate)
	assert.Equal(t, "Position already open for BTCUSDT: size 0.5", got.Reason)

	got, err = e.AllowEntry(context.Background(), t0, "SOLUSDT", account)
	require.NoError(t, err)
	assert.True(t, got.Allowed)

	flat := model.AccountState{Positions: []model.Position{{Symbol: "BTCUSDT", Size: decimal.Zero}}}
	got, err = e.AllowEntry(context.Background(), t0, "BTCUSDT", flat)
	require.NoError(t, err)
	assert.True(t, got.Allowed)
}

func TestAllowEntry_OnePositionGateDisabled(t *testing.T) {
	cfg := model.DefaultRiskConfig()
	cfg.OnePositionPerSymbol = false
	e, _, _ := newTestEngine(t, cfg)

	account := model.AccountState{Positions: []model.Position{{Symbol: "BTCUSDT", Size: dec("1")}}}
	got, err := e.AllowEntry(context.Background(), t0, "BTCUSDT", account)
	require.NoError(t, err)
	assert.True(t, got.Allowed)
}

func TestAllowEntry_GateOrderShortCircuits(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	// Six losing fills breach max loss, trade cap and cooldown at once.
	for i := 0; i < 6; i++ {
		recordPnL(t, e, t0, "-6")
	}
	account := model.AccountState{Positions: []model.Position{{Symbol: "BTCUSDT", Size: dec("1")}}}

	got, err := e.AllowEntry(context.Background(), t0, "BTCUSDT", account)
	require.NoError(t, err)
	assert.Equal(t, model.GateDailyMaxLoss, got.Gate)
}

func TestAllowEntry_NewDayStartsClean(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	recordPnL(t, e, t0, "-40")

	got, err := e.AllowEntry(context.Background(), t0.Add(24*time.Hour), "BTCUSDT", model.AccountState{})
	require.NoError(t, err)
	assert.True(t, got.Allowed)
}

type failingStore struct{ err error }

func (s failingStore) GetDayState(context.Context, time.Time) (model.DayState, error) {
	return model.DayState{}, s.err
}

func (s failingStore) RecordFill(context.Context, model.Fill, model.CooldownPolicy) (model.DayState, error) {
	return model.DayState{}, s.err
}

func (s failingStore) ResetDayState(context.Context, string, time.Time) error { return s.err }

type recorderFunc func(model.DecisionRecord)

func (f recorderFunc) Record(rec model.DecisionRecord) { f(rec) }

func TestAllowEntry_FailsClosedOnStoreError(t *testing.T) {
	var recorded []model.DecisionRecord
	e := NewRiskEngine(failingStore{err: errors.New("connection refused")}, model.DefaultRiskConfig(),
		clock.NewManual(t0), WithLogger(logger.Discard()),
		WithDecisionRecorder(recorderFunc(func(r model.DecisionRecord) { recorded = append(recorded, r) })))

	got, err := e.AllowEntry(context.Background(), t0, "BTCUSDT", model.AccountState{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrStateUnavailable))
	assert.False(t, got.Allowed)
	assert.Equal(t, model.GateStateUnavailable, got.Gate)
	require.Len(t, recorded, 1)
	assert.Equal(t, model.GateStateUnavailable, recorded[0].Gate)

	_, err = e.RecordFill(context.Background(), model.Fill{Symbol: "BTCUSDT", Side: "BUY", Qty: dec("1"), Price: dec("1")})
	assert.True(t, apperrors.IsType(err, apperrors.ErrStateUnavailable))
}

func TestAllowEntry_RecordsDecisions(t *testing.T) {
	var recorded []model.DecisionRecord
	store := NewMemoryDayStateStore()
	e := NewRiskEngine(store, model.DefaultRiskConfig(), clock.NewManual(t0), WithLogger(logger.Discard()),
		WithDecisionRecorder(recorderFunc(func(r model.DecisionRecord) { recorded = append(recorded, r) })))

	_, err := e.AllowEntry(context.Background(), t0, "ethusdt", model.AccountState{})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.NotEmpty(t, recorded[0].ID)
	assert.Equal(t, "ETHUSDT", recorded[0].Symbol)
	assert.True(t, recorded[0].Allowed)
	assert.Equal(t, "2026-03-14", recorded[0].DateUTC)
}

func TestNewRiskEngine_PanicsOnBadWiring(t *testing.T) {
	assert.Panics(t, func() { NewRiskEngine(nil, model.DefaultRiskConfig(), clock.System{}) })
	assert.Panics(t, func() { NewRiskEngine(NewMemoryDayStateStore(), model.DefaultRiskConfig(), nil) })

	bad := model.DefaultRiskConfig()
	bad.DailyMaxLoss = dec("30")
	assert.Panics(t, func() { NewRiskEngine(NewMemoryDayStateStore(), bad, clock.System{}) })
}

func TestRecordFill_Normalizes(t *testing.T) {
	e, store, clk := newTestEngine(t, model.DefaultRiskConfig())
	clk.Set(time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC))

	st, err := e.RecordFill(context.Background(), model.Fill{
		Symbol: " btcusdt ",
		Side:   "long",
		Qty:    dec("0.5"),
		Price:  dec("60000"),
		PnL:    dec("3"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", st.DateUTC)

	fills, err := store.ListFills(context.Background(), model.FillQuery{})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "BTCUSDT", fills[0].Symbol)
	assert.Equal(t, model.SideBuy, fills[0].Side)
	assert.NotEmpty(t, fills[0].ID)
	assert.Equal(t, clk.Now(), fills[0].Timestamp)
	assert.Equal(t, "2026-03-14", fills[0].DateUTC)
}

func TestRecordFill_UsesFillDateNotClock(t *testing.T) {
	e, _, clk := newTestEngine(t, model.DefaultRiskConfig())
	clk.Set(t0.Add(48 * time.Hour))

	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2026, 3, 15, 2, 0, 0, 0, loc) // 2026-03-14T17:00Z
	st, err := e.RecordFill(context.Background(), model.Fill{
		Timestamp: ts, Symbol: "BTCUSDT", Side: "SELL", Qty: dec("1"), Price: dec("1"), PnL: dec("-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", st.DateUTC)
}

func TestRecordFill_RejectsInvalidFill(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	cases := map[string]model.Fill{
		"no symbol":      {Side: "BUY", Qty: dec("1"), Price: dec("1")},
		"bad side":       {Symbol: "BTCUSDT", Side: "HOLD", Qty: dec("1"), Price: dec("1")},
		"zero qty":       {Symbol: "BTCUSDT", Side: "BUY", Qty: decimal.Zero, Price: dec("1")},
		"negative price": {Symbol: "BTCUSDT", Side: "BUY", Qty: dec("1"), Price: dec("-1")},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.RecordFill(context.Background(), f)
			assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestRecordFill_ConcurrentFillsAreAtomic(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pnl := "1"
			if i%2 == 0 {
				pnl = "-1"
			}
			_, err := e.RecordFill(context.Background(), model.Fill{
				Timestamp: t0.Add(time.Duration(i) * time.Second),
				Symbol:    "BTCUSDT", Side: "BUY", Qty: dec("1"), Price: dec("1"), PnL: dec(pnl),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := e.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, n, st.TradesToday)
	assert.True(t, st.DayPnL.IsZero(), "day pnl %s", st.DayPnL)
}

func TestResetDayState(t *testing.T) {
	e, store, clk := newTestEngine(t, model.DefaultRiskConfig())
	recordPnL(t, e, t0, "-40")
	clk.Set(t0.Add(90 * time.Minute))

	date, err := e.ResetDayState(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", date)

	st, err := e.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.True(t, st.DayPnL.IsZero())
	assert.Equal(t, 0, st.TradesToday)
	assert.Equal(t, t0.Add(90*time.Minute), st.UpdatedAt)

	fills, err := store.ListFills(context.Background(), model.FillQuery{})
	require.NoError(t, err)
	assert.Len(t, fills, 1, "reset keeps the fills log")

	_, err = e.ResetDayState(context.Background(), "14/03/2026")
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidInput))
}

func TestDayState_MaxPnLIsMonotonic(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	prevMax := decimal.Zero
	for i, pnl := range []string{"3", "-1", "4", "-2", "-2", "1"} {
		st := recordPnL(t, e, t0.Add(time.Duration(i)*time.Minute), pnl)
		assert.True(t, st.MaxDayPnL.GreaterThanOrEqual(prevMax), "step %d", i)
		assert.True(t, st.MaxDayPnL.GreaterThanOrEqual(st.DayPnL), "step %d", i)
		prevMax = st.MaxDayPnL
	}
	assert.Equal(t, "6", prevMax.String())
}

func TestDayState_WinResetsStreak(t *testing.T) {
	e, _, _ := newTestEngine(t, model.DefaultRiskConfig())
	recordPnL(t, e, t0, "-1")
	recordPnL(t, e, t0, "-1")
	st := recordPnL(t, e, t0, "-1")
	require.NotNil(t, st.CooldownUntil)

	st = recordPnL(t, e, t0.Add(time.Minute), "0")
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.Nil(t, st.CooldownUntil)
}

func TestMemoryStore_GetDayStateIdempotent(t *testing.T) {
	store := NewMemoryDayStateStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.GetDayState(context.Background(), t0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.days, 1)
	first, _ := store.GetDayState(context.Background(), t0)
	second, _ := store.GetDayState(context.Background(), t0.Add(time.Hour))
	assert.Equal(t, first, second)
}

func TestMemoryStore_ListFillsFilters(t *testing.T) {
	store := NewMemoryDayStateStore()
	policy := model.DefaultRiskConfig().CooldownPolicy()
	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		_, err := store.RecordFill(context.Background(), model.Fill{
			ID: fmt.Sprintf("f%d", i), Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Symbol: sym, Side: "BUY", Qty: dec("1"), Price: dec("1"), PnL: dec("1"),
		}, policy)
		require.NoError(t, err)
	}
	_, err := store.RecordFill(context.Background(), model.Fill{
		ID: "next-day", Timestamp: t0.Add(24 * time.Hour), Symbol: "BTCUSDT", Side: "BUY", Qty: dec("1"), Price: dec("1"),
	}, policy)
	require.NoError(t, err)

	fills, err := store.ListFills(context.Background(), model.FillQuery{DateUTC: "2026-03-14", Symbol: "btcusdt"})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "f2", fills[0].ID)
	assert.Equal(t, "f0", fills[1].ID)

	fills, err = store.ListFills(context.Background(), model.FillQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "next-day", fills[0].ID)
}

func TestRecordFill_DuplicateIDIsRejected(t *testing.T) {
	e, store, _ := newTestEngine(t, model.DefaultRiskConfig())
	fill := model.Fill{ID: "exch-42", Timestamp: t0, Symbol: "BTCUSDT", Side: "SELL", Qty: dec("1"), Price: dec("1"), PnL: dec("-5")}

	_, err := e.RecordFill(context.Background(), fill)
	require.NoError(t, err)
	_, err = e.RecordFill(context.Background(), fill)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrDuplicateFill), "got %v", err)
	assert.ErrorIs(t, err, ErrDuplicateFill)

	st, err := e.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, "-5", st.DayPnL.String())
	assert.Equal(t, 1, st.ConsecutiveLosses)

	fills, err := store.ListFills(context.Background(), model.FillQuery{})
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestMemoryStore_ListFillsLimitKeepsNewest(t *testing.T) {
	store := NewMemoryDayStateStore()
	policy := model.DefaultRiskConfig().CooldownPolicy()
	for _, f := range []model.Fill{
		{ID: "late", Timestamp: t0.Add(time.Hour)},
		{ID: "early", Timestamp: t0},
		{ID: "middle", Timestamp: t0.Add(30 * time.Minute)},
	} {
		f.Symbol, f.Side, f.Qty, f.Price = "BTCUSDT", "BUY", dec("1"), dec("1")
		_, err := store.RecordFill(context.Background(), f, policy)
		require.NoError(t, err)
	}

	fills, err := store.ListFills(context.Background(), model.FillQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "late", fills[0].ID)
	assert.Equal(t, "middle", fills[1].ID)
}
