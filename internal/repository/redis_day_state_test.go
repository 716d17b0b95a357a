package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/riskgate/internal/middleware"
	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/service"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func redisFill(id string, ts time.Time, symbol, pnl string) model.Fill {
	return model.Fill{
		ID: id, Timestamp: ts, Symbol: symbol, Side: model.SideBuy,
		Qty: decimal.RequireFromString("1"), Price: decimal.RequireFromString("100"),
		PnL: decimal.RequireFromString(pnl),
	}
}

func TestRedisStore_GetDayStateIsIdempotent(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")

	first, err := store.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", first.DateUTC)
	assert.True(t, first.DayPnL.IsZero())

	second, err := store.GetDayState(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "second read must not recreate the row")
	assert.True(t, mr.Exists("test:day:2026-03-14"))
}

func TestRedisStore_RecordFillAppliesTransition(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")
	policy := model.CooldownPolicy{MaxConsecutiveLosses: 2, Cooldown: 15 * time.Minute}

	_, err := store.RecordFill(context.Background(), redisFill("a", t0, "BTCUSDT", "10"), policy)
	require.NoError(t, err)
	_, err = store.RecordFill(context.Background(), redisFill("b", t0.Add(time.Minute), "BTCUSDT", "-4"), policy)
	require.NoError(t, err)
	st, err := store.RecordFill(context.Background(), redisFill("c", t0.Add(2*time.Minute), "ETHUSDT", "-3"), policy)
	require.NoError(t, err)

	assert.Equal(t, "3", st.DayPnL.String())
	assert.Equal(t, "10", st.MaxDayPnL.String())
	assert.Equal(t, 3, st.TradesToday)
	assert.Equal(t, 2, st.ConsecutiveLosses)
	require.NotNil(t, st.CooldownUntil)
	assert.Equal(t, t0.Add(17*time.Minute), *st.CooldownUntil)

	read, err := store.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.True(t, read.DayPnL.Equal(st.DayPnL))
	require.NotNil(t, read.CooldownUntil)
	assert.True(t, read.CooldownUntil.Equal(*st.CooldownUntil))

	items, err := mr.List("test:fills:2026-03-14")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRedisStore_ConcurrentFills(t *testing.T) {
	_, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.RecordFill(context.Background(),
				redisFill(fmt.Sprintf("f%d", i), t0.Add(time.Duration(i)*time.Second), "BTCUSDT", "1"),
				model.CooldownPolicy{MaxConsecutiveLosses: 3})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := store.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, n, st.TradesToday)
	assert.Equal(t, "10", st.DayPnL.String())
}

func TestRedisStore_ResetKeepsFills(t *testing.T) {
	_, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")
	_, err := store.RecordFill(context.Background(), redisFill("a", t0, "BTCUSDT", "-40"), model.CooldownPolicy{})
	require.NoError(t, err)

	resetAt := t0.Add(3 * time.Hour)
	require.NoError(t, store.ResetDayState(context.Background(), "2026-03-14", resetAt))
	st, err := store.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.True(t, st.DayPnL.IsZero())
	assert.Equal(t, 0, st.TradesToday)
	assert.True(t, st.UpdatedAt.Equal(resetAt), "updated_at %s", st.UpdatedAt)

	fills, err := store.ListFills(context.Background(), model.FillQuery{})
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestRedisStore_ListFills(t *testing.T) {
	_, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")
	policy := model.CooldownPolicy{}
	for _, f := range []model.Fill{
		redisFill("d1-btc", t0, "BTCUSDT", "1"),
		redisFill("d1-eth", t0.Add(time.Hour), "ETHUSDT", "1"),
		redisFill("d2-btc", t0.Add(24*time.Hour), "BTCUSDT", "1"),
	} {
		_, err := store.RecordFill(context.Background(), f, policy)
		require.NoError(t, err)
	}

	all, err := store.ListFills(context.Background(), model.FillQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"d2-btc", "d1-eth", "d1-btc"}, []string{all[0].ID, all[1].ID, all[2].ID})

	btc, err := store.ListFills(context.Background(), model.FillQuery{DateUTC: "2026-03-14", Symbol: "btcusdt"})
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, "d1-btc", btc[0].ID)

	limited, err := store.ListFills(context.Background(), model.FillQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRedisStore_DuplicateFillIDIsRejected(t *testing.T) {
	_, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")

	_, err := store.RecordFill(context.Background(), redisFill("same", t0, "BTCUSDT", "-5"), model.CooldownPolicy{})
	require.NoError(t, err)
	_, err = store.RecordFill(context.Background(), redisFill("same", t0.Add(time.Minute), "BTCUSDT", "-5"), model.CooldownPolicy{})
	require.ErrorIs(t, err, service.ErrDuplicateFill)

	st, err := store.GetDayState(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, "-5", st.DayPnL.String())

	fills, err := store.ListFills(context.Background(), model.FillQuery{})
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestRedisStore_BackendDown(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisDayStateStore(client, "test")
	mr.Close()

	_, err := store.GetDayState(context.Background(), t0)
	assert.Error(t, err)
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisIdempotencyStore(client, "test", time.Hour)

	rec, hit := store.GetOrLock("k1")
	assert.False(t, hit)
	assert.Nil(t, rec)

	rec, hit = store.GetOrLock("k1")
	require.True(t, hit)
	assert.True(t, rec.Processing)

	store.Save("k1", 201, []byte(`{"ok":true}`))
	rec, hit = store.GetOrLock("k1")
	require.True(t, hit)
	assert.False(t, rec.Processing)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Body))
	assert.Equal(t, time.Hour, mr.TTL("test:idem:k1"))

	store.Unlock("k1")
	_, hit = store.GetOrLock("k1")
	assert.False(t, hit)

	var _ middleware.IdempotencyStore = store
}

func TestRedisIdempotencyStore_UnreadableRecordIsNotALock(t *testing.T) {
	mr, client := newMiniRedis(t)
	store := NewRedisIdempotencyStore(client, "test", time.Hour)

	require.NoError(t, mr.Set("test:idem:corrupt", "not a record"))
	rec, hit := store.GetOrLock("corrupt")
	require.True(t, hit)
	assert.True(t, rec.Processing)

	mr.Close()
	rec, hit = store.GetOrLock("k-down")
	require.True(t, hit, "an unreachable backend must not grant the lock")
	assert.True(t, rec.Processing)
}

func TestRedisDecisionRepo(t *testing.T) {
	_, client := newMiniRedis(t)
	repo := NewRedisDecisionRepo(client, "test", 3)

	for i, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT", "BTCUSDT"} {
		require.NoError(t, repo.Insert(context.Background(), &model.DecisionRecord{
			ID: fmt.Sprintf("d%d", i), Symbol: sym, Gate: model.GateAllowed, Allowed: true, EvaluatedAt: t0,
		}))
	}

	all, err := repo.List(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3, "list is capped")
	assert.Equal(t, "d3", all[0].ID)

	btc, err := repo.List(context.Background(), "btcusdt", 10)
	require.NoError(t, err)
	assert.Len(t, btc, 2)
}
