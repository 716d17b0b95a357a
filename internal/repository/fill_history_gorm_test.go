package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormFillHistory_ListFills(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	history, err := NewGormFillHistory(mockDB)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fills" WHERE date_utc = $1 AND symbol = $2 ORDER BY ts DESC LIMIT $3`)).
		WithArgs("2026-03-14", "BTCUSDT", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "date_utc", "symbol", "side", "qty", "price", "pnl"}).
			AddRow("f-2", t0, "2026-03-14", "BTCUSDT", "SELL", "0.5", "61000", "-7.25").
			AddRow("f-1", t0, "2026-03-14", "BTCUSDT", "BUY", "0.5", "60000", "0"))

	fills, err := history.ListFills(context.Background(), model.FillQuery{DateUTC: "2026-03-14", Symbol: "btcusdt", Limit: 5})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "f-2", fills[0].ID)
	assert.Equal(t, "-7.25", fills[0].PnL.String())
	assert.Equal(t, "loss", fills[0].Outcome())
	require.NoError(t, mock.ExpectationsWereMet())
}
