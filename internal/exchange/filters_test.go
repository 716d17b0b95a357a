package exchange

import (
	"testing"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterTable_LookupKnownAndFallback(t *testing.T) {
	table, err := NewFilterTable("", BuiltinFilters(), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultSymbol, table.DefaultSymbol())

	f, found := table.Lookup(" ethusdt ")
	assert.True(t, found)
	assert.Equal(t, "ETHUSDT", f.Symbol)

	f, found = table.Lookup("DOGEUSDT")
	assert.False(t, found)
	assert.Equal(t, DefaultSymbol, f.Symbol)
}

func TestFilterTable_OverridesAndValidation(t *testing.T) {
	override := model.ExchangeFilter{
		Symbol:      "BTCUSDT",
		TickSize:    d("0.5"),
		StepSize:    d("0.01"),
		MinQty:      d("0.01"),
		MaxQty:      d("50"),
		MinNotional: d("100"),
	}
	table, err := NewFilterTable("BTCUSDT", append(BuiltinFilters(), override), logger.Discard())
	require.NoError(t, err)
	f, _ := table.Lookup("BTCUSDT")
	assert.True(t, f.TickSize.Equal(d("0.5")))

	bad := override
	bad.StepSize = d("0")
	_, err = NewFilterTable("BTCUSDT", []model.ExchangeFilter{bad}, logger.Discard())
	assert.Error(t, err)

	_, err = NewFilterTable("DOGEUSDT", BuiltinFilters(), logger.Discard())
	assert.ErrorContains(t, err, "default symbol")
}

func TestFilterTable_Symbols(t *testing.T) {
	table := DefaultFilterTable()
	assert.Equal(t, []string{"BNBUSDT", "BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}, table.Symbols())
}
