// Package exchange holds the per-symbol exchange order constraints and the
// decimal snapping that keeps prices and quantities on the exchange grid.
package exchange

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/GoPolymarket/riskgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

const DefaultSymbol = "BTCUSDT"

func filter(symbol, tick, step, minQty, maxQty, minNotional, ref string) model.ExchangeFilter {
	return model.ExchangeFilter{
		Symbol:         symbol,
		TickSize:       decimal.RequireFromString(tick),
		StepSize:       decimal.RequireFromString(step),
		MinQty:         decimal.RequireFromString(minQty),
		MaxQty:         decimal.RequireFromString(maxQty),
		MinNotional:    decimal.RequireFromString(minNotional),
		ReferencePrice: decimal.RequireFromString(ref),
	}
}

// BuiltinFilters mirrors the USDT perpetual filters of the symbols the agent trades.
func BuiltinFilters() []model.ExchangeFilter {
	return []model.ExchangeFilter{
		filter("BTCUSDT", "0.1", "0.001", "0.001", "1000", "5", "60000"),
		filter("ETHUSDT", "0.01", "0.001", "0.001", "10000", "5", "3000"),
		filter("SOLUSDT", "0.01", "0.01", "0.01", "100000", "5", "150"),
		filter("BNBUSDT", "0.01", "0.001", "0.001", "10000", "5", "550"),
		filter("XRPUSDT", "0.0001", "0.1", "0.1", "10000000", "5", "0.5"),
	}
}

// FilterTable answers per-symbol filter lookups. It is immutable after construction.
type FilterTable struct {
	filters       map[string]model.ExchangeFilter
	defaultSymbol string
	log           *slog.Logger
}

// NewFilterTable indexes filters by symbol; later entries replace earlier ones.
// The default symbol must be present so that Lookup can always answer.
func NewFilterTable(defaultSymbol string, filters []model.ExchangeFilter, log *slog.Logger) (*FilterTable, error) {
	t := &FilterTable{
		filters:       make(map[string]model.ExchangeFilter, len(filters)),
		defaultSymbol: normalizeSymbol(defaultSymbol),
		log:           logger.OrDefault(log),
	}
	if t.defaultSymbol == "" {
		t.defaultSymbol = DefaultSymbol
	}
	for _, f := range filters {
		f.Symbol = normalizeSymbol(f.Symbol)
		if f.Symbol == "" {
			return nil, fmt.Errorf("exchange filter without symbol")
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		t.filters[f.Symbol] = f
	}
	if _, ok := t.filters[t.defaultSymbol]; !ok {
		return nil, fmt.Errorf("default symbol %s has no exchange filter", t.defaultSymbol)
	}
	return t, nil
}

// DefaultFilterTable is the built-in table keyed on DefaultSymbol.
func DefaultFilterTable() *FilterTable {
	t, err := NewFilterTable(DefaultSymbol, BuiltinFilters(), nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the filter for symbol. Unknown symbols get the default
// symbol's filter and found=false.
func (t *FilterTable) Lookup(symbol string) (model.ExchangeFilter, bool) {
	sym := normalizeSymbol(symbol)
	if f, ok := t.filters[sym]; ok {
		return f, true
	}
	t.log.Warn("unknown symbol, using default exchange filter",
		"symbol", sym,
		"default_symbol", t.defaultSymbol,
	)
	metrics.FilterFallbacks.WithLabelValues(sym).Inc()
	return t.filters[t.defaultSymbol], false
}

func (t *FilterTable) DefaultSymbol() string {
	return t.defaultSymbol
}

func (t *FilterTable) Symbols() []string {
	out := make([]string, 0, len(t.filters))
	for sym := range t.filters {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
