package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSizeCmd(opts *rootOptions) *cobra.Command {
	var symbol, risk, entry, stop string
	cmd := &cobra.Command{
		Use:     "size",
		Short:   "Size a position from a risk amount and stop distance",
		Example: `  riskctl size --symbol BTCUSDT --risk 10 --entry 60000 --stop 59500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseDecimals(map[string]string{"risk": risk, "entry": entry, "stop": stop})
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			params, err := a.Sizer.CalculatePositionSize(symbol, vals["risk"], vals["entry"], vals["stop"])
			if err != nil {
				return err
			}
			return render(opts.out, opts.output, params)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Symbol, e.g. BTCUSDT")
	cmd.Flags().StringVar(&risk, "risk", "", "Amount to lose at the stop, in quote currency")
	cmd.Flags().StringVar(&entry, "entry", "", "Entry price")
	cmd.Flags().StringVar(&stop, "stop", "", "Stop-loss price")
	for _, f := range []string{"symbol", "risk", "entry", "stop"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func parseDecimals(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for name, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		out[name] = d
	}
	return out, nil
}
