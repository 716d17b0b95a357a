package main

import (
	"fmt"
	"strings"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		symbol    string
		positions []string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Ask whether a new entry is allowed now",
		Example: `  riskctl check --symbol BTCUSDT
  riskctl check --symbol BTCUSDT --position BTCUSDT=0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parsePositions(positions)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			dec, err := a.Engine.AllowEntry(ctx, a.Engine.Now(), symbol, account)
			if rerr := render(opts.out, opts.output, dec); rerr != nil {
				return rerr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Symbol, e.g. BTCUSDT")
	cmd.Flags().StringArrayVar(&positions, "position", nil, "Open position SYMBOL=SIZE (repeatable)")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func parsePositions(raw []string) (model.AccountState, error) {
	var account model.AccountState
	for _, p := range raw {
		sym, size, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(sym) == "" {
			return account, fmt.Errorf("--position %q: want SYMBOL=SIZE", p)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(size))
		if err != nil {
			return account, fmt.Errorf("--position %q: %w", p, err)
		}
		account.Positions = append(account.Positions, model.Position{Symbol: strings.TrimSpace(sym), Size: d})
	}
	return account, nil
}
