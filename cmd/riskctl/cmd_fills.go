package main

import (
	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/spf13/cobra"
)

func newFillsCmd(opts *rootOptions) *cobra.Command {
	fills := &cobra.Command{
		Use:   "fills",
		Short: "Inspect recorded fills",
	}

	var q model.FillQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List fills, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if q.DateUTC != "" {
				if _, err := model.ParseDateUTC(q.DateUTC); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Fills.ListFills(ctx, q)
			if err != nil {
				return err
			}
			return render(opts.out, opts.output, map[string]any{"fills": out, "count": len(out)})
		},
	}
	list.Flags().StringVar(&q.DateUTC, "date", "", "UTC date YYYY-MM-DD")
	list.Flags().StringVar(&q.Symbol, "symbol", "", "Symbol filter")
	list.Flags().IntVar(&q.Limit, "limit", 100, "Maximum fills (max 1000)")

	fills.AddCommand(list)
	return fills
}
