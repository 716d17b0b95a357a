package main

import (
	"errors"
	"time"

	"github.com/GoPolymarket/riskgate/internal/model"
	"github.com/spf13/cobra"
)

func newDayCmd(opts *rootOptions) *cobra.Command {
	day := &cobra.Command{
		Use:   "day",
		Short: "Show or reset the UTC day risk state",
	}
	day.AddCommand(newDayShowCmd(opts), newDayResetCmd(opts))
	return day
}

func newDayShowCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the day state and the active limits",
		Example: `  riskctl day show
  riskctl day show --date 2026-03-14 -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			now := a.Engine.Now()
			if date != "" {
				if now, err = model.ParseDateUTC(date); err != nil {
					return err
				}
			}
			st, err := a.Engine.GetDayState(ctx, now)
			if err != nil {
				return err
			}
			return render(opts.out, opts.output, map[string]any{
				"day_state": st,
				"drawdown":  st.Drawdown(),
				"config":    a.Engine.Config(),
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC date YYYY-MM-DD (default: today)")
	return cmd
}

func newDayResetCmd(opts *rootOptions) *cobra.Command {
	var (
		date string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero the day counters; recorded fills are kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset day state without --yes")
			}
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			reset, err := a.Engine.ResetDayState(ctx, date)
			if err != nil {
				return err
			}
			return render(opts.out, opts.output, map[string]any{
				"reset":    reset,
				"reset_at": time.Now().UTC(),
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "UTC date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
