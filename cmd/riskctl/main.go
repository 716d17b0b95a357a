// Command riskctl inspects and operates the risk state shared with the
// riskgate server: day state, fills, sizing and entry checks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/GoPolymarket/riskgate/internal/app"
	"github.com/GoPolymarket/riskgate/internal/config"
	"github.com/GoPolymarket/riskgate/internal/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	output     string
	logLevel   string
	out        io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Operate the riskgate day state",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(opts.output)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: ./config.yaml or ./configs/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "Output format (json|yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr")

	root.AddCommand(
		newDayCmd(opts),
		newFillsCmd(opts),
		newSizeCmd(opts),
		newCheckCmd(opts),
	)
	return root
}

// openApp loads configuration and connects the configured store. Decisions
// made from the CLI are not written to the audit directory.
func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Audit.Dir = ""

	return app.Build(ctx, cfg, logger.New(os.Stderr, o.logLevel))
}
