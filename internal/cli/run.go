package cli

import (
	"github.com/spf13/cobra"

	"github.com/mazurov/supabase-keepalive/internal/config"
	"github.com/mazurov/supabase-keepalive/internal/exitcode"
	"github.com/mazurov/supabase-keepalive/internal/keepalive"
	"github.com/mazurov/supabase-keepalive/internal/logging"
	"github.com/mazurov/supabase-keepalive/internal/output"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the auth probe chain and every smoke check (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeepAlive(cmd, opts, false)
		},
	}
}

func newAuthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Run only the auth probe chain",
		Long: `Run only the auth probe chain: credential login, directory lookup,
anonymous session and synthetic password reset, stopping at the first
strategy that registers auth activity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeepAlive(cmd, opts, true)
		},
	}
}

// runKeepAlive loads configuration and performs one run. Only invalid
// configuration and unhandled panics fail the command.
func runKeepAlive(cmd *cobra.Command, opts *options, authOnly bool) error {
	reporter := output.NewReporter(opts.stdout, opts.json)

	cfg, err := config.LoadWithViper(opts.v)
	if err != nil {
		return opts.fail(reporter, err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, opts.stderr)

	summary, err := keepalive.Run(cmd.Context(), cfg, keepalive.Options{
		Logger:   logger,
		Reporter: reporter,
		Skip:     opts.skip,
		AuthOnly: authOnly,
	})
	if err != nil {
		if config.IsMissing(err) {
			logger.Error("Missing Supabase credentials", "error", err)
		}
		return opts.fail(reporter, err)
	}

	if opts.json {
		return output.OutputJSON(opts.stdout, summary, nil)
	}
	return nil
}

func (o *options) fail(reporter *output.Reporter, err error) error {
	reporter.Failure("%v", err)
	if o.json {
		_ = output.OutputJSON(o.stdout, nil, err)
	}
	return exitcode.WithCode(exitcode.ExitFailure, err)
}
