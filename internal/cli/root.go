// Package cli wires the keep-alive job into cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mazurov/supabase-keepalive/internal/config"
	"github.com/mazurov/supabase-keepalive/internal/exitcode"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

// defaultEnvFile is loaded when present and --env-file is not given
const defaultEnvFile = ".env"

// options holds the flag values that are not part of the viper config
type options struct {
	envFile string
	json    bool
	skip    []string

	stdout io.Writer
	stderr io.Writer
	v      *viper.Viper
}

// NewRootCmd builds the command tree. The root command runs the full job.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr, v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "supabase-keepalive",
		Short: "Keep a Supabase project active",
		Long: `supabase-keepalive issues a small set of lightweight calls against the
database, auth, storage and realtime surfaces of a Supabase project so that
free-tier inactivity pausing never triggers. Run it from any scheduler.

Required environment: SUPABASE_URL, SUPABASE_KEY.
Optional test account: TEST_EMAIL or TEST_USERNAME, TEST_PASSWORD, TEST_PHONE.

Optional direct checks: KEEPALIVE_DATABASE_URL enables a Postgres count and
KEEPALIVE_S3_ENDPOINT enables an S3 bucket listing. The S3 check only works
against host-rooted endpoints (host[:port]); Supabase's /storage/v1/s3 path
cannot be reached and is rejected.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.loadEnvFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeepAlive(cmd, opts, false)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error (or KEEPALIVE_LOG_LEVEL)")
	flags.String("log-format", "auto", "Log format: json, text, auto (or KEEPALIVE_LOG_FORMAT)")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout (or KEEPALIVE_HTTP_TIMEOUT)")
	flags.Duration("realtime-wait", 3*time.Second, "How long to stay subscribed to the realtime channel (or KEEPALIVE_REALTIME_WAIT)")
	flags.BoolVar(&opts.json, "json", false, "Print the run summary as JSON instead of the console report")
	flags.StringSliceVar(&opts.skip, "skip", nil, "Check names or surfaces to skip, e.g. realtime,storage.objects")

	// Bind flags to viper; flags win over environment variables
	_ = opts.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = opts.v.BindPFlag("supabase.timeout", flags.Lookup("timeout"))
	_ = opts.v.BindPFlag("probe.realtime_wait", flags.Lookup("realtime-wait"))

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newAuthCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))

	return rootCmd
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitcode.FromError(err)
}

// loadEnvFile populates the environment from a .env file. Variables already
// set in the environment are kept. A missing default file is not an error.
func (o *options) loadEnvFile(cmd *cobra.Command, args []string) error {
	path := o.envFile
	if path == "" {
		path = defaultEnvFile
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}

	if err := godotenv.Load(path); err != nil {
		return exitcode.WithCode(exitcode.ExitFailure, fmt.Errorf("failed to load env file %s: %w", path, err))
	}
	return nil
}
