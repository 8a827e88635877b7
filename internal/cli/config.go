package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mazurov/supabase-keepalive/internal/config"
	"github.com/mazurov/supabase-keepalive/internal/output"
	"github.com/mazurov/supabase-keepalive/internal/storage"
)

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithViper(opts.v)
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()

			if opts.json {
				return output.OutputJSON(opts.stdout, redacted, cfg.Validate())
			}

			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if _, err := opts.stdout.Write(data); err != nil {
				return err
			}

			reporter := output.NewReporter(opts.stdout, false)
			if err := cfg.Validate(); err != nil {
				reporter.Warning("%v", err)
			}
			if cfg.S3.Endpoint != "" {
				if _, _, err := storage.ParseEndpoint(cfg.S3.Endpoint); err != nil {
					reporter.Warning("%v", err)
				} else {
					reporter.Line(output.MarkerInfo, "%s", storage.HostRootedNote)
				}
			}
			return nil
		},
	}
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.stdout, "supabase-keepalive %s\n", Version)
		},
	}
}
