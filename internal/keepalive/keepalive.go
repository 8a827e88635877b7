// Package keepalive runs one complete keep-alive pass: the authentication
// probe chain followed by the smoke checks of every surface.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/mazurov/supabase-keepalive/internal/authprobe"
	"github.com/mazurov/supabase-keepalive/internal/config"
	"github.com/mazurov/supabase-keepalive/internal/database"
	"github.com/mazurov/supabase-keepalive/internal/output"
	"github.com/mazurov/supabase-keepalive/internal/realtime"
	"github.com/mazurov/supabase-keepalive/internal/smoke"
	"github.com/mazurov/supabase-keepalive/internal/storage"
	"github.com/mazurov/supabase-keepalive/internal/supabase"
)

// RealtimeChannel is the channel joined by the realtime check
const RealtimeChannel = "keepalive"

// Options configures a run
type Options struct {
	Logger   *slog.Logger
	Reporter *output.Reporter
	// Skip lists check names or surfaces to leave out
	Skip []string
	// AuthOnly stops after the probe chain
	AuthOnly bool
	// HTTPClient replaces the default client for every REST call
	HTTPClient *http.Client
}

// Summary is the outcome of one run
type Summary struct {
	RunID      string              `json:"run_id"`
	Project    string              `json:"project"`
	KeyRole    string              `json:"key_role,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	DurationMS int64               `json:"duration_ms"`
	Auth       authprobe.Result    `json:"auth"`
	Checks     []smoke.CheckResult `json:"checks"`
}

// Counts tallies check results by status
func (s *Summary) Counts() (passed, failed, skipped int) {
	for _, c := range s.Checks {
		switch c.Status {
		case smoke.StatusPassed:
			passed++
		case smoke.StatusFailed:
			failed++
		case smoke.StatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// PanicError is returned when a run panicked
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unhandled error: %v", e.Value)
}

// Run validates cfg and performs one keep-alive pass. Invalid configuration
// is returned before any network call. Individual auth and check failures
// are recorded in the summary and never returned; only configuration errors
// and panics produce an error.
func Run(ctx context.Context, cfg *config.Config, opts Options) (summary *Summary, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = output.NewReporter(nil, true)
	}

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error("Unhandled error during keep-alive run",
				"panic", fmt.Sprint(r),
				"stack", string(stack))
			reporter.Failure("Unhandled error: %v", r)
			err = &PanicError{Value: r, Stack: stack}
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	startedAt := time.Now().UTC()

	clientOpts := []supabase.Option{
		supabase.WithTimeout(cfg.Supabase.Timeout),
		supabase.WithLogger(logger),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, supabase.WithHTTPClient(opts.HTTPClient))
	}
	client, err := supabase.New(cfg.Supabase.URL, cfg.Supabase.Key, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	summary = &Summary{
		RunID:     uuid.NewString(),
		Project:   projectHost(client.BaseURL()),
		KeyRole:   supabase.KeyRole(cfg.Supabase.Key),
		StartedAt: startedAt,
	}

	reporter.Banner("Supabase keep-alive")
	reporter.Line(output.MarkerInfo, "Project %s, key %s (%s), run %s",
		summary.Project, cfg.MaskKey(), roleOrUnknown(summary.KeyRole), summary.RunID)

	logger.Info("Starting keep-alive run",
		"run_id", summary.RunID,
		"project", summary.Project,
		"key", cfg.MaskKey(),
		"key_role", summary.KeyRole,
		"test_credentials", cfg.Test.Configured())

	summary.Auth = runAuth(ctx, cfg, client, logger, reporter)

	if !opts.AuthOnly {
		summary.Checks = runChecks(ctx, cfg, client, summary.RunID, opts.Skip, logger, reporter)
		reportTable(summary.Checks, logger, reporter)
	}

	elapsed := time.Since(summary.StartedAt)
	summary.DurationMS = elapsed.Milliseconds()

	passed, failed, skipped := summary.Counts()
	logger.Info("Keep-alive run finished",
		"run_id", summary.RunID,
		"auth_strategy", string(summary.Auth.Strategy),
		"auth_requests", summary.Auth.Requests(),
		"passed", passed,
		"failed", failed,
		"skipped", skipped,
		"duration_ms", summary.DurationMS)

	reporter.Banner(fmt.Sprintf("%s Keep-alive completed in %s: auth via %s, %d passed, %d failed, %d skipped",
		output.MarkerSuccess, elapsed.Round(time.Millisecond), summary.Auth.Strategy, passed, failed, skipped))

	return summary, nil
}

func runAuth(ctx context.Context, cfg *config.Config, client *supabase.Client, logger *slog.Logger, reporter *output.Reporter) authprobe.Result {
	reporter.Section("Auth")

	chain := authprobe.New(client, authprobe.Options{
		DirectoryTable:       cfg.Probe.UsersTable,
		DirectoryColumn:      cfg.Probe.UsersColumn,
		DirectoryEmailColumn: cfg.Probe.UsersEmailColumn,
		ResetDomain:          cfg.Probe.ResetDomain,
		Logger:               logger,
	})

	res := chain.Run(ctx, authprobe.Credentials{
		Identifier: cfg.Test.Identifier(),
		Phone:      cfg.Test.Phone,
		Password:   cfg.Test.Password,
	})

	for _, a := range res.Attempts {
		label := fmt.Sprintf("%s (%s)", a.Strategy, a.Step)
		switch a.Outcome {
		case authprobe.OutcomeSkipped:
			reporter.Skipped("%s: %s", label, a.Detail)
		case authprobe.OutcomeSucceeded:
			reporter.Success("%s: %s", label, a.Detail)
		default:
			reporter.Warning("%s %s: %s", label, a.Outcome, a.Detail)
		}
	}

	if res.Success {
		reporter.Success("Auth activity registered via %s (%d request(s) sent)", res.Strategy, res.Requests())
	} else {
		reporter.Failure("No auth strategy succeeded")
	}
	return res
}

func runChecks(ctx context.Context, cfg *config.Config, client *supabase.Client, runID string, skip []string, logger *slog.Logger, reporter *output.Reporter) []smoke.CheckResult {
	reporter.Section("Checks")

	checks := smoke.Standard(smoke.Deps{
		Database:    client,
		Storage:     client,
		Table:       cfg.Probe.Table,
		Marker:      runID,
		ObjectLimit: cfg.Probe.ObjectLimit,
		Listen: func(ctx context.Context) (realtime.ListenResult, error) {
			return realtime.Listen(ctx, client.RealtimeURL(), realtime.ListenOptions{
				Channel:     RealtimeChannel,
				Table:       cfg.Probe.Table,
				AccessToken: client.AccessToken(),
				Wait:        cfg.Probe.RealtimeWait,
			}, logger)
		},
		ListenTimeout: cfg.Supabase.Timeout + cfg.Probe.RealtimeWait,
	})

	if cfg.Database.URL != "" {
		check, closeDB := sqlCheck(cfg, logger)
		defer closeDB()
		checks = append(checks, check)
	}
	if cfg.S3.Endpoint != "" {
		checks = append(checks, s3Check(cfg, logger))
	}

	runner := smoke.NewRunner(logger, smoke.RunnerOptions{
		Skip:    skip,
		Timeout: cfg.Supabase.Timeout,
		OnResult: func(r smoke.CheckResult) {
			switch r.Status {
			case smoke.StatusPassed:
				reporter.Success("%s: %s", r.Name, r.Detail)
			case smoke.StatusSkipped:
				reporter.Skipped("%s: %s", r.Name, r.Detail)
			default:
				reporter.Failure("%s: %s", r.Name, r.Detail)
			}
		},
	})

	return runner.Run(ctx, checks)
}

// reportTable prints one aligned row per check result
func reportTable(results []smoke.CheckResult, logger *slog.Logger, reporter *output.Reporter) {
	if len(results) == 0 {
		return
	}
	reporter.Section("Summary")

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Name, r.Status.String(), r.Duration.Round(time.Millisecond).String(), r.Detail})
	}
	if err := reporter.Table([]string{"CHECK", "STATUS", "DURATION", "DETAIL"}, rows); err != nil {
		logger.Debug("Failed to write summary table", "error", err)
	}
}

// sqlCheck connects lazily so that a connection failure is recorded as a
// failed check instead of aborting the run
func sqlCheck(cfg *config.Config, logger *slog.Logger) (smoke.Check, func()) {
	var probe *database.Probe

	check := smoke.Check{
		Name:    smoke.CheckSQLCount,
		Surface: smoke.SurfaceSQL,
		Run: func(ctx context.Context) (string, error) {
			p, err := database.OpenPostgres(ctx, cfg.Database.URL, logger)
			if err != nil {
				return "", err
			}
			probe = p
			return smoke.SQLCheck(p, cfg.Probe.Table).Run(ctx)
		},
	}

	return check, func() {
		if probe != nil {
			if err := probe.Close(); err != nil {
				logger.Debug("Failed to close database", "error", err)
			}
		}
	}
}

func s3Check(cfg *config.Config, logger *slog.Logger) smoke.Check {
	return smoke.Check{
		Name:    smoke.CheckS3Buckets,
		Surface: smoke.SurfaceS3,
		Run: func(ctx context.Context) (string, error) {
			host, useSSL, err := storage.ParseEndpoint(cfg.S3.Endpoint)
			if err != nil {
				return "", err
			}
			client, err := storage.NewS3Client(host, cfg.S3.AccessKey, cfg.S3.SecretKey, useSSL, cfg.S3.Region, logger)
			if err != nil {
				return "", err
			}
			return smoke.S3Check(client, cfg.Probe.ObjectLimit).Run(ctx)
		},
	}
}

func projectHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

func roleOrUnknown(role string) string {
	if role == "" {
		return "opaque key"
	}
	return "role " + role
}
