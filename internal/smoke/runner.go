// Package smoke runs the independent single-call activity checks against each
// Supabase surface. Every check is attempted once; failures are recorded and
// never stop the run.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Status is the outcome of one check
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON reports
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Check is one activity call against a surface
type Check struct {
	Name    string
	Surface string
	// Timeout overrides the runner default when set
	Timeout time.Duration
	// Run returns a short detail line on success
	Run func(ctx context.Context) (string, error)
}

// CheckResult is the recorded outcome of a check
type CheckResult struct {
	Name     string        `json:"name"`
	Surface  string        `json:"surface"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// SkipError marks a check that decided not to run
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// Skip returns a SkipError with a formatted reason
func Skip(format string, args ...interface{}) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// RunnerOptions configures a Runner
type RunnerOptions struct {
	// Skip lists check names or surfaces that must not run
	Skip []string
	// Timeout bounds each check unless the check sets its own
	Timeout time.Duration
	// OnResult is called after every check, in order
	OnResult func(CheckResult)
}

// Runner executes checks sequentially
type Runner struct {
	logger *slog.Logger
	skip   map[string]bool
	opts   RunnerOptions
}

// NewRunner creates a runner
func NewRunner(logger *slog.Logger, opts RunnerOptions) *Runner {
	skip := make(map[string]bool, len(opts.Skip))
	for _, name := range opts.Skip {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			skip[name] = true
		}
	}
	return &Runner{logger: logger, skip: skip, opts: opts}
}

// Run executes every check once, in order, and returns one result per check
func (r *Runner) Run(ctx context.Context, checks []Check) []CheckResult {
	results := make([]CheckResult, 0, len(checks))

	for _, check := range checks {
		result := r.runOne(ctx, check)
		results = append(results, result)
		if r.opts.OnResult != nil {
			r.opts.OnResult(result)
		}
	}

	return results
}

func (r *Runner) runOne(ctx context.Context, check Check) CheckResult {
	result := CheckResult{Name: check.Name, Surface: check.Surface}

	if r.skip[strings.ToLower(check.Name)] || r.skip[strings.ToLower(check.Surface)] {
		result.Status = StatusSkipped
		result.Detail = "disabled by --skip"
		r.logger.Info("Check skipped", "check", check.Name, "reason", result.Detail)
		return result
	}

	timeout := check.Timeout
	if timeout == 0 {
		timeout = r.opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	detail, err := check.Run(ctx)
	result.Duration = time.Since(start)

	var skipErr *SkipError
	switch {
	case errors.As(err, &skipErr):
		result.Status = StatusSkipped
		result.Detail = skipErr.Reason
		r.logger.Info("Check skipped", "check", check.Name, "reason", skipErr.Reason)
	case err != nil:
		result.Status = StatusFailed
		result.Detail = err.Error()
		r.logger.Warn("Check failed",
			"check", check.Name,
			"surface", check.Surface,
			"error", err,
			"duration_ms", result.Duration.Milliseconds())
	default:
		result.Status = StatusPassed
		result.Detail = detail
		r.logger.Info("Check passed",
			"check", check.Name,
			"surface", check.Surface,
			"detail", detail,
			"duration_ms", result.Duration.Milliseconds())
	}

	return result
}
