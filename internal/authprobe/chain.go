// Package authprobe drives the ordered authentication fallback chain that
// guarantees at least one request reaches the Auth service per run.
package authprobe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/mazurov/supabase-keepalive/internal/supabase"
)

// Options configures the chain
type Options struct {
	DirectoryTable       string // user directory table, default "users"
	DirectoryColumn      string // column matched for usernames, default "username"
	DirectoryEmailColumn string // column matched when the identifier is an email, default "email"
	ResetDomain          string // domain of synthetic reset addresses, default "example.com"

	Now    func() time.Time
	Faker  *gofakeit.Faker
	Logger *slog.Logger
}

// Chain runs the strategies in priority order and stops at the first success
type Chain struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
}

type strategy struct {
	name StrategyName
	run  func(ctx context.Context, creds Credentials, res *Result) (Outcome, string)
}

// New creates a chain over backend
func New(backend Backend, opts Options) *Chain {
	if opts.DirectoryTable == "" {
		opts.DirectoryTable = "users"
	}
	if opts.DirectoryColumn == "" {
		opts.DirectoryColumn = "username"
	}
	if opts.DirectoryEmailColumn == "" {
		opts.DirectoryEmailColumn = "email"
	}
	if opts.ResetDomain == "" {
		opts.ResetDomain = "example.com"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Faker == nil {
		opts.Faker = gofakeit.New(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Chain{backend: backend, opts: opts, logger: logger}
}

func (c *Chain) strategies() []strategy {
	return []strategy{
		{name: StrategyPrimaryLogin, run: c.primaryLogin},
		{name: StrategyDirectoryLookup, run: c.directoryLookup},
		{name: StrategyAnonymousSession, run: c.anonymousSession},
		{name: StrategySyntheticPassword, run: c.syntheticReset},
	}
}

// Run executes the chain. It never returns an error: every failure becomes a
// recorded attempt and a move to the next strategy. Once the synthetic
// password-reset strategy is reached the result is successful regardless of
// that call's outcome.
func (c *Chain) Run(ctx context.Context, creds Credentials) Result {
	var res Result

	for _, s := range c.strategies() {
		outcome, detail := s.run(ctx, creds, &res)

		c.logger.Info("Auth strategy finished",
			"strategy", string(s.name),
			"outcome", outcome.String(),
			"detail", detail)

		if outcome == OutcomeSucceeded {
			res.Success = true
			res.Strategy = s.name
			res.Detail = detail
			return res
		}
	}

	res.Detail = "no strategy succeeded"
	return res
}

func (c *Chain) record(res *Result, name StrategyName, step string, outcome Outcome, detail string) {
	res.Attempts = append(res.Attempts, Attempt{
		Strategy: name,
		Step:     step,
		Outcome:  outcome,
		Detail:   detail,
	})
}

// primaryLogin tries the identifier as an email, then once as a phone number
func (c *Chain) primaryLogin(ctx context.Context, creds Credentials, res *Result) (Outcome, string) {
	const name = StrategyPrimaryLogin

	if reason, ok := missing("identifier", creds.Identifier); !ok {
		c.record(res, name, "email", OutcomeSkipped, reason)
		return OutcomeSkipped, reason
	}
	if reason, ok := missing("password", creds.Password); !ok {
		c.record(res, name, "email", OutcomeSkipped, reason)
		return OutcomeSkipped, reason
	}
	identifier, password := *creds.Identifier, *creds.Password

	outcome, detail := sessionOutcome(c.backend.SignInWithEmail(ctx, identifier, password))
	c.record(res, name, "email", outcome, detail)
	if outcome == OutcomeSucceeded {
		c.teardown(ctx, name)
		return outcome, "email login: " + detail
	}

	phone := identifier
	if creds.Phone != nil && strings.TrimSpace(*creds.Phone) != "" {
		phone = *creds.Phone
	}

	outcome, detail = sessionOutcome(c.backend.SignInWithPhone(ctx, phone, password))
	c.record(res, name, "phone", outcome, detail)
	if outcome == OutcomeSucceeded {
		c.teardown(ctx, name)
		return outcome, "phone login: " + detail
	}

	return outcome, "email and phone login failed: " + detail
}

// directoryLookup counts a matching directory record as auth activity even
// though no session is created
func (c *Chain) directoryLookup(ctx context.Context, creds Credentials, res *Result) (Outcome, string) {
	const name = StrategyDirectoryLookup

	if reason, ok := missing("identifier", creds.Identifier); !ok {
		c.record(res, name, "lookup", OutcomeSkipped, reason)
		return OutcomeSkipped, reason
	}
	identifier := *creds.Identifier

	column := c.opts.DirectoryColumn
	if strings.Contains(identifier, "@") {
		column = c.opts.DirectoryEmailColumn
	}

	rows, err := c.backend.FindOne(ctx, c.opts.DirectoryTable, column, identifier)
	if err != nil {
		detail := err.Error()
		c.record(res, name, "lookup", OutcomeFailedWithError, detail)
		return OutcomeFailedWithError, detail
	}
	if len(rows) == 0 {
		detail := fmt.Sprintf("no %s.%s record matches", c.opts.DirectoryTable, column)
		c.record(res, name, "lookup", OutcomeFailedWithResponse, detail)
		return OutcomeFailedWithResponse, detail
	}

	detail := fmt.Sprintf("matched %s.%s record (no session created)", c.opts.DirectoryTable, column)
	c.record(res, name, "lookup", OutcomeSucceeded, detail)
	return OutcomeSucceeded, detail
}

// anonymousSession discards any leftover session, signs in anonymously and
// immediately signs out again
func (c *Chain) anonymousSession(ctx context.Context, creds Credentials, res *Result) (Outcome, string) {
	const name = StrategyAnonymousSession

	if err := c.backend.SignOut(ctx); err != nil {
		c.logger.Debug("Pre-anonymous sign-out failed", "error", err)
	}

	session, err := c.backend.SignInAnonymously(ctx)
	outcome, detail := sessionOutcome(session, err)
	if supabase.IsStatus(err, http.StatusUnprocessableEntity) {
		detail = "anonymous sign-ins are disabled for this project: " + detail
	}
	c.record(res, name, "sign_in", outcome, detail)
	if outcome == OutcomeSucceeded {
		c.teardown(ctx, name)
	}
	return outcome, detail
}

// syntheticReset sends a password-reset request for an address that was
// never registered. It is the terminal strategy: a rejected request still
// reached the Auth service, so it always reports success.
func (c *Chain) syntheticReset(ctx context.Context, creds Credentials, res *Result) (Outcome, string) {
	const name = StrategySyntheticPassword

	email := c.SyntheticEmail()
	if err := c.backend.ResetPasswordForEmail(ctx, email); err != nil {
		c.record(res, name, "recover", OutcomeFailedWithError, err.Error())
		return OutcomeSucceeded, fmt.Sprintf("reset request for %s rejected (%v); counted as auth activity", email, err)
	}

	c.record(res, name, "recover", OutcomeSucceeded, email)
	return OutcomeSucceeded, fmt.Sprintf("reset request for %s accepted", email)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SyntheticEmail returns a never-registered address derived from the current
// time, so no two runs produce the same one
func (c *Chain) SyntheticEmail() string {
	tag := nonAlnum.ReplaceAllString(strings.ToLower(c.opts.Faker.Username()), "")
	if tag == "" {
		tag = "probe"
	}
	return fmt.Sprintf("keepalive+%d.%s@%s", c.opts.Now().UnixNano(), tag, c.opts.ResetDomain)
}

// teardown ends a session created by a strategy; errors are only logged
func (c *Chain) teardown(ctx context.Context, name StrategyName) {
	if err := c.backend.SignOut(ctx); err != nil {
		c.logger.Warn("Sign-out after strategy failed", "strategy", string(name), "error", err)
	}
}

func sessionOutcome(session *supabase.Session, err error) (Outcome, string) {
	if err != nil {
		return OutcomeFailedWithError, err.Error()
	}
	if !session.Valid() {
		return OutcomeFailedWithResponse, "call completed without a session"
	}
	return OutcomeSucceeded, session.Describe()
}

func missing(field string, value *string) (string, bool) {
	if value == nil {
		return field + " not configured", false
	}
	if strings.TrimSpace(*value) == "" {
		return field + " configured but empty", false
	}
	return "", true
}
