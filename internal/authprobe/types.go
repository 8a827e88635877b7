package authprobe

import (
	"context"

	"github.com/mazurov/supabase-keepalive/internal/supabase"
)

// Outcome is the result of one authentication attempt
type Outcome int

const (
	// OutcomeSkipped means the attempt was not configured and no request was made
	OutcomeSkipped Outcome = iota
	// OutcomeSucceeded means a session (or, for the directory lookup, a record) was obtained
	OutcomeSucceeded
	// OutcomeFailedWithResponse means the call completed but yielded nothing usable
	OutcomeFailedWithResponse
	// OutcomeFailedWithError means the call returned an error
	OutcomeFailedWithError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailedWithResponse:
		return "failed-with-response"
	case OutcomeFailedWithError:
		return "failed-with-error"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON reports
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// StrategyName identifies a strategy of the chain
type StrategyName string

const (
	StrategyNone              StrategyName = ""
	StrategyPrimaryLogin      StrategyName = "primary_credential_login"
	StrategyDirectoryLookup   StrategyName = "directory_lookup"
	StrategyAnonymousSession  StrategyName = "anonymous_session"
	StrategySyntheticPassword StrategyName = "synthetic_password_reset"
)

// Credentials is the optional test account. A nil field is absent; a
// non-nil empty field is present but empty. Either short-circuits the
// strategy that needs it.
type Credentials struct {
	Identifier *string // username or email
	Phone      *string // overrides Identifier for the phone retry
	Password   *string
}

// Empty reports that no credentials were configured at all
func (c Credentials) Empty() bool {
	return c.Identifier == nil && c.Phone == nil && c.Password == nil
}

// Attempt records one request (or skipped request) made by a strategy
type Attempt struct {
	Strategy StrategyName `json:"strategy"`
	Step     string       `json:"step"`
	Outcome  Outcome      `json:"outcome"`
	Detail   string       `json:"detail,omitempty"`
}

// Result is the outcome of the whole chain for one run
type Result struct {
	Success  bool         `json:"success"`
	Strategy StrategyName `json:"strategy_used"`
	Detail   string       `json:"detail"`
	Attempts []Attempt    `json:"attempts"`
}

// Requests counts the attempts that reached the network
func (r Result) Requests() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome != OutcomeSkipped {
			n++
		}
	}
	return n
}

// Backend is the slice of the Supabase client the chain uses
type Backend interface {
	SignInWithEmail(ctx context.Context, email, password string) (*supabase.Session, error)
	SignInWithPhone(ctx context.Context, phone, password string) (*supabase.Session, error)
	FindOne(ctx context.Context, table, column, value string) ([]supabase.Row, error)
	SignInAnonymously(ctx context.Context) (*supabase.Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email string) error
}
