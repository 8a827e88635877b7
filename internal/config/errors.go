package config

import (
	"errors"
	"fmt"
	"strings"
)

// MissingError reports required environment variables that are not set.
// It is the one fatal configuration error: no network call can be made
// without a project URL and key.
type MissingError struct {
	Vars []string
}

// Error implements the error interface
func (e *MissingError) Error() string {
	return fmt.Sprintf("missing Supabase credentials: set %s", strings.Join(e.Vars, " and "))
}

// IsMissing reports whether err is, or wraps, a *MissingError
func IsMissing(err error) bool {
	var missing *MissingError
	return errors.As(err, &missing)
}
