package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "explicit code", err: WithCode(3, errors.New("x")), want: 3},
		{name: "wrapped explicit code", err: fmt.Errorf("run: %w", WithCode(ExitSuccess, nil)), want: ExitSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromError(tt.err))
		})
	}
}

func TestError_Message(t *testing.T) {
	inner := errors.New("missing Supabase credentials")
	err := WithCode(ExitFailure, inner)

	assert.Equal(t, "missing Supabase credentials", err.Error())
	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, "exit status 2", (&Error{Code: 2}).Error())
}
