package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrConflict, "conflict"},
		{fmt.Errorf("retrying: %w", ErrConflict), "conflict"},
		{NewValidationError("batch_size", "must not be negative"), "validation"},
		{ErrStrategyUnsupported, "strategy_unsupported"},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("%w: connection refused", ErrRepository), "repository"},
		{errors.New("something else"), "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "err=%v", tt.err)
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := NewValidationError("fixed_duration", "duration must be positive")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "fixed_duration")
	assert.Contains(t, err.Error(), "duration must be positive")
}
