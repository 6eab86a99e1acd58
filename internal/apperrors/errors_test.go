package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"integrity", &SchemaIntegrityError{Table: "orders", Column: "customer_id", Reason: "missing target"}, ErrSchemaIntegrity},
		{"budget", &TokenBudgetExceededError{Table: "wide", Budget: 10, Needed: 50}, ErrTokenBudgetExceeded},
		{"cycle", &UnsatisfiableSchemaError{Cycle: []string{"a", "b", "a"}}, ErrUnsatisfiableSchema},
		{"unavailable", &SchemaUnavailableError{Connection: "main", Cause: cause}, ErrSchemaUnavailable},
		{"failed", &GenerationFailedError{Table: "orders", Attempts: 3, Cause: cause}, ErrGenerationFailed},
		{"capacity", &InsufficientCapacityError{Available: 300, Minimum: 1000}, ErrInsufficientCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestWrappedCauseIsReachable(t *testing.T) {
	cause := errors.New("boom")
	err := &GenerationFailedError{Table: "t", Attempts: 2, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestSchemaIntegrityErrorMessage(t *testing.T) {
	err := &SchemaIntegrityError{Table: "orders", Column: "id", Reason: "primary key column is nullable"}
	assert.Equal(t, "schema integrity: orders.id: primary key column is nullable", err.Error())

	err = &SchemaIntegrityError{Reason: "empty schema"}
	assert.Equal(t, "schema integrity: empty schema", err.Error())
}
