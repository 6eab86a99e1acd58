package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchemaIntegrity      = errors.New("schema integrity violation")
	ErrTokenBudgetExceeded  = errors.New("token budget exceeded")
	ErrUnsatisfiableSchema  = errors.New("unsatisfiable schema")
	ErrSchemaUnavailable    = errors.New("schema unavailable")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrInsufficientCapacity = errors.New("insufficient output token capacity")
)

// SchemaIntegrityError reports a malformed or inconsistent schema.
type SchemaIntegrityError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaIntegrityError) Error() string {
	loc := e.Table
	if e.Column != "" {
		loc += "." + e.Column
	}
	if loc == "" {
		return fmt.Sprintf("schema integrity: %s", e.Reason)
	}
	return fmt.Sprintf("schema integrity: %s: %s", loc, e.Reason)
}

func (e *SchemaIntegrityError) Is(target error) bool { return target == ErrSchemaIntegrity }

// TokenBudgetExceededError is returned when even the minimal rendering of a table
// does not fit the configured budget.
type TokenBudgetExceededError struct {
	Table  string
	Budget int
	Needed int
}

func (e *TokenBudgetExceededError) Error() string {
	return fmt.Sprintf("table %q needs %d tokens of context, budget is %d", e.Table, e.Needed, e.Budget)
}

func (e *TokenBudgetExceededError) Is(target error) bool { return target == ErrTokenBudgetExceeded }

// UnsatisfiableSchemaError is returned when non-nullable foreign keys form a cycle
// across different tables.
type UnsatisfiableSchemaError struct {
	Cycle []string
}

func (e *UnsatisfiableSchemaError) Error() string {
	return fmt.Sprintf("non-nullable foreign key cycle: %s", strings.Join(e.Cycle, " -> "))
}

func (e *UnsatisfiableSchemaError) Is(target error) bool { return target == ErrUnsatisfiableSchema }

// SchemaUnavailableError wraps a connection-level introspection failure.
type SchemaUnavailableError struct {
	Connection string
	Cause      error
}

func (e *SchemaUnavailableError) Error() string {
	return fmt.Sprintf("schema for connection %q unavailable: %v", e.Connection, e.Cause)
}

func (e *SchemaUnavailableError) Unwrap() error { return e.Cause }

func (e *SchemaUnavailableError) Is(target error) bool { return target == ErrSchemaUnavailable }

// GenerationFailedError is reported per table once its retry budget is exhausted.
type GenerationFailedError struct {
	Table    string
	Attempts int
	Cause    error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation for table %q failed after %d attempts: %v", e.Table, e.Attempts, e.Cause)
}

func (e *GenerationFailedError) Unwrap() error { return e.Cause }

func (e *GenerationFailedError) Is(target error) bool { return target == ErrGenerationFailed }

// InsufficientCapacityError is returned when the prompt leaves fewer output
// tokens than a useful response needs.
type InsufficientCapacityError struct {
	Available int
	Minimum   int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("only %d output tokens left, minimum is %d", e.Available, e.Minimum)
}

func (e *InsufficientCapacityError) Is(target error) bool { return target == ErrInsufficientCapacity }
