package generator

import (
	"sdsdg/internal/types"
	"sdsdg/internal/validator"
)

// Status is the lifecycle state of one table in a run.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusSchemaSerialized Status = "SCHEMA_SERIALIZED"
	StatusPrompted         Status = "PROMPTED"
	StatusAwaitingResponse Status = "AWAITING_RESPONSE"
	StatusValidating       Status = "VALIDATING"
	StatusAccepted         Status = "ACCEPTED"
	StatusPartial          Status = "PARTIAL"
	StatusFailed           Status = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusPartial || s == StatusFailed
}

// TableResult is the outcome for one table.
type TableResult struct {
	Table      string                `json:"table"`
	Status     Status                `json:"status"`
	Requested  int                   `json:"requested"`
	Records    []types.Record        `json:"records"`
	Provenance []types.Provenance    `json:"provenance"`
	Violations []validator.Violation `json:"violations,omitempty"`
	Calls      int                   `json:"calls"`
	Err        error                 `json:"-"`
	Error      string                `json:"error,omitempty"`
}

func (tr *TableResult) fail(err error) {
	tr.Err = err
	if err != nil {
		tr.Error = err.Error()
	}
}

// finish sets the terminal status from the number of accepted records.
func (tr *TableResult) finish() {
	switch {
	case len(tr.Records) >= tr.Requested:
		tr.Status = StatusAccepted
	case len(tr.Records) == 0:
		tr.Status = StatusFailed
	default:
		tr.Status = StatusPartial
	}
}

// Result is the outcome of one generation run.
type Result struct {
	Tables map[string]*TableResult `json:"tables"`
	// Order lists the tables in generation order.
	Order []string `json:"order"`
	// Incomplete is set when any table did not reach ACCEPTED.
	Incomplete bool `json:"incomplete"`
}

// Table returns the result for name, or nil.
func (r *Result) Table(name string) *TableResult {
	if r == nil {
		return nil
	}
	return r.Tables[name]
}

// Counts returns the number of accepted records per table.
func (r *Result) Counts() map[string]int {
	out := make(map[string]int, len(r.Tables))
	for name, tr := range r.Tables {
		out[name] = len(tr.Records)
	}
	return out
}

// Failed returns the tables that ended PARTIAL or FAILED, in generation order.
func (r *Result) Failed() []string {
	var out []string
	for _, name := range r.Order {
		if s := r.Tables[name].Status; s == StatusPartial || s == StatusFailed {
			out = append(out, name)
		}
	}
	return out
}
