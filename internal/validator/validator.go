// Package validator checks LLM output against the schema's hard constraints and
// repairs what can be repaired.
package validator

import (
	"fmt"
	"strings"

	"sdsdg/internal/schema"
	"sdsdg/internal/types"
)

// OverlengthPolicy decides what happens to text longer than its column allows
// and to decimals with too many fractional digits.
type OverlengthPolicy string

const (
	// OverlengthTruncate cuts text to the maximum length and rounds decimals.
	OverlengthTruncate OverlengthPolicy = "truncate"
	// OverlengthReject rejects the record.
	OverlengthReject OverlengthPolicy = "reject"
)

// Action is what the validator did about a violation.
type Action string

const (
	ActionRejected Action = "rejected"
	ActionRepaired Action = "repaired"
	ActionIgnored  Action = "ignored"
	ActionNulled   Action = "nulled"
	ActionDropped  Action = "dropped"
	// ActionDeferred marks a nullable self reference set to null until the
	// table's final key set is known.
	ActionDeferred Action = "deferred"
)

// Violation describes one constraint problem of one record.
type Violation struct {
	Table  string `json:"table"`
	Record int    `json:"record"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
	Value  any    `json:"value,omitempty"`
	Action Action `json:"action"`
}

func (v Violation) String() string {
	loc := v.Table
	if v.Column != "" {
		loc += "." + v.Column
	}
	return fmt.Sprintf("record %d %s: %s (%s)", v.Record, loc, v.Reason, v.Action)
}

// KeyLookup answers whether a parent table has accepted a key value.
type KeyLookup interface {
	Contains(ref schema.ColumnRef, key string) bool
}

// Policy configures repairs.
type Policy struct {
	Overlength OverlengthPolicy
}

// Accepted is a record that passed validation.
type Accepted struct {
	// Index is the position of the record in the raw input.
	Index  int
	Record types.Record
	// Deferred holds the original values of nullable self references that
	// were set to null, keyed by column name.
	Deferred map[string]any
}

// Validator validates records of one schema.
type Validator struct {
	schema     *schema.Schema
	policy     Policy
	keys       KeyLookup
	referenced map[schema.ColumnRef]bool
}

// New returns a validator resolving parent keys through keys.
func New(s *schema.Schema, policy Policy, keys KeyLookup) *Validator {
	if policy.Overlength == "" {
		policy.Overlength = OverlengthTruncate
	}
	referenced := make(map[schema.ColumnRef]bool)
	for i := range s.Tables {
		for _, fk := range s.Tables[i].ForeignKeys {
			referenced[fk.To] = true
		}
	}
	return &Validator{schema: s, policy: policy, keys: keys, referenced: referenced}
}

type candidate struct {
	index    int
	record   types.Record
	deferred map[string]any
	alive    bool
}

// Validate checks raw records for table id against its constraints and st,
// and commits the accepted ones to st in the order received.
func (v *Validator) Validate(id schema.TableID, raw []map[string]any, st *State) ([]Accepted, []Violation) {
	t := v.schema.Table(id)
	var violations []Violation
	report := func(i int, col, reason string, value any, action Action) {
		violations = append(violations, Violation{Table: t.Name, Record: i, Column: col, Reason: reason, Value: value, Action: action})
	}

	candidates := make([]*candidate, 0, len(raw))
	for i, in := range raw {
		rec, ok := v.checkColumns(t, i, in, report)
		if !ok || !v.checkParents(t, i, rec, report) {
			continue
		}
		candidates = append(candidates, &candidate{index: i, record: rec, alive: true})
	}

	v.checkUnique(t, st, candidates, report)
	v.checkSelfReferences(t, st, candidates, report)

	var accepted []Accepted
	for _, c := range candidates {
		if !c.alive {
			continue
		}
		st.commit(c.record)
		accepted = append(accepted, Accepted{Index: c.index, Record: c.record, Deferred: c.deferred})
	}
	return accepted, violations
}

type reportFunc func(i int, col, reason string, value any, action Action)

func (v *Validator) checkColumns(t *schema.Table, i int, in map[string]any, report reportFunc) (types.Record, bool) {
	values := make(map[int]any, len(in))
	present := make(map[int]bool, len(in))
	for name, val := range in {
		ci := t.ColumnIndex(name)
		if ci < 0 {
			report(i, name, "unknown column", val, ActionIgnored)
			continue
		}
		values[ci] = val
		present[ci] = true
	}

	rec := make(types.Record, len(t.Columns))
	for ci := range t.Columns {
		col := &t.Columns[ci]
		val := values[ci]
		if !present[ci] || val == nil {
			switch {
			case col.Nullable:
				rec[col.Name] = nil
			case v.mayOmit(t, ci):
			default:
				report(i, col.Name, "null in NOT NULL column", nil, ActionRejected)
				return nil, false
			}
			continue
		}

		out, note, err := coerce(col, val, v.policy.Overlength)
		if err != nil {
			report(i, col.Name, err.Error(), val, ActionRejected)
			return nil, false
		}
		if note != "" {
			report(i, col.Name, note, val, ActionRepaired)
		}
		rec[col.Name] = out
	}
	return rec, true
}

// mayOmit reports whether a NOT NULL column can be left to its database default.
// Keys and referenced columns must always carry a value.
func (v *Validator) mayOmit(t *schema.Table, ci int) bool {
	col := &t.Columns[ci]
	if col.PrimaryKey || !(col.HasDefault() || col.AutoIncrement) {
		return false
	}
	if _, isFK := t.ForeignKeyFor(ci); isFK {
		return false
	}
	return !v.referenced[schema.ColumnRef{Table: t.ID, Column: ci}]
}

func (v *Validator) checkParents(t *schema.Table, i int, rec types.Record, report reportFunc) bool {
	for _, fk := range t.ForeignKeys {
		if fk.SelfReference() {
			continue
		}
		name := t.Columns[fk.From.Column].Name
		val := rec[name]
		if val == nil {
			continue
		}
		if v.keys != nil && v.keys.Contains(fk.To, KeyOf(val)) {
			continue
		}
		parent := v.schema.Table(fk.To.Table)
		reason := fmt.Sprintf("references missing key %s.%s", parent.Name, parent.Columns[fk.To.Column].Name)
		if fk.Nullable {
			rec[name] = nil
			report(i, name, reason, val, ActionNulled)
			continue
		}
		report(i, name, reason, val, ActionRejected)
		return false
	}
	return true
}

func (v *Validator) checkUnique(t *schema.Table, st *State, candidates []*candidate, report reportFunc) {
	batch := make([]map[string]struct{}, len(st.sets))
	for i := range batch {
		batch[i] = make(map[string]struct{})
	}
	for _, c := range candidates {
		for si, cols := range st.sets {
			key, values, ok := tupleKey(c.record, t, cols)
			if !ok {
				continue
			}
			_, inBatch := batch[si][key]
			if inBatch || st.isDuplicate(si, key) {
				names := t.ColumnNames(cols)
				report(c.index, strings.Join(names, ","), fmt.Sprintf("duplicate value for unique (%s)", strings.Join(names, ", ")), unwrapTuple(values), ActionDropped)
				c.alive = false
				break
			}
		}
		if !c.alive {
			continue
		}
		for si, cols := range st.sets {
			if key, _, ok := tupleKey(c.record, t, cols); ok {
				batch[si][key] = struct{}{}
			}
		}
	}
}

// checkSelfReferences resolves foreign keys of t that point at t itself against
// previously accepted rows and the surviving rows of this batch. A nullable
// reference may point anywhere in the batch. A required one may only point at
// an earlier row or at its own row, so the batch stays insertable in order.
// Rejections can remove keys other rows rely on, so it repeats until nothing
// changes.
func (v *Validator) checkSelfReferences(t *schema.Table, st *State, candidates []*candidate, report reportFunc) {
	var selfFKs []schema.ForeignKey
	for _, fk := range t.ForeignKeys {
		if fk.SelfReference() {
			selfFKs = append(selfFKs, fk)
		}
	}
	if len(selfFKs) == 0 {
		return
	}

	for changed := true; changed; {
		changed = false
		for _, fk := range selfFKs {
			from := t.Columns[fk.From.Column].Name
			to := t.Columns[fk.To.Column].Name

			available := make(map[string]struct{})
			first := -1
			for ci, c := range candidates {
				if !c.alive {
					continue
				}
				if first < 0 {
					first = ci
				}
				if k := c.record[to]; k != nil && fk.Nullable {
					available[KeyOf(k)] = struct{}{}
				}
			}

			for ci, c := range candidates {
				if !c.alive {
					continue
				}
				own := c.record[to]
				if val := c.record[from]; val != nil && !selfResolved(st, fk, available, own, val) {
					switch {
					case fk.Nullable:
						c.record[from] = nil
						if c.deferred == nil {
							c.deferred = make(map[string]any)
						}
						c.deferred[from] = val
						report(c.index, from, "self reference to a key not generated yet", val, ActionDeferred)
					case st.Accepted() == 0 && ci == first && own != nil:
						c.record[from] = own
						report(c.index, from, "first row references itself", val, ActionRepaired)
					default:
						c.alive = false
						changed = true
						report(c.index, from, fmt.Sprintf("references missing key %s.%s", t.Name, to), val, ActionRejected)
					}
				}
				if !fk.Nullable && c.alive && own != nil {
					available[KeyOf(own)] = struct{}{}
				}
			}
		}
	}
}

func selfResolved(st *State, fk schema.ForeignKey, available map[string]struct{}, own, val any) bool {
	key := KeyOf(val)
	if _, ok := available[key]; ok {
		return true
	}
	if own != nil && KeyOf(own) == key {
		return true
	}
	return st.HasKey(fk.To.Column, key)
}

func unwrapTuple(values []any) any {
	if len(values) == 1 {
		return values[0]
	}
	return values
}
