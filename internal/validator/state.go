package validator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"sdsdg/internal/schema"
	"sdsdg/internal/types"
)

// KeyOf returns the canonical comparison key of a coerced value.
func KeyOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.String()
	case json.Number:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func tupleKey(rec types.Record, t *schema.Table, cols []int) (string, []any, bool) {
	parts := make([]string, len(cols))
	values := make([]any, len(cols))
	for i, c := range cols {
		v, ok := rec[t.Columns[c].Name]
		if !ok || v == nil {
			return "", nil, false
		}
		parts[i] = KeyOf(v)
		values[i] = v
	}
	return strings.Join(parts, "\x1f"), values, true
}

// State tracks what one table has accepted so far: unique tuples in use and the
// key values other rows of the same table may reference. Records are applied in
// the order they were received.
type State struct {
	table *schema.Table

	sets   [][]int
	seen   []map[string]struct{}
	tuples [][][]any

	keyCols   map[int]bool
	keys      map[int]map[string]struct{}
	keyValues map[int][]any

	accepted int
}

// NewState returns empty tracking state for t. keyCols are the columns of t
// whose accepted values must be remembered, typically targets of self references.
func NewState(t *schema.Table, keyCols ...int) *State {
	sets := t.UniqueSets()
	st := &State{
		table:     t,
		sets:      sets,
		seen:      make([]map[string]struct{}, len(sets)),
		tuples:    make([][][]any, len(sets)),
		keyCols:   make(map[int]bool),
		keys:      make(map[int]map[string]struct{}),
		keyValues: make(map[int][]any),
	}
	for i := range sets {
		st.seen[i] = make(map[string]struct{})
	}
	for _, fk := range t.ForeignKeys {
		if fk.SelfReference() {
			keyCols = append(keyCols, fk.To.Column)
		}
	}
	for _, c := range keyCols {
		st.keyCols[c] = true
		st.keys[c] = make(map[string]struct{})
	}
	return st
}

// Table returns the table the state belongs to.
func (s *State) Table() *schema.Table { return s.table }

// Accepted returns the number of records accepted so far.
func (s *State) Accepted() int { return s.accepted }

// Sets returns the unique column sets, primary key first.
func (s *State) Sets() [][]int { return s.sets }

// Tuples returns the accepted values of unique set i in acceptance order.
func (s *State) Tuples(i int) [][]any { return s.tuples[i] }

// HasKey reports whether an accepted record holds key in column col.
func (s *State) HasKey(col int, key string) bool {
	_, ok := s.keys[col][key]
	return ok
}

// KeyValues returns the accepted values of column col in acceptance order.
func (s *State) KeyValues(col int) []any { return s.keyValues[col] }

func (s *State) isDuplicate(set int, key string) bool {
	_, ok := s.seen[set][key]
	return ok
}

func (s *State) commit(rec types.Record) {
	for i, cols := range s.sets {
		if key, values, ok := tupleKey(rec, s.table, cols); ok {
			s.seen[i][key] = struct{}{}
			s.tuples[i] = append(s.tuples[i], values)
		}
	}
	for c := range s.keyCols {
		v, ok := rec[s.table.Columns[c].Name]
		if !ok || v == nil {
			continue
		}
		k := KeyOf(v)
		if _, dup := s.keys[c][k]; !dup {
			s.keys[c][k] = struct{}{}
			s.keyValues[c] = append(s.keyValues[c], v)
		}
	}
	s.accepted++
}
