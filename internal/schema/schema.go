// Package schema holds the normalized, immutable schema graph used for generation.
//
// Tables live in an arena addressed by TableID and columns by ColumnRef, so
// self references and cycles between tables need no owning pointers.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"sdsdg/internal/apperrors"
)

// TableID indexes Schema.Tables.
type TableID int

// ColumnRef addresses a column by table and column position.
type ColumnRef struct {
	Table  TableID
	Column int
}

// Column is a normalized column definition.
type Column struct {
	Name          string
	RawType       string
	Type          SemanticType
	Nullable      bool
	MaxLength     int
	Precision     int
	Scale         int
	DateOnly      bool
	EnumValues    []string
	Default       *string
	AutoIncrement bool
	PrimaryKey    bool
}

// HasDefault reports whether the database can fill the column when it is omitted.
func (c Column) HasDefault() bool {
	return c.Default != nil || c.AutoIncrement
}

// ForeignKey is a reference From a child column To a parent column.
type ForeignKey struct {
	Name     string
	From     ColumnRef
	To       ColumnRef
	Nullable bool
}

// SelfReference reports whether the key points back into its own table.
func (fk ForeignKey) SelfReference() bool {
	return fk.From.Table == fk.To.Table
}

// Table is a normalized table definition.
type Table struct {
	ID          TableID
	Name        string
	Columns     []Column
	PrimaryKey  []int
	ForeignKeys []ForeignKey
	// Unique lists unique constraints as ordered column positions. The primary
	// key is not repeated here.
	Unique [][]int

	byName map[string]int
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.byName[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	return &t.Columns[i], true
}

// UniqueSets returns the primary key followed by every unique constraint.
func (t *Table) UniqueSets() [][]int {
	sets := make([][]int, 0, len(t.Unique)+1)
	if len(t.PrimaryKey) > 0 {
		sets = append(sets, t.PrimaryKey)
	}
	return append(sets, t.Unique...)
}

// ColumnNames returns the names of the given column positions.
func (t *Table) ColumnNames(cols []int) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = t.Columns[c].Name
	}
	return names
}

// IsUnique reports whether the column alone is a primary key or unique constraint.
func (t *Table) IsUnique(col int) bool {
	for _, set := range t.UniqueSets() {
		if len(set) == 1 && set[0] == col {
			return true
		}
	}
	return false
}

// ForeignKeyFor returns the foreign key whose source is the given column.
func (t *Table) ForeignKeyFor(col int) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.From.Column == col {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Schema is the set of tables for one named connection. It must not be
// modified after Build returns.
type Schema struct {
	Name   string
	Tables []Table

	byName   map[string]TableID
	children [][]TableID
}

// Table returns the table for id.
func (s *Schema) Table(id TableID) *Table {
	return &s.Tables[id]
}

// Lookup finds a table by name, case-insensitively.
func (s *Schema) Lookup(name string) (*Table, bool) {
	id, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &s.Tables[id], true
}

// TableNames returns all table names sorted.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i := range s.Tables {
		names[i] = s.Tables[i].Name
	}
	sort.Strings(names)
	return names
}

// Column resolves a column reference.
func (s *Schema) Column(ref ColumnRef) *Column {
	return &s.Tables[ref.Table].Columns[ref.Column]
}

// Parents returns the distinct tables referenced by id's foreign keys, excluding id.
func (s *Schema) Parents(id TableID) []TableID {
	seen := make(map[TableID]bool)
	var out []TableID
	for _, fk := range s.Tables[id].ForeignKeys {
		if fk.To.Table == id || seen[fk.To.Table] {
			continue
		}
		seen[fk.To.Table] = true
		out = append(out, fk.To.Table)
	}
	return out
}

// Children returns the distinct tables that reference id, excluding id.
func (s *Schema) Children(id TableID) []TableID {
	return s.children[id]
}

// Neighbors returns parents and children of id without duplicates.
func (s *Schema) Neighbors(id TableID) []TableID {
	seen := map[TableID]bool{id: true}
	var out []TableID
	for _, n := range append(s.Parents(id), s.Children(id)...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Build normalizes raw introspection metadata into a Schema.
func Build(raw *RawSchema) (*Schema, error) {
	if raw == nil {
		return nil, &apperrors.SchemaIntegrityError{Reason: "no metadata"}
	}

	s := &Schema{
		Name:   raw.Name,
		Tables: make([]Table, len(raw.Tables)),
		byName: make(map[string]TableID, len(raw.Tables)),
	}

	for i, rt := range raw.Tables {
		key := strings.ToLower(rt.Name)
		if rt.Name == "" {
			return nil, &apperrors.SchemaIntegrityError{Reason: fmt.Sprintf("table #%d has no name", i)}
		}
		if _, dup := s.byName[key]; dup {
			return nil, &apperrors.SchemaIntegrityError{Table: rt.Name, Reason: "duplicate table name"}
		}
		s.byName[key] = TableID(i)

		t, err := buildTable(TableID(i), rt)
		if err != nil {
			return nil, err
		}
		s.Tables[i] = t
	}

	// Foreign keys need every table in place first.
	s.children = make([][]TableID, len(s.Tables))
	for i, rt := range raw.Tables {
		t := &s.Tables[i]
		for _, rfk := range rt.ForeignKeys {
			fk, err := s.resolveForeignKey(t, rfk)
			if err != nil {
				return nil, err
			}
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		for _, p := range s.Parents(t.ID) {
			s.children[p] = append(s.children[p], t.ID)
		}
	}

	return s, nil
}

func buildTable(id TableID, rt RawTable) (Table, error) {
	t := Table{
		ID:      id,
		Name:    rt.Name,
		Columns: make([]Column, len(rt.Columns)),
		byName:  make(map[string]int, len(rt.Columns)),
	}

	for i, rc := range rt.Columns {
		key := strings.ToLower(rc.Name)
		if rc.Name == "" {
			return t, &apperrors.SchemaIntegrityError{Table: rt.Name, Reason: fmt.Sprintf("column #%d has no name", i)}
		}
		if _, dup := t.byName[key]; dup {
			return t, &apperrors.SchemaIntegrityError{Table: rt.Name, Column: rc.Name, Reason: "duplicate column name"}
		}
		t.byName[key] = i
		t.Columns[i] = normalizeColumn(rc)
	}

	for _, name := range rt.PrimaryKey {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return t, &apperrors.SchemaIntegrityError{Table: rt.Name, Column: name, Reason: "primary key names a missing column"}
		}
		if t.Columns[idx].Nullable {
			return t, &apperrors.SchemaIntegrityError{Table: rt.Name, Column: name, Reason: "primary key column is nullable"}
		}
		t.Columns[idx].PrimaryKey = true
		t.PrimaryKey = append(t.PrimaryKey, idx)
	}

	seen := make(map[string]bool)
	addUnique := func(cols []int) {
		k := fmt.Sprint(cols)
		if seen[k] || sameColumns(cols, t.PrimaryKey) {
			return
		}
		seen[k] = true
		t.Unique = append(t.Unique, cols)
	}
	for _, names := range rt.Unique {
		cols := make([]int, 0, len(names))
		for _, name := range names {
			idx := t.ColumnIndex(name)
			if idx < 0 {
				return t, &apperrors.SchemaIntegrityError{Table: rt.Name, Column: name, Reason: "unique constraint names a missing column"}
			}
			cols = append(cols, idx)
		}
		if len(cols) > 0 {
			addUnique(cols)
		}
	}
	for i, rc := range rt.Columns {
		if rc.IsUnique {
			addUnique([]int{i})
		}
	}

	return t, nil
}

func normalizeColumn(rc RawColumn) Column {
	info := NormalizeType(rc.DataType)
	if len(rc.EnumValues) > 0 {
		info.Type = TypeEnumeration
		info.EnumValues = rc.EnumValues
	}
	// Explicit metadata from information_schema wins over parsed modifiers.
	if rc.MaxLength > 0 {
		info.MaxLength = rc.MaxLength
	}
	if info.Type == TypeDecimal && rc.Precision > 0 {
		info.Precision = rc.Precision
		info.Scale = rc.Scale
	}
	if info.Type != TypeText {
		info.MaxLength = 0
	}
	return Column{
		Name:          rc.Name,
		RawType:       rc.DataType,
		Type:          info.Type,
		Nullable:      rc.Nullable,
		MaxLength:     info.MaxLength,
		Precision:     info.Precision,
		Scale:         info.Scale,
		DateOnly:      info.DateOnly,
		EnumValues:    info.EnumValues,
		Default:       rc.Default,
		AutoIncrement: rc.IsAutoIncrement,
	}
}

func (s *Schema) resolveForeignKey(t *Table, rfk RawForeignKey) (ForeignKey, error) {
	from := t.ColumnIndex(rfk.Column)
	if from < 0 {
		return ForeignKey{}, &apperrors.SchemaIntegrityError{Table: t.Name, Column: rfk.Column, Reason: "foreign key source column does not exist"}
	}
	target, ok := s.Lookup(rfk.ReferencedTable)
	if !ok {
		return ForeignKey{}, &apperrors.SchemaIntegrityError{
			Table: t.Name, Column: rfk.Column,
			Reason: fmt.Sprintf("foreign key references missing table %q", rfk.ReferencedTable),
		}
	}
	to := target.ColumnIndex(rfk.ReferencedColumn)
	if to < 0 {
		return ForeignKey{}, &apperrors.SchemaIntegrityError{
			Table: t.Name, Column: rfk.Column,
			Reason: fmt.Sprintf("foreign key references missing column %s.%s", rfk.ReferencedTable, rfk.ReferencedColumn),
		}
	}
	return ForeignKey{
		Name:     rfk.Name,
		From:     ColumnRef{Table: t.ID, Column: from},
		To:       ColumnRef{Table: target.ID, Column: to},
		Nullable: t.Columns[from].Nullable,
	}, nil
}

func sameColumns(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
