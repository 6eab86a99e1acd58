package schema

// RawSchema is driver-level metadata as returned by introspection, before
// normalization.
type RawSchema struct {
	Name   string     `json:"name" yaml:"name"`
	Tables []RawTable `json:"tables" yaml:"tables"`
}

// RawTable describes one introspected table.
type RawTable struct {
	Name        string          `json:"name" yaml:"name"`
	Columns     []RawColumn     `json:"columns" yaml:"columns"`
	PrimaryKey  []string        `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	ForeignKeys []RawForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	Unique      [][]string      `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// RawColumn describes one introspected column. DataType is the driver type name,
// optionally with modifiers such as VARCHAR(40) or enum('a','b').
type RawColumn struct {
	Name            string   `json:"name" yaml:"name"`
	DataType        string   `json:"data_type" yaml:"data_type"`
	Nullable        bool     `json:"nullable" yaml:"nullable"`
	Default         *string  `json:"default,omitempty" yaml:"default,omitempty"`
	MaxLength       int      `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Precision       int      `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale           int      `json:"scale,omitempty" yaml:"scale,omitempty"`
	EnumValues      []string `json:"enum_values,omitempty" yaml:"enum_values,omitempty"`
	IsAutoIncrement bool     `json:"auto_increment,omitempty" yaml:"auto_increment,omitempty"`
	IsUnique        bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// RawForeignKey is a single-column reference from Column to
// ReferencedTable.ReferencedColumn.
type RawForeignKey struct {
	Name             string `json:"name,omitempty" yaml:"name,omitempty"`
	Column           string `json:"column" yaml:"column"`
	ReferencedTable  string `json:"referenced_table" yaml:"referenced_table"`
	ReferencedColumn string `json:"referenced_column" yaml:"referenced_column"`
}
