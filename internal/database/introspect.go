package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sdsdg/internal/schema"
)

// columnRow is one row of the column catalog query.
type columnRow struct {
	Table         string
	Name          string
	DataType      string
	Nullable      bool
	Default       sql.NullString
	MaxLength     int
	Precision     int
	Scale         int
	AutoIncrement bool
}

// constraintRow is one column of a primary key or unique constraint.
type constraintRow struct {
	Table      string
	Constraint string
	Type       string
	Column     string
}

// foreignKeyRow is one column pair of a foreign key.
type foreignKeyRow struct {
	Table            string
	Constraint       string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

// catalog holds the introspection queries of one dialect. Every query takes
// the schema name as its only parameter.
type catalog struct {
	tables      string
	columns     string
	constraints string
	foreignKeys string
	// enums lists user-defined enumeration labels; empty when the dialect
	// carries them in the column type.
	enums string
}

func catalogFor(d Dialect) catalog {
	p := d.Placeholder(1)
	c := catalog{
		tables: `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_schema = ` + p + ` AND table_type = 'BASE TABLE'
			ORDER BY table_name`,
		constraints: `
			SELECT tc.table_name, tc.constraint_name, tc.constraint_type, kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
				AND tc.table_name = kcu.table_name
			WHERE tc.table_schema = ` + p + `
			  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
			ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`,
		foreignKeys: `
			SELECT fk.table_name, rc.constraint_name, fk.column_name, pk.table_name, pk.column_name
			FROM information_schema.referential_constraints rc
			JOIN information_schema.key_column_usage fk
				ON fk.constraint_name = rc.constraint_name
				AND fk.constraint_schema = rc.constraint_schema
			JOIN information_schema.key_column_usage pk
				ON pk.constraint_name = rc.unique_constraint_name
				AND pk.constraint_schema = rc.unique_constraint_schema
				AND pk.ordinal_position = fk.ordinal_position
			WHERE fk.table_schema = ` + p + `
			ORDER BY fk.table_name, rc.constraint_name, fk.ordinal_position`,
	}

	switch d {
	case Postgres:
		c.columns = `
			SELECT c.table_name, c.column_name,
				CASE WHEN c.data_type = 'USER-DEFINED' THEN c.udt_name ELSE c.data_type END,
				c.is_nullable = 'YES',
				c.column_default,
				COALESCE(c.character_maximum_length, 0),
				CASE WHEN c.data_type = 'numeric' THEN COALESCE(c.numeric_precision, 0) ELSE 0 END,
				CASE WHEN c.data_type = 'numeric' THEN COALESCE(c.numeric_scale, 0) ELSE 0 END,
				(c.is_identity = 'YES' OR COALESCE(c.column_default, '') LIKE 'nextval(%')
			FROM information_schema.columns c
			WHERE c.table_schema = ` + p + `
			ORDER BY c.table_name, c.ordinal_position`
		c.enums = `
			SELECT t.typname, e.enumlabel
			FROM pg_type t
			JOIN pg_enum e ON e.enumtypid = t.oid
			JOIN pg_namespace n ON n.oid = t.typnamespace
			WHERE n.nspname = ` + p + `
			ORDER BY t.typname, e.enumsortorder`
	case MySQL:
		// COLUMN_TYPE keeps modifiers such as varchar(40), decimal(10,2) and enum labels.
		c.columns = `
			SELECT c.table_name, c.column_name, c.column_type,
				c.is_nullable = 'YES',
				c.column_default,
				COALESCE(c.character_maximum_length, 0),
				0, 0,
				c.extra LIKE '%auto_increment%'
			FROM information_schema.columns c
			WHERE c.table_schema = ` + p + `
			ORDER BY c.table_name, c.ordinal_position`
		c.foreignKeys = `
			SELECT kcu.table_name, kcu.constraint_name, kcu.column_name,
				kcu.referenced_table_name, kcu.referenced_column_name
			FROM information_schema.key_column_usage kcu
			WHERE kcu.table_schema = ` + p + `
			  AND kcu.referenced_table_name IS NOT NULL
			ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`
	default:
		c.columns = `
			SELECT c.table_name, c.column_name, c.data_type,
				CASE WHEN c.is_nullable = 'YES' THEN 1 ELSE 0 END,
				c.column_default,
				CASE WHEN c.character_maximum_length > 0 THEN c.character_maximum_length ELSE 0 END,
				CASE WHEN c.data_type IN ('numeric', 'decimal') THEN COALESCE(c.numeric_precision, 0) ELSE 0 END,
				CASE WHEN c.data_type IN ('numeric', 'decimal') THEN COALESCE(c.numeric_scale, 0) ELSE 0 END,
				COALESCE(COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.table_schema) + '.' + QUOTENAME(c.table_name)), c.column_name, 'IsIdentity'), 0)
			FROM information_schema.columns c
			WHERE c.table_schema = ` + p + `
			ORDER BY c.table_name, c.ordinal_position`
	}
	return c
}

// introspect reads the catalog of one schema.
func introspect(ctx context.Context, db *sql.DB, d Dialect, name, namespace string) (*schema.RawSchema, error) {
	c := catalogFor(d)

	tables, err := queryRows(ctx, db, c.tables, namespace, func(rows *sql.Rows) (string, error) {
		var t string
		return t, rows.Scan(&t)
	})
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}

	columns, err := queryRows(ctx, db, c.columns, namespace, func(rows *sql.Rows) (columnRow, error) {
		var r columnRow
		err := rows.Scan(&r.Table, &r.Name, &r.DataType, &r.Nullable, &r.Default,
			&r.MaxLength, &r.Precision, &r.Scale, &r.AutoIncrement)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	constraints, err := queryRows(ctx, db, c.constraints, namespace, func(rows *sql.Rows) (constraintRow, error) {
		var r constraintRow
		return r, rows.Scan(&r.Table, &r.Constraint, &r.Type, &r.Column)
	})
	if err != nil {
		return nil, fmt.Errorf("query constraints: %w", err)
	}

	fks, err := queryRows(ctx, db, c.foreignKeys, namespace, func(rows *sql.Rows) (foreignKeyRow, error) {
		var r foreignKeyRow
		return r, rows.Scan(&r.Table, &r.Constraint, &r.Column, &r.ReferencedTable, &r.ReferencedColumn)
	})
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}

	enums := make(map[string][]string)
	if c.enums != "" {
		type label struct{ typ, value string }
		labels, err := queryRows(ctx, db, c.enums, namespace, func(rows *sql.Rows) (label, error) {
			var l label
			return l, rows.Scan(&l.typ, &l.value)
		})
		if err != nil {
			return nil, fmt.Errorf("query enum labels: %w", err)
		}
		for _, l := range labels {
			enums[l.typ] = append(enums[l.typ], l.value)
		}
	}

	return assemble(name, tables, columns, constraints, fks, enums), nil
}

func queryRows[T any](ctx context.Context, db *sql.DB, query, namespace string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// assemble turns catalog rows into a RawSchema. Rows of tables not listed in
// tables, such as views, are ignored.
func assemble(name string, tables []string, columns []columnRow, constraints []constraintRow, fks []foreignKeyRow, enums map[string][]string) *schema.RawSchema {
	raw := &schema.RawSchema{Name: name, Tables: make([]schema.RawTable, len(tables))}
	index := make(map[string]int, len(tables))
	for i, t := range tables {
		raw.Tables[i] = schema.RawTable{Name: t}
		index[t] = i
	}

	for _, c := range columns {
		i, ok := index[c.Table]
		if !ok {
			continue
		}
		col := schema.RawColumn{
			Name:            c.Name,
			DataType:        c.DataType,
			Nullable:        c.Nullable,
			MaxLength:       c.MaxLength,
			Precision:       c.Precision,
			Scale:           c.Scale,
			IsAutoIncrement: c.AutoIncrement,
			EnumValues:      enums[c.DataType],
		}
		if c.Default.Valid {
			def := c.Default.String
			col.Default = &def
		}
		raw.Tables[i].Columns = append(raw.Tables[i].Columns, col)
	}

	// Constraint rows arrive ordered by table, constraint and position.
	type key struct{ table, name string }
	unique := make(map[key][]string)
	var order []key
	for _, c := range constraints {
		i, ok := index[c.Table]
		if !ok {
			continue
		}
		if strings.EqualFold(c.Type, "PRIMARY KEY") {
			raw.Tables[i].PrimaryKey = append(raw.Tables[i].PrimaryKey, c.Column)
			continue
		}
		k := key{c.Table, c.Constraint}
		if _, seen := unique[k]; !seen {
			order = append(order, k)
		}
		unique[k] = append(unique[k], c.Column)
	}
	for _, k := range order {
		i := index[k.table]
		raw.Tables[i].Unique = append(raw.Tables[i].Unique, unique[k])
	}

	for _, fk := range fks {
		i, ok := index[fk.Table]
		if !ok {
			continue
		}
		if _, ok := index[fk.ReferencedTable]; !ok {
			continue
		}
		raw.Tables[i].ForeignKeys = append(raw.Tables[i].ForeignKeys, schema.RawForeignKey{
			Name:             fk.Constraint,
			Column:           fk.Column,
			ReferencedTable:  fk.ReferencedTable,
			ReferencedColumn: fk.ReferencedColumn,
		})
	}
	return raw
}
