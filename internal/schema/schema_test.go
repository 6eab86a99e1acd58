package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdsdg/internal/apperrors"
)

func shopSchema() *RawSchema {
	return &RawSchema{
		Name: "shop",
		Tables: []RawTable{
			{
				Name: "customers",
				Columns: []RawColumn{
					{Name: "id", DataType: "integer"},
					{Name: "email", DataType: "varchar(120)", IsUnique: true},
					{Name: "referrer_id", DataType: "integer", Nullable: true},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []RawForeignKey{
					{Column: "referrer_id", ReferencedTable: "customers", ReferencedColumn: "id"},
				},
			},
			{
				Name: "orders",
				Columns: []RawColumn{
					{Name: "id", DataType: "bigserial", IsAutoIncrement: true},
					{Name: "customer_id", DataType: "integer"},
					{Name: "total", DataType: "numeric(10,2)"},
					{Name: "status", DataType: "enum('new','paid')"},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []RawForeignKey{
					{Column: "customer_id", ReferencedTable: "customers", ReferencedColumn: "id"},
				},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	s, err := Build(shopSchema())
	require.NoError(t, err)

	customers, ok := s.Lookup("CUSTOMERS")
	require.True(t, ok)
	assert.Equal(t, []int{0}, customers.PrimaryKey)
	assert.True(t, customers.Columns[0].PrimaryKey)
	assert.Equal(t, [][]int{{1}}, customers.Unique)
	assert.Equal(t, 120, customers.Columns[1].MaxLength)
	assert.True(t, customers.IsUnique(1))

	require.Len(t, customers.ForeignKeys, 1)
	assert.True(t, customers.ForeignKeys[0].SelfReference())
	assert.True(t, customers.ForeignKeys[0].Nullable)

	orders, ok := s.Lookup("orders")
	require.True(t, ok)
	total, _ := orders.Column("total")
	assert.Equal(t, TypeDecimal, total.Type)
	assert.Equal(t, 10, total.Precision)
	assert.Equal(t, 2, total.Scale)
	status, _ := orders.Column("status")
	assert.Equal(t, TypeEnumeration, status.Type)
	assert.Equal(t, []string{"new", "paid"}, status.EnumValues)

	assert.Equal(t, []TableID{customers.ID}, s.Parents(orders.ID))
	assert.Equal(t, []TableID{orders.ID}, s.Children(customers.ID))
	assert.Empty(t, s.Parents(customers.ID), "self references are not parents")
	assert.Equal(t, []string{"customers", "orders"}, s.TableNames())
}

func TestBuildIntegrityErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawSchema)
		want   string
	}{
		{
			name: "missing fk table",
			mutate: func(r *RawSchema) {
				r.Tables[1].ForeignKeys[0].ReferencedTable = "clients"
			},
			want: "missing table",
		},
		{
			name: "missing fk column",
			mutate: func(r *RawSchema) {
				r.Tables[1].ForeignKeys[0].ReferencedColumn = "uuid"
			},
			want: "missing column",
		},
		{
			name: "nullable primary key",
			mutate: func(r *RawSchema) {
				r.Tables[0].Columns[0].Nullable = true
			},
			want: "primary key column is nullable",
		},
		{
			name: "duplicate table",
			mutate: func(r *RawSchema) {
				r.Tables[1].Name = "Customers"
			},
			want: "duplicate table name",
		},
		{
			name: "duplicate column",
			mutate: func(r *RawSchema) {
				r.Tables[0].Columns[2].Name = "EMAIL"
			},
			want: "duplicate column name",
		},
		{
			name: "unique on missing column",
			mutate: func(r *RawSchema) {
				r.Tables[0].Unique = [][]string{{"phone"}}
			},
			want: "unique constraint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := shopSchema()
			tt.mutate(raw)
			_, err := Build(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrSchemaIntegrity)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildDeduplicatesPrimaryKeyUnique(t *testing.T) {
	raw := shopSchema()
	raw.Tables[0].Unique = [][]string{{"id"}, {"email"}}
	s, err := Build(raw)
	require.NoError(t, err)
	customers, _ := s.Lookup("customers")
	assert.Equal(t, [][]int{{1}}, customers.Unique)
	assert.Equal(t, [][]int{{0}, {1}}, customers.UniqueSets())
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		raw  string
		want TypeInfo
	}{
		{"VARCHAR(40)", TypeInfo{Type: TypeText, MaxLength: 40}},
		{"character varying(255)", TypeInfo{Type: TypeText, MaxLength: 255}},
		{"nvarchar(max)", TypeInfo{Type: TypeText}},
		{"text", TypeInfo{Type: TypeText}},
		{"uuid", TypeInfo{Type: TypeText, MaxLength: 36}},
		{"jsonb", TypeInfo{Type: TypeText}},
		{"int(11) unsigned", TypeInfo{Type: TypeInteger}},
		{"BIGINT", TypeInfo{Type: TypeInteger}},
		{"serial", TypeInfo{Type: TypeInteger}},
		{"tinyint(1)", TypeInfo{Type: TypeBoolean}},
		{"tinyint(4)", TypeInfo{Type: TypeInteger}},
		{"bit", TypeInfo{Type: TypeBoolean}},
		{"boolean", TypeInfo{Type: TypeBoolean}},
		{"numeric(12, 4)", TypeInfo{Type: TypeDecimal, Precision: 12, Scale: 4}},
		{"double precision", TypeInfo{Type: TypeDecimal}},
		{"date", TypeInfo{Type: TypeDatetime, DateOnly: true}},
		{"timestamp(6) with time zone", TypeInfo{Type: TypeDatetime}},
		{"datetime2", TypeInfo{Type: TypeDatetime}},
		{"enum('small','it''s big')", TypeInfo{Type: TypeEnumeration, EnumValues: []string{"small", "it's big"}}},
		{"geometry", TypeInfo{Type: TypeText}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeType(tt.raw))
		})
	}
}

func TestNeighbors(t *testing.T) {
	s, err := Build(shopSchema())
	require.NoError(t, err)
	customers, _ := s.Lookup("customers")
	orders, _ := s.Lookup("orders")
	assert.Equal(t, []TableID{orders.ID}, s.Neighbors(customers.ID))
	assert.Equal(t, []TableID{customers.ID}, s.Neighbors(orders.ID))
}
