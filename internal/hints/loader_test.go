package hints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdsdg/internal/schema"
)

func shop(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Build(&schema.RawSchema{
		Name: "shop",
		Tables: []schema.RawTable{
			{
				Name:       "Customers",
				Columns:    []schema.RawColumn{{Name: "id", DataType: "integer"}, {Name: "Email", DataType: "text"}},
				PrimaryKey: []string{"id"},
			},
		},
	})
	require.NoError(t, err)
	return s
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAMLAndResolve(t *testing.T) {
	path := write(t, t.TempDir(), "hints.yaml", `
intent: retail customers in Lisbon
tables:
  customers:
    count: 25
    columns:
      email: company addresses only
`)
	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "retail customers in Lisbon", f.Intent)

	counts, cols, err := f.Resolve(shop(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Customers": 25}, counts)
	assert.Equal(t, map[string]map[string]string{"Customers": {"Email": "company addresses only"}}, cols)
}

func TestLoaderFallsBackToJSON(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "hints.json", `{"tables": {"customers": {"count": 3}}}`)

	f, err := NewLoader(dir).LoadDir()
	require.NoError(t, err)
	assert.Equal(t, 3, f.Tables["customers"].Count)
}

func TestLoaderNoFile(t *testing.T) {
	_, err := NewLoader(t.TempDir()).LoadDir()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hints found")
}

func TestLoadRejectsNegativeCount(t *testing.T) {
	path := write(t, t.TempDir(), "hints.yaml", "tables:\n  customers:\n    count: -1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestResolveUnknownNames(t *testing.T) {
	s := shop(t)

	_, _, err := (&File{Tables: map[string]TableHints{"orders": {Count: 1}}}).Resolve(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table orders")

	_, _, err = (&File{Tables: map[string]TableHints{"customers": {Columns: map[string]string{"phone": "x"}}}}).Resolve(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column Customers.phone")
}

func TestResolveNilFile(t *testing.T) {
	var f *File
	counts, cols, err := f.Resolve(shop(t))
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.Empty(t, cols)
}
