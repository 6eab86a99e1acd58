// Package hints loads per-table row counts and per-column value hints from a
// YAML or JSON file.
package hints

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sdsdg/internal/schema"
)

// Default file names tried by LoadDir, in order.
var defaultFiles = []string{"hints.yaml", "hints.yml", "hints.json"}

// File is the content of a hints file:
//
//	intent: realistic retail data for Portugal
//	tables:
//	  customers:
//	    count: 25
//	    columns:
//	      email: company addresses only
type File struct {
	Intent string                `yaml:"intent" json:"intent"`
	Tables map[string]TableHints `yaml:"tables" json:"tables"`
}

// TableHints holds the hints for one table.
type TableHints struct {
	Count   int               `yaml:"count" json:"count"`
	Columns map[string]string `yaml:"columns" json:"columns"`
}

// Loader handles loading hints files from a directory.
type Loader struct {
	dir string
}

// NewLoader creates a new hints loader.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadDir loads the first default hints file found in the loader's directory.
func (l *Loader) LoadDir() (*File, error) {
	var errs []string
	for _, name := range defaultFiles {
		f, err := Load(filepath.Join(l.dir, name))
		if err == nil {
			return f, nil
		}
		errs = append(errs, err.Error())
	}
	return nil, fmt.Errorf("no hints found: %s", strings.Join(errs, "; "))
}

// Load reads one hints file. JSON is accepted since it is valid YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse hints %s: %w", path, err)
	}
	for name, th := range f.Tables {
		if th.Count < 0 {
			return nil, fmt.Errorf("hints %s: negative count for table %s", path, name)
		}
	}
	return &f, nil
}

// Resolve maps table and column names onto s, case-insensitively, and returns
// counts and column hints keyed by the schema's names.
func (f *File) Resolve(s *schema.Schema) (map[string]int, map[string]map[string]string, error) {
	counts := make(map[string]int)
	columns := make(map[string]map[string]string)
	if f == nil {
		return counts, columns, nil
	}

	names := make([]string, 0, len(f.Tables))
	for name := range f.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		th := f.Tables[name]
		t, ok := s.Lookup(name)
		if !ok {
			return nil, nil, fmt.Errorf("hints reference unknown table %s", name)
		}
		if th.Count > 0 {
			counts[t.Name] = th.Count
		}
		for col, hint := range th.Columns {
			c, ok := lookupColumn(t, col)
			if !ok {
				return nil, nil, fmt.Errorf("hints reference unknown column %s.%s", t.Name, col)
			}
			if columns[t.Name] == nil {
				columns[t.Name] = make(map[string]string)
			}
			columns[t.Name][c] = hint
		}
	}
	return counts, columns, nil
}

func lookupColumn(t *schema.Table, name string) (string, bool) {
	c, ok := t.Column(name)
	if !ok {
		return "", false
	}
	return c.Name, true
}
