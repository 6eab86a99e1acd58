package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sdsdg/internal/llm"
)

// ErrMalformedResponse is returned when a reply cannot be read as table rows.
var ErrMalformedResponse = errors.New("malformed LLM response")

// tableRows is the wire shape {"columns": [...], "rows": [[...], ...]}. The
// Portuguese keys are the format of earlier prompt versions.
type tableRows struct {
	Columns   []string          `json:"columns"`
	Rows      []json.RawMessage `json:"rows"`
	Atributos []string          `json:"atributos"`
	Valores   []json.RawMessage `json:"valores"`
}

// Parse extracts the raw records of table from an LLM reply. It accepts the
// columns/rows shape, an array of objects, or rows given as objects. An empty
// object yields no records.
func Parse(response, table string) ([]map[string]any, error) {
	text, err := llm.ExtractJSON(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	data := []byte(text)

	if strings.HasPrefix(strings.TrimSpace(text), "[") {
		return parseRows(nil, data)
	}

	var top map[string]json.RawMessage
	if err := decode(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(top) == 0 {
		return nil, nil
	}

	if body, ok := top[table]; ok {
		return parseTable(body)
	}
	names := make([]string, 0, len(top))
	for name := range top {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.EqualFold(name, table) {
			return parseTable(top[name])
		}
	}
	if _, ok := top["rows"]; ok {
		return parseTable(data)
	}
	if _, ok := top["valores"]; ok {
		return parseTable(data)
	}
	return nil, fmt.Errorf("%w: table %q not in response", ErrMalformedResponse, table)
}

func parseTable(body json.RawMessage) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return parseRows(nil, trimmed)
	}

	var tr tableRows
	if err := decode(trimmed, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	columns, rows := tr.Columns, tr.Rows
	if len(columns) == 0 && len(rows) == 0 {
		columns, rows = tr.Atributos, tr.Valores
	}

	out := make([]map[string]any, 0, len(rows))
	for i, raw := range rows {
		recs, err := parseRows(columns, raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// parseRows reads either one positional row (when columns is set and data is
// an array of values) or an array of objects.
func parseRows(columns []string, data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]any
		if err := decode(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return []map[string]any{obj}, nil
	}

	var items []any
	if err := decode(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if columns != nil {
		if len(items) != len(columns) {
			return nil, fmt.Errorf("%w: row has %d values for %d columns", ErrMalformedResponse, len(items), len(columns))
		}
		rec := make(map[string]any, len(columns))
		for i, c := range columns {
			rec[c] = items[i]
		}
		return []map[string]any{rec}, nil
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T, want object", ErrMalformedResponse, i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
