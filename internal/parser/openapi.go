// Package parser reads schemas from OpenAPI documents, such as the model files
// written by the openapi model format, so data can be generated without a live
// database.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"sdsdg/internal/schema"
)

// Load reads an OpenAPI document from a file path or an http(s) URL.
func Load(location string) (*schema.RawSchema, error) {
	loader := openapi3.NewLoader()
	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		u, perr := url.Parse(location)
		if perr != nil {
			return nil, fmt.Errorf("invalid URL %s: %w", location, perr)
		}
		doc, err = loader.LoadFromURI(u)
	} else {
		doc, err = loader.LoadFromFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI doc %s: %w", location, err)
	}
	return FromDocument(doc)
}

// Parse reads an OpenAPI document in JSON or YAML.
func Parse(data []byte) (*schema.RawSchema, error) {
	doc, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI doc: %w", err)
	}
	return FromDocument(doc)
}

// FromDocument maps every object component schema to a table.
func FromDocument(doc *openapi3.T) (*schema.RawSchema, error) {
	if doc.Components == nil || len(doc.Components.Schemas) == 0 {
		return nil, fmt.Errorf("OpenAPI doc has no component schemas")
	}

	raw := &schema.RawSchema{}
	if doc.Info != nil {
		raw.Name = strings.TrimSuffix(doc.Info.Title, " models")
	}

	keys := make([]string, 0, len(doc.Components.Schemas))
	for k := range doc.Components.Schemas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ref := doc.Components.Schemas[key]
		if ref == nil || ref.Value == nil || !ref.Value.Type.Is(openapi3.TypeObject) {
			continue
		}
		t, err := extractTable(key, ref.Value)
		if err != nil {
			return nil, err
		}
		raw.Tables = append(raw.Tables, t)
	}
	if len(raw.Tables) == 0 {
		return nil, fmt.Errorf("OpenAPI doc has no object schemas")
	}
	return raw, nil
}

func extractTable(key string, obj *openapi3.Schema) (schema.RawTable, error) {
	t := schema.RawTable{Name: key}
	if err := extension(obj.Extensions, "x-table", &t.Name); err != nil {
		return t, err
	}
	if err := extension(obj.Extensions, "x-primary-key", &t.PrimaryKey); err != nil {
		return t, err
	}
	if err := extension(obj.Extensions, "x-unique", &t.Unique); err != nil {
		return t, err
	}

	names, err := columnOrder(obj)
	if err != nil {
		return t, err
	}

	for _, name := range names {
		prop := obj.Properties[name]
		if prop == nil || prop.Value == nil {
			continue
		}
		col, fk, err := extractColumn(t.Name, name, prop.Value)
		if err != nil {
			return t, err
		}
		t.Columns = append(t.Columns, col)
		if fk != nil {
			t.ForeignKeys = append(t.ForeignKeys, *fk)
		}
	}

	if len(t.PrimaryKey) == 0 {
		if _, ok := obj.Properties["id"]; ok {
			t.PrimaryKey = []string{"id"}
		}
	}
	return t, nil
}

func extractColumn(table, name string, p *openapi3.Schema) (schema.RawColumn, *schema.RawForeignKey, error) {
	col := schema.RawColumn{
		Name:            name,
		Nullable:        p.Nullable,
		IsAutoIncrement: p.ReadOnly,
	}
	if p.MaxLength != nil {
		col.MaxLength = int(*p.MaxLength)
	}
	for _, v := range p.Enum {
		col.EnumValues = append(col.EnumValues, fmt.Sprint(v))
	}

	var def string
	if err := extension(p.Extensions, "x-default", &def); err != nil {
		return col, nil, err
	}
	if def != "" {
		col.Default = &def
	}
	var auto bool
	if err := extension(p.Extensions, "x-auto-increment", &auto); err != nil {
		return col, nil, err
	}
	col.IsAutoIncrement = col.IsAutoIncrement || auto

	if err := extension(p.Extensions, "x-db-type", &col.DataType); err != nil {
		return col, nil, err
	}
	if col.DataType == "" {
		col.DataType = dataType(p)
	}

	var ref string
	if err := extension(p.Extensions, "x-references", &ref); err != nil {
		return col, nil, err
	}
	if ref == "" {
		return col, nil, nil
	}
	parent, parentCol, ok := strings.Cut(ref, ".")
	if !ok || parent == "" || parentCol == "" {
		return col, nil, fmt.Errorf("%s.%s: x-references must be table.column, got %q", table, name, ref)
	}
	return col, &schema.RawForeignKey{Column: name, ReferencedTable: parent, ReferencedColumn: parentCol}, nil
}

// dataType derives a database type name from the JSON schema type and format.
func dataType(p *openapi3.Schema) string {
	switch {
	case p.Type.Is(openapi3.TypeInteger):
		return "bigint"
	case p.Type.Is(openapi3.TypeBoolean):
		return "boolean"
	case p.Type.Is(openapi3.TypeNumber):
		if strings.HasPrefix(p.Format, "decimal(") {
			return "numeric" + strings.TrimPrefix(p.Format, "decimal")
		}
		return "double precision"
	}
	switch p.Format {
	case "date":
		return "date"
	case "date-time":
		return "timestamp"
	case "uuid":
		return "uuid"
	}
	if p.MaxLength != nil {
		return fmt.Sprintf("varchar(%d)", *p.MaxLength)
	}
	return "text"
}

// extension decodes extension key into out. Missing keys leave out untouched.
func extension(ext map[string]any, key string, out any) error {
	v, ok := ext[key]
	if !ok || v == nil {
		return nil
	}
	var data []byte
	switch x := v.(type) {
	case json.RawMessage:
		data = x
	default:
		var err error
		if data, err = json.Marshal(x); err != nil {
			return fmt.Errorf("extension %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("extension %s: %w", key, err)
	}
	return nil
}

// columnOrder returns the property names in x-columns order. Properties the
// list does not name follow in alphabetical order.
func columnOrder(obj *openapi3.Schema) ([]string, error) {
	var listed []string
	if err := extension(obj.Extensions, "x-columns", &listed); err != nil {
		return nil, err
	}
	var names []string
	for _, name := range listed {
		if _, ok := obj.Properties[name]; ok && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range obj.Properties {
		if !slices.Contains(names, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...), nil
}

// FileSource serves one schema document under any connection name.
type FileSource struct {
	Location string

	once   sync.Once
	schema *schema.Schema
	err    error
}

// Load implements the assistant's schema source.
func (f *FileSource) Load(_ context.Context, _ string) (*schema.Schema, error) {
	f.once.Do(func() {
		raw, err := Load(f.Location)
		if err != nil {
			f.err = err
			return
		}
		f.schema, f.err = schema.Build(raw)
	})
	return f.schema, f.err
}
