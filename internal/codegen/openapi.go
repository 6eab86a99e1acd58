package codegen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"sdsdg/internal/schema"
)

// OpenAPIGenerator renders the schema as OpenAPI 3 component schemas in YAML.
type OpenAPIGenerator struct {
	Version string
}

// Extension implements Generator.
func (g *OpenAPIGenerator) Extension() string { return ".yaml" }

// Document builds the OpenAPI document for s.
func (g *OpenAPIGenerator) Document(s *schema.Schema) *openapi3.T {
	version := g.Version
	if version == "" {
		version = "1.0.0"
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   fmt.Sprintf("%s models", s.Name),
			Version: version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}

	for _, name := range s.TableNames() {
		t, _ := s.Lookup(name)
		obj := openapi3.NewObjectSchema()
		obj.Description = "Table " + t.Name
		obj.Extensions = tableExtensions(t)
		for ci := range t.Columns {
			col := &t.Columns[ci]
			prop := propertySchema(col)
			if fk, ok := t.ForeignKeyFor(ci); ok {
				parent := s.Table(fk.To.Table)
				prop.Extensions["x-references"] = parent.Name + "." + parent.Columns[fk.To.Column].Name
			}
			obj.WithProperty(col.Name, prop)
			if !col.Nullable && !col.HasDefault() {
				obj.Required = append(obj.Required, col.Name)
			}
		}
		doc.Components.Schemas[entityName(t.Name)] = openapi3.NewSchemaRef("", obj)
	}
	return doc
}

// GenerateModels implements Generator.
func (g *OpenAPIGenerator) GenerateModels(s *schema.Schema) (string, error) {
	doc := g.Document(s)
	if err := doc.Validate(context.Background()); err != nil {
		return "", fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	// JSON first so kin-openapi decides the field layout, then YAML for people.
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal OpenAPI document: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return "", fmt.Errorf("convert OpenAPI document: %w", err)
	}
	clearStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("marshal OpenAPI YAML: %w", err)
	}
	return string(out), nil
}

// clearStyle drops the flow style inherited from JSON input.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}

func propertySchema(col *schema.Column) *openapi3.Schema {
	var p *openapi3.Schema
	switch col.Type {
	case schema.TypeInteger:
		p = openapi3.NewInt64Schema()
	case schema.TypeBoolean:
		p = openapi3.NewBoolSchema()
	case schema.TypeDecimal:
		p = openapi3.NewFloat64Schema()
		if col.Precision > 0 {
			p.Format = fmt.Sprintf("decimal(%d,%d)", col.Precision, col.Scale)
		}
	case schema.TypeDatetime:
		if col.DateOnly {
			p = openapi3.NewStringSchema().WithFormat("date")
		} else {
			p = openapi3.NewDateTimeSchema()
		}
	case schema.TypeEnumeration:
		values := make([]any, len(col.EnumValues))
		for i, v := range col.EnumValues {
			values[i] = v
		}
		p = openapi3.NewStringSchema().WithEnum(values...)
	default:
		p = openapi3.NewStringSchema()
		if col.MaxLength > 0 {
			p = p.WithMaxLength(int64(col.MaxLength))
		}
	}
	p.Nullable = col.Nullable
	if col.PrimaryKey && col.AutoIncrement {
		p.ReadOnly = true
	}
	p.Extensions = map[string]any{"x-db-type": col.RawType}
	if col.Default != nil {
		p.Extensions["x-default"] = *col.Default
	}
	if col.AutoIncrement {
		p.Extensions["x-auto-increment"] = true
	}
	return p
}

// tableExtensions carries what the component schema cannot express, so the
// document can be read back as a schema.
func tableExtensions(t *schema.Table) map[string]any {
	all := make([]int, len(t.Columns))
	for i := range all {
		all[i] = i
	}
	ext := map[string]any{"x-table": t.Name, "x-columns": t.ColumnNames(all)}
	if len(t.PrimaryKey) > 0 {
		ext["x-primary-key"] = t.ColumnNames(t.PrimaryKey)
	}
	if len(t.Unique) > 0 {
		unique := make([][]string, len(t.Unique))
		for i, cols := range t.Unique {
			unique[i] = t.ColumnNames(cols)
		}
		ext["x-unique"] = unique
	}
	return ext
}
