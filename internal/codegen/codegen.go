// Package codegen renders the schema model as source artifacts: GORM model
// structs or OpenAPI component schemas.
package codegen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"

	"sdsdg/internal/schema"
)

// Format selects the kind of model output.
type Format string

const (
	FormatGORM    Format = "gorm"
	FormatOpenAPI Format = "openapi"
)

// Generator renders models for a schema.
type Generator interface {
	GenerateModels(s *schema.Schema) (string, error)
	// Extension is the file extension of the output, with the dot.
	Extension() string
}

// New returns the generator for format.
func New(format Format) (Generator, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatGORM, "":
		return &GORMGenerator{Package: "models"}, nil
	case FormatOpenAPI:
		return &OpenAPIGenerator{}, nil
	}
	return nil, fmt.Errorf("unsupported model format %q, use gorm or openapi", format)
}

var initialisms = map[string]string{
	"id": "ID", "url": "URL", "uri": "URI", "api": "API", "uuid": "UUID",
	"ip": "IP", "sku": "SKU", "json": "JSON", "http": "HTTP", "sql": "SQL",
}

// goName converts a snake_case or kebab-case identifier to an exported Go name.
func goName(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	var sb strings.Builder
	for _, p := range parts {
		if up, ok := initialisms[strings.ToLower(p)]; ok {
			sb.WriteString(up)
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		sb.WriteString(string(r))
	}
	name := sb.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "X" + name
	}
	return name
}

// entityName turns a table name into a singular type name: "order_items" -> "OrderItem".
func entityName(table string) string {
	if idx := strings.LastIndex(table, "."); idx >= 0 {
		table = table[idx+1:]
	}
	parts := strings.Split(table, "_")
	parts[len(parts)-1] = inflection.Singular(parts[len(parts)-1])
	return goName(strings.Join(parts, "_"))
}
