package codegen

import (
	"fmt"
	"go/format"
	"strings"

	"sdsdg/internal/schema"
)

// tagSafe strips characters that would end a struct tag or a gorm setting.
var tagSafe = strings.NewReplacer(`"`, `'`, "`", "'", ";", "")

// GORMGenerator renders one GORM model struct per table.
type GORMGenerator struct {
	Package string
}

// Extension implements Generator.
func (g *GORMGenerator) Extension() string { return ".go" }

// GenerateModels implements Generator. The output is gofmt-formatted.
func (g *GORMGenerator) GenerateModels(s *schema.Schema) (string, error) {
	pkg := g.Package
	if pkg == "" {
		pkg = "models"
	}

	var body strings.Builder
	imports := map[string]bool{}
	for _, name := range s.TableNames() {
		t, _ := s.Lookup(name)
		g.writeStruct(&body, s, t, imports)
	}

	var src strings.Builder
	fmt.Fprintf(&src, "// Code generated by sdsdg from database %q. DO NOT EDIT.\n\n", s.Name)
	fmt.Fprintf(&src, "package %s\n\n", pkg)
	if len(imports) > 0 {
		src.WriteString("import (\n")
		for _, imp := range []string{"time", "github.com/shopspring/decimal"} {
			if imports[imp] {
				fmt.Fprintf(&src, "\t%q\n", imp)
			}
		}
		src.WriteString(")\n\n")
	}
	src.WriteString(body.String())

	out, err := format.Source([]byte(src.String()))
	if err != nil {
		return "", fmt.Errorf("format generated models: %w", err)
	}
	return string(out), nil
}

func (g *GORMGenerator) writeStruct(sb *strings.Builder, s *schema.Schema, t *schema.Table, imports map[string]bool) {
	typeName := entityName(t.Name)
	fmt.Fprintf(sb, "// %s maps table %s.\n", typeName, t.Name)
	fmt.Fprintf(sb, "type %s struct {\n", typeName)

	fields := make(map[string]bool, len(t.Columns))
	for ci := range t.Columns {
		col := &t.Columns[ci]
		name := goName(col.Name)
		fields[name] = true
		fmt.Fprintf(sb, "\t%s %s `gorm:\"%s\" json:\"%s\"`\n", name, goType(col, imports), gormTag(t, ci), col.Name)
	}

	for _, fk := range t.ForeignKeys {
		parent := s.Table(fk.To.Table)
		field := entityName(parent.Name)
		from := goName(t.Columns[fk.From.Column].Name)
		if trimmed := strings.TrimSuffix(from, "ID"); trimmed != "" && trimmed != from {
			field = trimmed
		}
		if fields[field] {
			continue
		}
		fields[field] = true
		fmt.Fprintf(sb, "\t%s *%s `gorm:\"foreignKey:%s;references:%s\" json:\"-\"`\n",
			field, entityName(parent.Name), from, goName(parent.Columns[fk.To.Column].Name))
	}
	sb.WriteString("}\n\n")

	fmt.Fprintf(sb, "// TableName implements gorm's Tabler.\n")
	fmt.Fprintf(sb, "func (%s) TableName() string { return %q }\n\n", typeName, t.Name)
}

func goType(col *schema.Column, imports map[string]bool) string {
	var base string
	switch col.Type {
	case schema.TypeInteger:
		base = "int64"
	case schema.TypeBoolean:
		base = "bool"
	case schema.TypeDecimal:
		imports["github.com/shopspring/decimal"] = true
		if col.Nullable {
			return "decimal.NullDecimal"
		}
		return "decimal.Decimal"
	case schema.TypeDatetime:
		imports["time"] = true
		base = "time.Time"
	default:
		base = "string"
	}
	if col.Nullable {
		return "*" + base
	}
	return base
}

func gormTag(t *schema.Table, ci int) string {
	col := &t.Columns[ci]
	parts := []string{"column:" + col.Name}
	if col.PrimaryKey {
		parts = append(parts, "primaryKey")
	}
	if col.AutoIncrement {
		parts = append(parts, "autoIncrement")
	}
	switch {
	case col.Type == schema.TypeText && col.MaxLength > 0:
		parts = append(parts, fmt.Sprintf("size:%d", col.MaxLength))
	case col.Type == schema.TypeDecimal && col.Precision > 0:
		parts = append(parts, fmt.Sprintf("type:decimal(%d,%d)", col.Precision, col.Scale))
	case col.Type == schema.TypeEnumeration:
		parts = append(parts, "type:"+tagSafe.Replace(col.RawType))
	case col.Type == schema.TypeDatetime && col.DateOnly:
		parts = append(parts, "type:date")
	}
	if !col.Nullable && !col.PrimaryKey {
		parts = append(parts, "not null")
	}
	for ui, u := range t.Unique {
		for _, c := range u {
			if c != ci {
				continue
			}
			if len(u) == 1 {
				parts = append(parts, "unique")
			} else {
				parts = append(parts, fmt.Sprintf("uniqueIndex:%s_uk%d", t.Name, ui+1))
			}
		}
	}
	if col.Default != nil && !col.AutoIncrement {
		parts = append(parts, "default:"+tagSafe.Replace(*col.Default))
	}
	return strings.Join(parts, ";")
}
