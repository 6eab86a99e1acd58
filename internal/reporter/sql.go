package reporter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"sdsdg/internal/database"
	"sdsdg/internal/generator"
	"sdsdg/internal/schema"
)

// quoter renders identifiers and literals for one dialect.
type quoter struct {
	ident   func(string) string
	literal func(string) string
	boolean func(bool) string
}

func quoterFor(d database.Dialect) quoter {
	switch d {
	case database.MySQL:
		return quoter{
			ident: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
			literal: func(s string) string {
				s = strings.ReplaceAll(s, `\`, `\\`)
				return "'" + strings.ReplaceAll(s, "'", "''") + "'"
			},
			boolean: sqlBool,
		}
	case database.SQLServer:
		return quoter{
			ident:   func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
			literal: func(s string) string { return "N'" + strings.ReplaceAll(s, "'", "''") + "'" },
			boolean: func(b bool) string {
				if b {
					return "1"
				}
				return "0"
			},
		}
	default:
		return quoter{
			ident:   pq.QuoteIdentifier,
			literal: func(s string) string { return strings.TrimSpace(pq.QuoteLiteral(s)) },
			boolean: sqlBool,
		}
	}
}

func sqlBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (q quoter) value(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case decimal.Decimal:
		return x.String()
	case bool:
		return q.boolean(x)
	case string:
		return q.literal(x)
	default:
		return q.literal(fmt.Sprint(x))
	}
}

// InsertStatements renders accepted records as INSERT statements in generation
// order. Nullable self references are inserted as NULL and set afterwards with
// UPDATE statements keyed by primary key, so rows may point at later rows.
func InsertStatements(s *schema.Schema, res *generator.Result, d database.Dialect) (string, error) {
	q := quoterFor(d)
	var b strings.Builder
	for _, name := range res.Order {
		tr := res.Tables[name]
		if len(tr.Records) == 0 {
			continue
		}
		t, ok := s.Lookup(name)
		if !ok {
			return "", fmt.Errorf("table %q not in schema", name)
		}

		late := lateColumns(t)
		var updates []string
		fmt.Fprintf(&b, "-- %s: %d rows\n", t.Name, len(tr.Records))
		for _, rec := range tr.Records {
			var cols, vals []string
			for ci := range t.Columns {
				c := t.Columns[ci].Name
				v, present := rec[c]
				if !present {
					continue
				}
				if late[c] && v != nil {
					updates = append(updates, updateStatement(q, t, c, v, rec))
					v = nil
				}
				cols = append(cols, q.ident(c))
				vals = append(vals, q.value(v))
			}
			fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s);\n",
				q.ident(t.Name), strings.Join(cols, ", "), strings.Join(vals, ", "))
		}
		for _, u := range updates {
			b.WriteString(u)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// lateColumns returns the nullable self-referencing columns of a table with a
// primary key.
func lateColumns(t *schema.Table) map[string]bool {
	if len(t.PrimaryKey) == 0 {
		return nil
	}
	out := make(map[string]bool)
	for _, fk := range t.ForeignKeys {
		if fk.SelfReference() && fk.Nullable {
			out[t.Columns[fk.From.Column].Name] = true
		}
	}
	return out
}

func updateStatement(q quoter, t *schema.Table, col string, v any, rec map[string]any) string {
	pk := append([]int(nil), t.PrimaryKey...)
	sort.Ints(pk)
	conds := make([]string, len(pk))
	for i, ci := range pk {
		name := t.Columns[ci].Name
		conds[i] = fmt.Sprintf("%s = %s", q.ident(name), q.value(rec[name]))
	}
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s;\n",
		q.ident(t.Name), q.ident(col), q.value(v), strings.Join(conds, " AND "))
}
