// Package prompt builds the chat messages sent to the LLM for one generation call.
// Every function here is pure: identical inputs give identical messages.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"sdsdg/internal/conversation"
	"sdsdg/internal/types"
)

// DefaultLanguage is used for generated text values when Options leaves it empty.
const DefaultLanguage = "en"

// Options tunes the system instruction.
type Options struct {
	// Language of generated free-text values, e.g. "en" or "pt-BR".
	Language string
	// DefaultCount is the number of rows per table when the user names none.
	DefaultCount int
}

// SystemInstruction returns the constraints and output contract every call starts with.
func SystemInstruction(opts Options) string {
	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	count := opts.DefaultCount
	if count <= 0 {
		count = 10
	}
	return fmt.Sprintf(`You are a synthetic data generator for relational databases.

## OUTPUT FORMAT
1. Respond with JSON only. No explanations, no markdown code fences.
2. Use exactly this shape, one key per table:
   {"<table>": {"columns": ["<column>", ...], "rows": [[<value>, ...], ...]}}
   Every row lists its values in the order of "columns".
3. If the request cannot be satisfied, respond with {}.

## CONSTRAINTS
1. Produce exactly the number of rows requested for each table. If no number is given, produce %d rows.
2. Every NOT NULL column must have a value. Use null only for NULLABLE columns.
3. Respect UNIQUE and primary key constraints: never repeat a value, and never reuse a value listed as already used.
4. Foreign key columns must only use the parent key values supplied in the request.
5. Respect maximum lengths, decimal precision and enumeration values exactly.
6. Dates use YYYY-MM-DD, timestamps use YYYY-MM-DDTHH:MM:SS, booleans use true or false.
7. Data must be anonymized: no real people, use example.com for e-mail addresses.
8. Values should be plausible for the column names. Free text is written in %s.`, count, lang)
}

// Compose orders the messages of one call: system instruction, prior turns
// oldest first, schema context, then the current intent.
func Compose(opts Options, schemaText string, conv *conversation.Conversation, intent string) []types.Message {
	msgs := make([]types.Message, 0, conv.Len()+3)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: SystemInstruction(opts)})
	msgs = append(msgs, conv.Messages()...)
	msgs = append(msgs,
		types.Message{Role: types.RoleSystem, Content: "## DATABASE SCHEMA\n" + schemaText},
		types.Message{Role: types.RoleUser, Content: intent},
	)
	return msgs
}

// ParentKeys lists the values a foreign key column may take.
type ParentKeys struct {
	Column    string
	Table     string
	RefColumn string
	Nullable  bool
	Values    []any
}

// UsedValues lists tuples of a unique constraint that are already taken.
type UsedValues struct {
	Columns []string
	Tuples  [][]any
}

// SelfReference describes a foreign key from a table to itself.
type SelfReference struct {
	Column    string
	RefColumn string
	Nullable  bool
	// Existing holds key values of rows accepted so far.
	Existing []any
}

// TableRequest is the per-table intent of one call.
type TableRequest struct {
	Table   string
	Count   int
	Columns []string
	Intent  string
	Parents []ParentKeys
	Used    []UsedValues
	Self    []SelfReference
	Hints   map[string]string
}

// Render formats the request as the user message of a call.
func (r TableRequest) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d rows for table %q.\n", r.Count, r.Table)
	fmt.Fprintf(&sb, "Columns, in this order: %s\n", strings.Join(r.Columns, ", "))
	if r.Intent != "" {
		fmt.Fprintf(&sb, "\n## USER REQUEST\n%s\n", r.Intent)
	}

	if len(r.Hints) > 0 {
		sb.WriteString("\n## COLUMN HINTS\n")
		cols := make([]string, 0, len(r.Hints))
		for c := range r.Hints {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			fmt.Fprintf(&sb, "- %s: %s\n", c, r.Hints[c])
		}
	}

	if len(r.Parents) > 0 {
		sb.WriteString("\n## FOREIGN KEY VALUES\n")
		for _, p := range r.Parents {
			if len(p.Values) == 0 {
				fmt.Fprintf(&sb, "- %s must be null, %s has no rows yet\n", p.Column, p.Table)
				continue
			}
			fmt.Fprintf(&sb, "- %s must be one of %s.%s: %s", p.Column, p.Table, p.RefColumn, formatList(p.Values))
			if p.Nullable {
				sb.WriteString(" (or null)")
			}
			sb.WriteString("\n")
		}
	}

	if len(r.Self) > 0 {
		sb.WriteString("\n## SELF REFERENCES\n")
		for _, s := range r.Self {
			switch {
			case len(s.Existing) > 0:
				fmt.Fprintf(&sb, "- %s references %s of this table. Use one of %s or the %s of a row in this response",
					s.Column, s.RefColumn, formatList(s.Existing), s.RefColumn)
				if s.Nullable {
					sb.WriteString(", or null")
				}
				sb.WriteString(".\n")
			case s.Nullable:
				fmt.Fprintf(&sb, "- %s references %s of this table. Use the %s of an earlier row in this response, or null.\n",
					s.Column, s.RefColumn, s.RefColumn)
			default:
				fmt.Fprintf(&sb, "- %s references %s of this table. The first row must reference its own %s; later rows use the %s of an earlier row.\n",
					s.Column, s.RefColumn, s.RefColumn, s.RefColumn)
			}
		}
	}

	if len(r.Used) > 0 {
		sb.WriteString("\n## ALREADY USED\n")
		for _, u := range r.Used {
			if len(u.Tuples) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "- (%s): %s\n", strings.Join(u.Columns, ", "), formatTuples(u.Tuples))
		}
	}
	return sb.String()
}

func formatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func formatList(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

func formatTuples(tuples [][]any) string {
	parts := make([]string, len(tuples))
	for i, t := range tuples {
		if len(t) == 1 {
			parts[i] = formatValue(t[0])
			continue
		}
		parts[i] = "(" + formatList(t) + ")"
	}
	return strings.Join(parts, ", ")
}
