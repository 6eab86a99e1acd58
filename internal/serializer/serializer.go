// Package serializer renders the schema graph as compact LLM context that fits a
// token budget.
package serializer

import (
	"fmt"
	"sort"
	"strings"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/conversation"
	"sdsdg/internal/schema"
	"sdsdg/internal/tokens"
)

type detail int

const (
	omitted detail = iota
	stub
	reduced
	full
)

// level is one rung of the degradation ladder: how much detail neighbors of the
// focus tables and all remaining tables keep.
type level struct {
	neighbors detail
	others    detail
}

// ladder goes from the richest rendering to the minimal one. Each rung renders a
// subset of the lines of the previous rung, so a smaller budget never yields more
// detail.
var ladder = []level{
	{neighbors: full, others: full},
	{neighbors: full, others: reduced},
	{neighbors: full, others: omitted},
	{neighbors: reduced, others: omitted},
	{neighbors: stub, others: omitted},
	{neighbors: omitted, others: omitted},
}

// Serialize renders the focus tables, their direct foreign-key neighbors and the
// rest of the schema within budget tokens. It drops detail step by step and
// returns a TokenBudgetExceededError when even the focus tables alone do not fit.
func Serialize(s *schema.Schema, focus []string, budget int, counter tokens.Counter) (string, error) {
	if counter == nil {
		counter = tokens.Heuristic{}
	}

	focusIDs, err := resolveFocus(s, focus)
	if err != nil {
		return "", err
	}
	neighbors, others := classify(s, focusIDs)

	var text string
	for _, lvl := range ladder {
		text = render(s, focusIDs, neighbors, others, lvl)
		if counter.Count(text) <= budget {
			return text, nil
		}
	}

	name := strings.Join(focus, ", ")
	return "", &apperrors.TokenBudgetExceededError{Table: name, Budget: budget, Needed: counter.Count(text)}
}

// FitConversation drops the oldest turns until the history weighs at most budget
// tokens. It returns the number of dropped turns.
func FitConversation(conv *conversation.Conversation, budget int) int {
	if conv == nil {
		return 0
	}
	dropped := 0
	for conv.Len() > 0 && conv.Tokens() > budget {
		conv.DropOldest(1)
		dropped++
	}
	return dropped
}

func resolveFocus(s *schema.Schema, focus []string) ([]schema.TableID, error) {
	ids := make([]schema.TableID, 0, len(focus))
	seen := make(map[schema.TableID]bool)
	for _, name := range focus {
		t, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("focus table %q not in schema %q", name, s.Name)
		}
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

func classify(s *schema.Schema, focus []schema.TableID) (neighbors, others []schema.TableID) {
	inFocus := make(map[schema.TableID]bool, len(focus))
	for _, id := range focus {
		inFocus[id] = true
	}
	isNeighbor := make(map[schema.TableID]bool)
	for _, id := range focus {
		for _, n := range s.Neighbors(id) {
			if !inFocus[n] {
				isNeighbor[n] = true
			}
		}
	}
	for i := range s.Tables {
		id := s.Tables[i].ID
		switch {
		case inFocus[id]:
		case isNeighbor[id]:
			neighbors = append(neighbors, id)
		default:
			others = append(others, id)
		}
	}
	byName := func(ids []schema.TableID) {
		sort.Slice(ids, func(i, j int) bool { return s.Tables[ids[i]].Name < s.Tables[ids[j]].Name })
	}
	byName(neighbors)
	byName(others)
	return neighbors, others
}

func render(s *schema.Schema, focus, neighbors, others []schema.TableID, lvl level) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Database %q\n", s.Name))
	for _, id := range focus {
		writeTable(&sb, s, id, full)
	}
	for _, id := range neighbors {
		writeTable(&sb, s, id, lvl.neighbors)
	}
	for _, id := range others {
		writeTable(&sb, s, id, lvl.others)
	}
	return sb.String()
}

func writeTable(sb *strings.Builder, s *schema.Schema, id schema.TableID, d detail) {
	if d == omitted {
		return
	}
	t := s.Table(id)
	if d == stub {
		keys := t.PrimaryKey
		if len(keys) == 0 {
			keys = referencedColumns(s, id)
		}
		sb.WriteString(fmt.Sprintf("Table %s (key: %s)\n", t.Name, strings.Join(t.ColumnNames(keys), ", ")))
		return
	}

	sb.WriteString(fmt.Sprintf("Table %s\n", t.Name))
	for i, col := range t.Columns {
		sb.WriteString("- ")
		sb.WriteString(col.Name)
		sb.WriteString(" (")
		sb.WriteString(typeLabel(col, d == full))
		sb.WriteString(")")
		if col.PrimaryKey {
			sb.WriteString(" [PK]")
		}
		if fk, ok := t.ForeignKeyFor(i); ok {
			target := s.Table(fk.To.Table)
			sb.WriteString(fmt.Sprintf(" [FK -> %s.%s]", target.Name, target.Columns[fk.To.Column].Name))
		}
		if col.Nullable {
			sb.WriteString(" [NULLABLE]")
		} else {
			sb.WriteString(" [NOT NULL]")
		}
		if !col.PrimaryKey && t.IsUnique(i) {
			sb.WriteString(" [UNIQUE]")
		}
		if d == full {
			if col.AutoIncrement {
				sb.WriteString(" [AUTO]")
			}
			if col.Default != nil {
				sb.WriteString(fmt.Sprintf(" [DEFAULT %s]", *col.Default))
			}
		}
		sb.WriteString("\n")
	}
	if len(t.PrimaryKey) > 1 {
		sb.WriteString(fmt.Sprintf("Primary key (%s)\n", strings.Join(t.ColumnNames(t.PrimaryKey), ", ")))
	}
	for _, u := range t.Unique {
		if len(u) > 1 {
			sb.WriteString(fmt.Sprintf("Unique (%s)\n", strings.Join(t.ColumnNames(u), ", ")))
		}
	}
}

func typeLabel(col schema.Column, withBounds bool) string {
	switch col.Type {
	case schema.TypeEnumeration:
		quoted := make([]string, len(col.EnumValues))
		for i, v := range col.EnumValues {
			quoted[i] = "'" + v + "'"
		}
		return "enumeration: " + strings.Join(quoted, ",")
	case schema.TypeText:
		if withBounds && col.MaxLength > 0 {
			return fmt.Sprintf("text, max %d", col.MaxLength)
		}
	case schema.TypeDecimal:
		if withBounds && col.Precision > 0 {
			return fmt.Sprintf("decimal(%d,%d)", col.Precision, col.Scale)
		}
	case schema.TypeDatetime:
		if col.DateOnly {
			return "date"
		}
	}
	return string(col.Type)
}

// referencedColumns returns the columns of id that other tables point at, used as
// the key of stub tables without a primary key.
func referencedColumns(s *schema.Schema, id schema.TableID) []int {
	seen := make(map[int]bool)
	var cols []int
	for i := range s.Tables {
		for _, fk := range s.Tables[i].ForeignKeys {
			if fk.To.Table == id && !seen[fk.To.Column] {
				seen[fk.To.Column] = true
				cols = append(cols, fk.To.Column)
			}
		}
	}
	sort.Ints(cols)
	return cols
}
