package generator

import (
	"sort"

	"sdsdg/internal/apperrors"
	"sdsdg/internal/schema"
)

// Plan is the order in which tables are generated. Tables of one level have no
// foreign keys between them and may run concurrently.
type Plan struct {
	Levels [][]schema.TableID
	// Deferred are nullable foreign keys inside a cycle. They are not ordered
	// and their columns stay null.
	Deferred []schema.ForeignKey
}

// Order returns the table names of the plan, level by level.
func (p *Plan) Order(s *schema.Schema) []string {
	var names []string
	for _, level := range p.Levels {
		for _, id := range level {
			names = append(names, s.Table(id).Name)
		}
	}
	return names
}

// IsDeferred reports whether fk was left out of the ordering.
func (p *Plan) IsDeferred(fk schema.ForeignKey) bool {
	for _, d := range p.Deferred {
		if d.From == fk.From && d.To == fk.To {
			return true
		}
	}
	return false
}

type edge struct {
	parent, child schema.TableID
	fk            schema.ForeignKey
}

// NewPlan orders targets so that every table comes after the tables it
// references. Self references are ignored. A cycle of non-nullable foreign keys
// is an UnsatisfiableSchemaError.
func NewPlan(s *schema.Schema, targets []schema.TableID) (*Plan, error) {
	inTargets := make(map[schema.TableID]bool, len(targets))
	for _, id := range targets {
		inTargets[id] = true
	}

	var edges []edge
	for _, id := range sortedIDs(s, targets) {
		for _, fk := range s.Table(id).ForeignKeys {
			if fk.SelfReference() || !inTargets[fk.To.Table] {
				continue
			}
			edges = append(edges, edge{parent: fk.To.Table, child: id, fk: fk})
		}
	}

	var required []edge
	for _, e := range edges {
		if !e.fk.Nullable {
			required = append(required, e)
		}
	}
	if _, rest := levels(s, targets, required); len(rest) > 0 {
		return nil, &apperrors.UnsatisfiableSchemaError{Cycle: findCycle(s, rest, required)}
	}

	plan := &Plan{}
	component := stronglyConnected(targets, edges)
	var ordered []edge
	for _, e := range edges {
		if e.fk.Nullable && component[e.parent] == component[e.child] {
			plan.Deferred = append(plan.Deferred, e.fk)
			continue
		}
		ordered = append(ordered, e)
	}
	plan.Levels, _ = levels(s, targets, ordered)
	return plan, nil
}

// levels runs Kahn's algorithm one layer at a time. Names sort each layer. The
// ids left over sit on a cycle or behind one.
func levels(s *schema.Schema, targets []schema.TableID, edges []edge) ([][]schema.TableID, []schema.TableID) {
	indegree := make(map[schema.TableID]int, len(targets))
	children := make(map[schema.TableID][]schema.TableID)
	for _, id := range targets {
		indegree[id] = 0
	}
	for _, e := range edges {
		indegree[e.child]++
		children[e.parent] = append(children[e.parent], e.child)
	}

	var out [][]schema.TableID
	var current []schema.TableID
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}
	done := 0
	for len(current) > 0 {
		current = sortedIDs(s, current)
		out = append(out, current)
		done += len(current)
		var next []schema.TableID
		for _, id := range current {
			for _, c := range children[id] {
				indegree[c]--
				if indegree[c] == 0 {
					next = append(next, c)
				}
			}
		}
		current = next
	}

	var rest []schema.TableID
	if done < len(targets) {
		for id, d := range indegree {
			if d > 0 {
				rest = append(rest, id)
			}
		}
	}
	return out, sortedIDs(s, rest)
}

// findCycle walks from the first leftover table to a parent until a table repeats.
// Every leftover table has a leftover parent, so the walk always closes.
func findCycle(s *schema.Schema, rest []schema.TableID, edges []edge) []string {
	left := make(map[schema.TableID]bool, len(rest))
	for _, id := range rest {
		left[id] = true
	}
	parents := make(map[schema.TableID][]schema.TableID)
	for _, e := range edges {
		if left[e.parent] && left[e.child] {
			parents[e.child] = append(parents[e.child], e.parent)
		}
	}

	seenAt := make(map[schema.TableID]int)
	var path []schema.TableID
	for id := rest[0]; ; {
		if i, ok := seenAt[id]; ok {
			names := make([]string, 0, len(path)-i+1)
			for _, p := range path[i:] {
				names = append(names, s.Table(p).Name)
			}
			return append(names, s.Table(id).Name)
		}
		seenAt[id] = len(path)
		path = append(path, id)
		id = sortedIDs(s, parents[id])[0]
	}
}

// stronglyConnected labels each target with its component (Tarjan).
func stronglyConnected(targets []schema.TableID, edges []edge) map[schema.TableID]int {
	adj := make(map[schema.TableID][]schema.TableID)
	for _, e := range edges {
		adj[e.parent] = append(adj[e.parent], e.child)
	}

	index := make(map[schema.TableID]int)
	low := make(map[schema.TableID]int)
	onStack := make(map[schema.TableID]bool)
	component := make(map[schema.TableID]int)
	var stack []schema.TableID
	next, label := 0, 0

	var visit func(v schema.TableID)
	visit = func(v schema.TableID) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component[w] = label
				if w == v {
					break
				}
			}
			label++
		}
	}

	for _, id := range targets {
		if _, seen := index[id]; !seen {
			visit(id)
		}
	}
	return component
}

func sortedIDs(s *schema.Schema, ids []schema.TableID) []schema.TableID {
	out := append([]schema.TableID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return s.Table(out[i]).Name < s.Table(out[j]).Name })
	return out
}
