package generator

import (
	"fmt"
	"sync"

	"sdsdg/internal/schema"
	"sdsdg/internal/validator"
)

// KeyRegistry holds the accepted key values of finished tables. Each table
// publishes once, after its last batch, and is read-only afterwards.
type KeyRegistry struct {
	mu        sync.RWMutex
	published map[schema.TableID]bool
	keys      map[schema.ColumnRef]map[string]struct{}
	values    map[schema.ColumnRef][]any
}

// NewKeyRegistry returns an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{
		published: make(map[schema.TableID]bool),
		keys:      make(map[schema.ColumnRef]map[string]struct{}),
		values:    make(map[schema.ColumnRef][]any),
	}
}

// Publish records the key values of table id, by column index.
func (r *KeyRegistry) Publish(id schema.TableID, columns map[int][]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.published[id] {
		return fmt.Errorf("keys of table %d already published", id)
	}
	r.published[id] = true
	for col, vals := range columns {
		ref := schema.ColumnRef{Table: id, Column: col}
		set := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			set[validator.KeyOf(v)] = struct{}{}
		}
		r.keys[ref] = set
		r.values[ref] = append([]any(nil), vals...)
	}
	return nil
}

// Published reports whether table id has published its keys.
func (r *KeyRegistry) Published(id schema.TableID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published[id]
}

// Contains implements validator.KeyLookup.
func (r *KeyRegistry) Contains(ref schema.ColumnRef, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[ref][key]
	return ok
}

// Values returns the accepted values of ref in acceptance order.
func (r *KeyRegistry) Values(ref schema.ColumnRef) []any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[ref]
}

var _ validator.KeyLookup = (*KeyRegistry)(nil)
