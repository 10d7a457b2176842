// Package metadata implements brainy's secondary index: an inverted
// (field, value) -> set-of-ids structure supporting equality and range
// filters, maintained incrementally on noun/verb mutation and rebuildable
// on demand (spec.md §4.4).
package metadata

import (
	"sort"
	"sync"
)

// idSet is a small set-of-strings helper kept local to this package so
// callers never see map[string]struct{} in the public API.
type idSet map[string]struct{}

func (s idSet) add(id string)      { s[id] = struct{}{} }
func (s idSet) remove(id string)   { delete(s, id) }
func (s idSet) slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// fieldIndex holds every distinct value seen for one field, each mapping
// to the set of ids carrying it, plus an ordered value list for range
// scans on that field.
type fieldIndex struct {
	mu      sync.RWMutex
	byValue map[string]idSet
	values  []string // sorted, deduplicated string forms of every value seen
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{byValue: make(map[string]idSet)}
}

// Index is the metadata secondary index. It is safe for concurrent use;
// each field gets its own lock so writes to unrelated fields never
// contend, following the sharded-lock style used elsewhere in the pack
// for hot structures, adapted here to a per-field rather than per-bucket
// granularity since fields (not hash buckets) are the natural shard key.
type Index struct {
	mu     sync.RWMutex
	fields map[string]*fieldIndex
}

// New creates an empty metadata index.
func New() *Index {
	return &Index{fields: make(map[string]*fieldIndex)}
}

func (ix *Index) fieldLocked(field string) *fieldIndex {
	ix.mu.RLock()
	fi, ok := ix.fields[field]
	ix.mu.RUnlock()
	if ok {
		return fi
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if fi, ok = ix.fields[field]; ok {
		return fi
	}
	fi = newFieldIndex()
	ix.fields[field] = fi
	return fi
}

// Add indexes one (field, value) pair for id. Call once per scalar field
// in an entity's metadata record; array values should be added once per
// element by the caller.
func (ix *Index) Add(id, field string, value string) {
	fi := ix.fieldLocked(field)
	fi.mu.Lock()
	defer fi.mu.Unlock()
	set, ok := fi.byValue[value]
	if !ok {
		set = make(idSet)
		fi.byValue[value] = set
		fi.values = insertSorted(fi.values, value)
	}
	set.add(id)
}

// Remove drops id from one (field, value) entry. Empty-set entries are
// pruned so GetFilterValues never reports stale values.
func (ix *Index) Remove(id, field, value string) {
	ix.mu.RLock()
	fi, ok := ix.fields[field]
	ix.mu.RUnlock()
	if !ok {
		return
	}
	fi.mu.Lock()
	defer fi.mu.Unlock()
	set, ok := fi.byValue[value]
	if !ok {
		return
	}
	set.remove(id)
	if len(set) == 0 {
		delete(fi.byValue, value)
		fi.values = removeSorted(fi.values, value)
	}
}

// RemoveID scrubs id out of every field/value entry in the index; used on
// physical delete (cleanup) and on update, before re-indexing the new
// metadata record.
func (ix *Index) RemoveID(id string, fields map[string][]string) {
	for field, values := range fields {
		for _, v := range values {
			ix.Remove(id, field, v)
		}
	}
}

// GetIdsForFilter evaluates a single leaf predicate directly against the
// index (equality and range operators only; contains/startsWith/endsWith
// and boolean combinators require a full record scan and are evaluated by
// pkg/query against Predicate.Matches instead). Returns the matching id
// set, unordered.
func (ix *Index) GetIdsForFilter(field string, op Op, value string) []string {
	fi := ix.fieldLocked(field)
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	switch op {
	case OpEq:
		out := make([]string, 0, len(fi.byValue[value]))
		for id := range fi.byValue[value] {
			out = append(out, id)
		}
		return out
	case OpNe:
		seen := make(idSet)
		for v, set := range fi.byValue {
			if v == value {
				continue
			}
			for id := range set {
				seen.add(id)
			}
		}
		return seen.slice()
	case OpGt, OpGte, OpLt, OpLte:
		return ix.rangeLocked(fi, op, value)
	default:
		return nil
	}
}

// rangeLocked assumes fi.mu is already held for reading.
func (ix *Index) rangeLocked(fi *fieldIndex, op Op, value string) []string {
	i := sort.SearchStrings(fi.values, value)
	var lo, hi int
	switch op {
	case OpGt:
		lo, hi = i, len(fi.values)
		if lo < len(fi.values) && fi.values[lo] == value {
			lo++
		}
	case OpGte:
		lo, hi = i, len(fi.values)
	case OpLt:
		lo, hi = 0, i
	case OpLte:
		lo, hi = 0, i
		if i < len(fi.values) && fi.values[i] == value {
			hi++
		}
	}
	out := make(idSet)
	for _, v := range fi.values[lo:hi] {
		for id := range fi.byValue[v] {
			out.add(id)
		}
	}
	return out.slice()
}

// GetFilterValues returns every distinct value seen for field, in sorted
// order.
func (ix *Index) GetFilterValues(field string) []string {
	fi := ix.fieldLocked(field)
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	out := make([]string, len(fi.values))
	copy(out, fi.values)
	return out
}

// Rebuild atomically replaces the whole index from a fresh full scan,
// used for the periodic on-demand rebuild named in spec.md §4.4.
func (ix *Index) Rebuild(entries map[string]map[string][]string) {
	fresh := New()
	for id, fields := range entries {
		for field, values := range fields {
			for _, v := range values {
				fresh.Add(id, field, v)
			}
		}
	}
	ix.mu.Lock()
	ix.fields = fresh.fields
	ix.mu.Unlock()
}

func insertSorted(values []string, v string) []string {
	i := sort.SearchStrings(values, v)
	if i < len(values) && values[i] == v {
		return values
	}
	values = append(values, "")
	copy(values[i+1:], values[i:])
	values[i] = v
	return values
}

func removeSorted(values []string, v string) []string {
	i := sort.SearchStrings(values, v)
	if i >= len(values) || values[i] != v {
		return values
	}
	return append(values[:i], values[i+1:]...)
}
