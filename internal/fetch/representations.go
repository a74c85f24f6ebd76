package fetch

import (
	"github.com/hanpama/federate/internal/selection"
	"github.com/hanpama/federate/internal/value"
)

// Entry maps one candidate location to its slot in the batch.
type Entry struct {
	Path  value.Path
	Index int
}

// Representations is the outgoing batch of an entity fetch.
type Representations struct {
	// Batch holds the projected objects sent as $representations.
	Batch []any
	// Entries lists every candidate location in discovery order.
	Entries []Entry
	// Inverted lists, per batch slot, the locations that slot serves.
	Inverted [][]value.Path
}

// BuildRepresentations projects every object reachable at current in data
// onto requires. Objects that do not satisfy requires are left out. With
// dedup enabled, equal projections share one batch slot. It returns nil
// when no object qualifies.
func BuildRepresentations(data any, current value.Path, requires selection.Set, m selection.Matcher, dedup bool) *Representations {
	if m == nil {
		m = selection.DefaultMatcher
	}
	reps := &Representations{}
	var index *dedupIndex
	if dedup {
		index = newDedupIndex()
	}

	value.Select(data, current, func(p value.Path, v any) {
		eachObject(p, v, func(p value.Path, obj any) {
			projected, ok := m.Match(obj, requires)
			if !ok {
				return
			}
			slot, hash := -1, uint64(0)
			if index != nil {
				slot, hash = index.lookup(reps.Batch, projected)
			}
			if slot < 0 {
				slot = len(reps.Batch)
				reps.Batch = append(reps.Batch, projected)
				reps.Inverted = append(reps.Inverted, nil)
				if index != nil {
					index.add(hash, slot)
				}
			}
			reps.Entries = append(reps.Entries, Entry{Path: p, Index: slot})
			reps.Inverted[slot] = append(reps.Inverted[slot], p)
		})
	})

	if len(reps.Batch) == 0 {
		return nil
	}
	return reps
}

// eachObject expands arrays element-wise and calls fn for every object.
func eachObject(p value.Path, v any, fn func(value.Path, any)) {
	switch t := v.(type) {
	case []any:
		for i, item := range t {
			eachObject(p.Append(i), item, fn)
		}
	case map[string]any:
		fn(p, t)
	}
}

// dedupIndex is an order-preserving set of projected values, scoped to a
// single BuildRepresentations call.
type dedupIndex struct {
	buckets map[uint64][]int
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{buckets: make(map[uint64][]int)}
}

func (d *dedupIndex) lookup(batch []any, v any) (int, uint64) {
	h := value.Fingerprint(v)
	for _, slot := range d.buckets[h] {
		if value.Equal(batch[slot], v) {
			return slot, h
		}
	}
	return -1, h
}

func (d *dedupIndex) add(h uint64, slot int) {
	d.buckets[h] = append(d.buckets[h], slot)
}
