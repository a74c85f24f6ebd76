// Package value holds the JSON-like response tree used while executing a
// query plan, together with the Path type that addresses locations in it.
//
// A value is one of nil, bool, a number (json.Number, float64 or int), string,
// []any, or map[string]any, matching what encoding/json produces. Functions in
// this package never mutate their inputs except InsertAt, which writes into
// the tree it is given; callers only pass freshly built trees to it.
package value

import (
	"fmt"
	"reflect"
)

// DeepMerge combines addition into target and returns the result. Two objects
// are merged key by key and two arrays index by index, recursing where both
// sides hold a value; the longer array's tail is kept. A null addition leaves
// target in place. In every other pairing addition replaces target. Neither
// input is modified: containers on the merge path are copied before being
// written.
//
// Arrays merge by index because a fetch below a Flatten over "items.@"
// returns a sparse array built by InsertAt: slot i holds the entity for
// items[i] and slots without a candidate are nil. Replacing the array would
// drop the fields earlier fetches put into items, and treating nil as a value
// would erase the elements that had no candidate.
func DeepMerge(target, addition any) any {
	switch b := addition.(type) {
	case nil:
		return target
	case map[string]any:
		a, ok := target.(map[string]any)
		if !ok {
			return addition
		}
		out := make(map[string]any, len(a)+len(b))
		for k, v := range a {
			out[k] = v
		}
		for k, v := range b {
			if existing, ok := out[k]; ok {
				out[k] = DeepMerge(existing, v)
			} else {
				out[k] = v
			}
		}
		return out
	case []any:
		a, ok := target.([]any)
		if !ok {
			return addition
		}
		out := make([]any, max(len(a), len(b)))
		copy(out, a)
		for i, v := range b {
			if i < len(a) {
				out[i] = DeepMerge(a[i], v)
			} else {
				out[i] = v
			}
		}
		return out
	default:
		return addition
	}
}

// FromPath builds a single-branch skeleton along path with leaf at its end.
// Keys create objects, indexes create arrays padded with nulls. Flatten
// markers are skipped.
func FromPath(path Path, leaf any) any {
	out := leaf
	for i := len(path) - 1; i >= 0; i-- {
		switch e := path[i].(type) {
		case string:
			out = map[string]any{e: out}
		case int:
			arr := make([]any, e+1)
			arr[e] = out
			out = arr
		}
	}
	return out
}

// InsertAt writes v at path inside tree, creating intermediate objects and
// arrays as needed, and returns the (possibly new) root. It fails when an
// existing node has the wrong shape for the next path element.
func InsertAt(tree any, path Path, v any) (any, error) {
	if len(path) == 0 {
		return v, nil
	}
	switch e := path[0].(type) {
	case FlattenElement:
		return InsertAt(tree, path[1:], v)
	case string:
		var obj map[string]any
		switch node := tree.(type) {
		case nil:
			obj = map[string]any{}
		case map[string]any:
			obj = node
		default:
			return tree, fmt.Errorf("insert at %s: expected an object, got %T", path, tree)
		}
		child, err := InsertAt(obj[e], path[1:], v)
		if err != nil {
			return tree, err
		}
		obj[e] = child
		return obj, nil
	case int:
		var arr []any
		switch node := tree.(type) {
		case nil:
		case []any:
			arr = node
		default:
			return tree, fmt.Errorf("insert at %s: expected an array, got %T", path, tree)
		}
		for len(arr) <= e {
			arr = append(arr, nil)
		}
		child, err := InsertAt(arr[e], path[1:], v)
		if err != nil {
			return tree, err
		}
		arr[e] = child
		return arr, nil
	default:
		return tree, fmt.Errorf("insert at %s: unsupported path element %T", path, e)
	}
}

// Select calls fn for every value reachable from tree along path, together
// with its concrete path. A key met on an array is applied to each element,
// and Flatten expands the array at its position. Missing keys, out of range
// indexes, and nulls end the branch silently.
func Select(tree any, path Path, fn func(Path, any)) {
	selectInto(Path{}, path, tree, fn)
}

func selectInto(parent Path, path Path, data any, fn func(Path, any)) {
	if len(path) == 0 {
		fn(parent, data)
		return
	}
	switch e := path[0].(type) {
	case FlattenElement:
		if arr, ok := data.([]any); ok {
			for i, item := range arr {
				selectInto(parent.Append(i), path[1:], item, fn)
			}
		}
	case int:
		if arr, ok := data.([]any); ok && e >= 0 && e < len(arr) {
			selectInto(parent.Append(e), path[1:], arr[e], fn)
		}
	case string:
		switch node := data.(type) {
		case map[string]any:
			if child, ok := node[e]; ok {
				selectInto(parent.Append(e), path[1:], child, fn)
			}
		case []any:
			for i, item := range node {
				selectInto(parent.Append(i), path, item, fn)
			}
		}
	}
}

// Get returns the first value Select reaches along path.
func Get(tree any, path Path) (any, bool) {
	var (
		found bool
		out   any
	)
	Select(tree, path, func(_ Path, v any) {
		if !found {
			found = true
			out = v
		}
	})
	return out, found
}

// IsNull reports whether v is a JSON null, including typed nil containers.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Equal reports whether a and b are structurally equal trees.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
