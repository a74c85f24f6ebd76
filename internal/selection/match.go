package selection

import "github.com/hanpama/federate/internal/value"

// Matcher projects an object onto a required field set. It returns false when
// the object does not satisfy the set and must be left out of the batch.
type Matcher interface {
	Match(obj any, set Set) (any, bool)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(obj any, set Set) (any, bool)

func (f MatcherFunc) Match(obj any, set Set) (any, bool) { return f(obj, set) }

// DefaultMatcher projects without schema knowledge. A missing __typename is
// filled from the enclosing type condition, a missing field fails the
// enclosing object, and a fragment applies when the object's type equals its
// type condition or the type is unknown.
var DefaultMatcher Matcher = MatcherFunc(Project)

// Project returns the projection of obj onto set, or false when nothing
// non-empty could be projected.
func Project(obj any, set Set) (any, bool) {
	out, ok := project(obj, set, "")
	if !ok || len(out) == 0 {
		return nil, false
	}
	return out, true
}

func project(content any, set Set, currentType string) (map[string]any, bool) {
	obj, ok := content.(map[string]any)
	if !ok {
		return nil, false
	}
	if t, ok := obj[TypenameField].(string); ok {
		currentType = t
	}

	out := make(map[string]any, len(set))
	for _, sel := range set {
		switch s := sel.(type) {
		case *Field:
			key := s.ResponseKey()
			v, present := obj[key]
			if !present {
				if s.Name == TypenameField && currentType != "" {
					out[key] = currentType
					continue
				}
				return nil, false
			}
			out[key] = projectField(v, s.Selections)

		case *InlineFragment:
			cond := s.TypeCondition
			if cond != "" && currentType != "" && cond != currentType {
				continue
			}
			fragmentType := currentType
			if fragmentType == "" {
				fragmentType = cond
			}
			selected, ok := project(obj, s.Selections, fragmentType)
			if !ok {
				continue
			}
			for k, v := range selected {
				if existing, ok := out[k]; ok {
					out[k] = value.DeepMerge(existing, v)
				} else {
					out[k] = v
				}
			}
		}
	}
	return out, true
}

func projectField(v any, set Set) any {
	if arr, ok := v.([]any); ok {
		items := make([]any, len(arr))
		for i, item := range arr {
			items[i] = projectField(item, set)
		}
		return items
	}
	if len(set) == 0 {
		return v
	}
	if value.IsNull(v) {
		return nil
	}
	nested, ok := project(v, set, "")
	if !ok {
		return nil
	}
	return nested
}
