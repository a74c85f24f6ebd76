package selection

import (
	"fmt"

	language "github.com/hanpama/federate/internal/language"
)

// ParseFieldSet parses a key field set such as "id organization { id }".
// When typeName is non-empty the result is wrapped in an inline fragment on
// that type with __typename selected first, the shape planners emit for
// entity requirements.
func ParseFieldSet(typeName, fields string) (Set, error) {
	doc, err := language.ParseQuery("{" + fields + "}")
	if err != nil {
		return nil, fmt.Errorf("parse field set %q: %w", fields, err)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("parse field set %q: expected a single selection set", fields)
	}
	set, err := convert(doc.Operations[0].SelectionSet)
	if err != nil {
		return nil, fmt.Errorf("parse field set %q: %w", fields, err)
	}
	if typeName == "" {
		return set, nil
	}
	inner := Set{&Field{Name: TypenameField}}
	for _, s := range set {
		if f, ok := s.(*Field); ok && f.Name == TypenameField && f.Alias == "" {
			continue
		}
		inner = append(inner, s)
	}
	return Set{&InlineFragment{TypeCondition: typeName, Selections: inner}}, nil
}

func convert(ss language.SelectionSet) (Set, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make(Set, 0, len(ss))
	for _, sel := range ss {
		switch s := sel.(type) {
		case *language.Field:
			if len(s.Arguments) > 0 {
				return nil, fmt.Errorf("field %q: arguments are not allowed in a field set", s.Name)
			}
			children, err := convert(s.SelectionSet)
			if err != nil {
				return nil, err
			}
			f := &Field{Name: s.Name, Selections: children}
			if s.Alias != s.Name {
				f.Alias = s.Alias
			}
			out = append(out, f)
		case *language.InlineFragment:
			children, err := convert(s.SelectionSet)
			if err != nil {
				return nil, err
			}
			out = append(out, &InlineFragment{TypeCondition: s.TypeCondition, Selections: children})
		case *language.FragmentSpread:
			return nil, fmt.Errorf("fragment spread ...%s is not allowed in a field set", s.Name)
		}
	}
	return out, nil
}
