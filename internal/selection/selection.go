// Package selection describes the field sets an entity fetch requires and
// projects response objects onto them to build representations.
package selection

import (
	"encoding/json"
	"fmt"
)

const TypenameField = "__typename"

// Selection is either a *Field or an *InlineFragment.
type Selection interface {
	isSelection()
}

// Field selects a response key. Alias, when set, is the key looked up in the
// object being projected.
type Field struct {
	Alias      string `json:"alias,omitempty"`
	Name       string `json:"name"`
	Selections Set    `json:"selections,omitempty"`
}

// InlineFragment applies its selections only to objects of TypeCondition.
type InlineFragment struct {
	TypeCondition string `json:"typeCondition,omitempty"`
	Selections    Set    `json:"selections"`
}

func (*Field) isSelection()          {}
func (*InlineFragment) isSelection() {}

// ResponseKey is the key the field occupies in a response object.
func (f *Field) ResponseKey() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Set is an ordered list of selections. It encodes as a JSON array of objects
// tagged with "kind": "Field" or "InlineFragment".
type Set []Selection

func (f *Field) MarshalJSON() ([]byte, error) {
	type field Field
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*field
	}{Kind: "Field", field: (*field)(f)})
}

func (f *InlineFragment) MarshalJSON() ([]byte, error) {
	type fragment InlineFragment
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*fragment
	}{Kind: "InlineFragment", fragment: (*fragment)(f)})
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("selection set: %w", err)
	}
	out := make(Set, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("selection %d: %w", i, err)
		}
		switch head.Kind {
		case "Field":
			var f Field
			if err := json.Unmarshal(raw, &f); err != nil {
				return fmt.Errorf("selection %d: %w", i, err)
			}
			out = append(out, &f)
		case "InlineFragment":
			var f InlineFragment
			if err := json.Unmarshal(raw, &f); err != nil {
				return fmt.Errorf("selection %d: %w", i, err)
			}
			out = append(out, &f)
		default:
			return fmt.Errorf("selection %d: unknown kind %q", i, head.Kind)
		}
	}
	*s = out
	return nil
}
