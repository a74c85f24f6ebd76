package value

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a location in a response tree. Elements are string keys,
// int indexes, or Flatten.
type Path []PathElement

type PathElement any

// FlattenElement is the "@" path marker: every element of the array found at
// this position.
type FlattenElement struct{}

func (FlattenElement) String() string { return "@" }

// Flatten is the single FlattenElement value.
var Flatten PathElement = FlattenElement{}

const flattenToken = "@"

// ParsePath parses a dotted path such as "topProducts.@.reviews.0".
// Integer segments become indexes and "@" becomes Flatten.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		p = append(p, parseElement(part))
	}
	return p
}

func parseElement(s string) PathElement {
	if s == flattenToken {
		return Flatten
	}
	if i, err := strconv.Atoi(s); err == nil && i >= 0 {
		return i
	}
	return s
}

// Join returns a new path made of p followed by other.
func (p Path) Join(other Path) Path {
	out := make(Path, len(p)+len(other))
	copy(out, p)
	copy(out[len(p):], other)
	return out
}

// Append returns a new path with elem appended.
func (p Path) Append(elem PathElement) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

func (p Path) IsEmpty() bool { return len(p) == 0 }

// HasPrefix reports whether prefix matches the first elements of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// WithoutFlatten returns p with every Flatten marker removed.
func (p Path) WithoutFlatten() Path {
	out := make(Path, 0, len(p))
	for _, e := range p {
		if _, ok := e.(FlattenElement); ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// String renders p with "/" separators, e.g. "/topProducts/0/reviews".
func (p Path) String() string {
	var b strings.Builder
	for _, e := range p {
		b.WriteByte('/')
		switch v := e.(type) {
		case string:
			b.WriteString(v)
		case int:
			b.WriteString(strconv.Itoa(v))
		case FlattenElement:
			b.WriteString(flattenToken)
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}

// Key returns a string that identifies p unambiguously (key "0" and index 0
// produce different keys). It is meant for map keys.
func (p Path) Key() string {
	var b strings.Builder
	for _, e := range p {
		switch v := e.(type) {
		case string:
			b.WriteByte('k')
			b.WriteString(strconv.Itoa(len(v)))
			b.WriteByte(':')
			b.WriteString(v)
		case int:
			b.WriteByte('i')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(';')
		case FlattenElement:
			b.WriteByte('@')
		}
	}
	return b.String()
}

func (p Path) MarshalJSON() ([]byte, error) {
	out := make([]any, len(p))
	for i, e := range p {
		if _, ok := e.(FlattenElement); ok {
			out[i] = flattenToken
			continue
		}
		out[i] = e
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either an array of segments or a dotted string.
func (p *Path) UnmarshalJSON(data []byte) error {
	var dotted string
	if err := json.Unmarshal(data, &dotted); err == nil {
		*p = ParsePath(dotted)
		return nil
	}
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("path: %w", err)
	}
	out, err := pathFromRaw(raw)
	if err != nil {
		return err
	}
	*p = out
	return nil
}

func pathFromRaw(raw []any) (Path, error) {
	out := make(Path, 0, len(raw))
	for _, r := range raw {
		switch v := r.(type) {
		case string:
			if v == flattenToken {
				out = append(out, Flatten)
			} else {
				out = append(out, v)
			}
		case float64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		default:
			return nil, fmt.Errorf("path: unsupported element %v (%T)", r, r)
		}
	}
	return out, nil
}
