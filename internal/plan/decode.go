package plan

import (
	"encoding/json"
	"fmt"

	"github.com/hanpama/federate/internal/value"
)

type nodeHeader struct {
	Kind string `json:"kind"`
}

type rawQueryPlan struct {
	Kind           string          `json:"kind,omitempty"`
	Node           json.RawMessage `json:"node"`
	UsageReporting json.RawMessage `json:"usageReporting,omitempty"`
	Options        Options         `json:"options"`
}

func (qp *QueryPlan) UnmarshalJSON(data []byte) error {
	var raw rawQueryPlan
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("query plan: %w", err)
	}
	if raw.Kind != "" && raw.Kind != "QueryPlan" {
		return fmt.Errorf("query plan: unexpected kind %q", raw.Kind)
	}
	qp.UsageReporting = raw.UsageReporting
	qp.Options = raw.Options
	qp.Root = nil
	if len(raw.Node) == 0 || string(raw.Node) == "null" {
		return nil
	}
	root, err := DecodeNode(raw.Node)
	if err != nil {
		return fmt.Errorf("query plan: %w", err)
	}
	qp.Root = root
	return nil
}

func (qp *QueryPlan) MarshalJSON() ([]byte, error) {
	var node json.RawMessage
	if qp.Root != nil {
		b, err := EncodeNode(qp.Root)
		if err != nil {
			return nil, err
		}
		node = b
	}
	return json.Marshal(rawQueryPlan{
		Kind:           "QueryPlan",
		Node:           node,
		UsageReporting: qp.UsageReporting,
		Options:        qp.Options,
	})
}

// DecodeNode decodes a plan node tagged by its "kind" field.
func DecodeNode(data []byte) (Node, error) {
	var h nodeHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	switch h.Kind {
	case "Sequence", "Parallel":
		var raw struct {
			Nodes []json.RawMessage `json:"nodes"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", h.Kind, err)
		}
		nodes := make([]Node, 0, len(raw.Nodes))
		for i, r := range raw.Nodes {
			n, err := DecodeNode(r)
			if err != nil {
				return nil, fmt.Errorf("%s.nodes[%d]: %w", h.Kind, i, err)
			}
			nodes = append(nodes, n)
		}
		if h.Kind == "Sequence" {
			return &Sequence{Nodes: nodes}, nil
		}
		return &Parallel{Nodes: nodes}, nil

	case "Flatten":
		var raw struct {
			Path value.Path      `json:"path"`
			Node json.RawMessage `json:"node"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("Flatten: %w", err)
		}
		if len(raw.Node) == 0 || string(raw.Node) == "null" {
			return nil, fmt.Errorf("Flatten: missing node")
		}
		child, err := DecodeNode(raw.Node)
		if err != nil {
			return nil, fmt.Errorf("Flatten.node: %w", err)
		}
		return &Flatten{Path: raw.Path, Node: child}, nil

	case "Fetch":
		f := &Fetch{}
		if err := json.Unmarshal(data, &f.FetchSpec); err != nil {
			return nil, fmt.Errorf("Fetch: %w", err)
		}
		if f.OperationKind == "" {
			f.OperationKind = OperationQuery
		}
		return f, nil

	case "":
		return nil, fmt.Errorf("plan node without kind")
	default:
		return nil, fmt.Errorf("unsupported plan node kind %q", h.Kind)
	}
}

// EncodeNode is the inverse of DecodeNode.
func EncodeNode(node Node) ([]byte, error) {
	v, err := nodeObject(node)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func nodeObject(node Node) (any, error) {
	switch n := node.(type) {
	case *Sequence:
		return listObject("Sequence", n.Nodes)
	case *Parallel:
		return listObject("Parallel", n.Nodes)
	case *Flatten:
		child, err := nodeObject(n.Node)
		if err != nil {
			return nil, err
		}
		return struct {
			Kind string     `json:"kind"`
			Path value.Path `json:"path"`
			Node any        `json:"node"`
		}{"Flatten", n.Path, child}, nil
	case *Fetch:
		return struct {
			Kind string `json:"kind"`
			FetchSpec
		}{"Fetch", n.FetchSpec}, nil
	default:
		return nil, fmt.Errorf("unsupported plan node %T", node)
	}
}

func listObject(kind string, nodes []Node) (any, error) {
	children := make([]any, len(nodes))
	for i, c := range nodes {
		v, err := nodeObject(c)
		if err != nil {
			return nil, err
		}
		children[i] = v
	}
	return struct {
		Kind  string `json:"kind"`
		Nodes []any  `json:"nodes"`
	}{kind, children}, nil
}
