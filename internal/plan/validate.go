package plan

import (
	"fmt"
	"strings"

	language "github.com/hanpama/federate/internal/language"
)

type Violation struct {
	Message string `json:"message"`
	Node    string `json:"node,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

type ValidationError []*Violation

func (e ValidationError) Error() string {
	msg := "violations found:\n"
	for _, v := range e {
		line := "- " + v.Message
		if v.Node != "" {
			line += " at " + v.Node
		}
		if v.Line > 0 {
			line += fmt.Sprintf(" %d:%d", v.Line, v.Column)
		}
		msg += line + "\n"
	}
	return msg
}

type validator struct {
	violations []*Violation
}

// Validate checks the structure of the plan and parses every fetch
// operation, verifying that its type matches the declared operation kind.
// It returns a ValidationError listing every problem found.
func Validate(qp *QueryPlan) error {
	v := &validator{}
	if qp.Root == nil {
		v.add("plan has no root node", "", nil)
	} else {
		v.node(qp.Root, "root")
	}
	if len(v.violations) > 0 {
		return ValidationError(v.violations)
	}
	return nil
}

func (v *validator) add(msg, where string, pos *language.Position) {
	vi := &Violation{Message: msg, Node: where}
	if pos != nil {
		vi.Line = pos.Line
		vi.Column = pos.Column
	}
	v.violations = append(v.violations, vi)
}

func (v *validator) node(n Node, where string) {
	switch n := n.(type) {
	case *Sequence:
		v.children("Sequence", n.Nodes, where)
	case *Parallel:
		v.children("Parallel", n.Nodes, where)
	case *Flatten:
		if len(n.Path) == 0 {
			v.add("Flatten has an empty path", where, nil)
		}
		if n.Node == nil {
			v.add("Flatten has no node", where, nil)
			return
		}
		v.node(n.Node, where+".node")
	case *Fetch:
		v.fetch(&n.FetchSpec, where)
	case nil:
		v.add("missing node", where, nil)
	default:
		v.add(fmt.Sprintf("unsupported node %T", n), where, nil)
	}
}

func (v *validator) children(kind string, nodes []Node, where string) {
	if len(nodes) == 0 {
		v.add(kind+" has no nodes", where, nil)
	}
	for i, c := range nodes {
		v.node(c, fmt.Sprintf("%s.nodes[%d]", where, i))
	}
}

func (v *validator) fetch(f *FetchSpec, where string) {
	if strings.TrimSpace(f.ServiceName) == "" {
		v.add("Fetch has no service name", where, nil)
	}
	doc, err := language.ParseNamedQuery(f.ServiceName, f.Operation)
	if err != nil {
		v.add(fmt.Sprintf("operation does not parse: %v", err), where, nil)
		return
	}

	var op *language.OperationDefinition
	switch {
	case f.OperationName != "":
		op = doc.Operations.ForName(f.OperationName)
		if op == nil {
			v.add(fmt.Sprintf("operation %q not found", f.OperationName), where, nil)
			return
		}
	case len(doc.Operations) == 1:
		op = doc.Operations[0]
	default:
		v.add(fmt.Sprintf("expected exactly one operation, found %d", len(doc.Operations)), where, nil)
		return
	}

	kind := f.OperationKind
	if kind == "" {
		kind = OperationQuery
	}
	if string(op.Operation) != string(kind) {
		v.add(fmt.Sprintf("operation is a %s but operationKind is %s", op.Operation, kind), where, op.Position)
	}
	if f.IsEntityFetch() && op.Operation != language.Query {
		v.add("entity fetches must be queries", where, op.Position)
	}
}
