// Package plan defines the query plan tree produced by a planner and consumed
// by the executor. Plans are immutable once decoded.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hanpama/federate/internal/selection"
	"github.com/hanpama/federate/internal/value"
)

// Node is one of *Sequence, *Parallel, *Fetch or *Flatten.
type Node interface {
	isNode()
}

// Sequence runs its nodes one after another, each seeing the result of the
// previous ones.
type Sequence struct {
	Nodes []Node
}

// Parallel runs its nodes concurrently against the same input.
type Parallel struct {
	Nodes []Node
}

// Flatten executes Node with the current path extended by Path.
type Flatten struct {
	Path value.Path
	Node Node
}

// Fetch issues one backend call.
type Fetch struct {
	FetchSpec
}

func (*Sequence) isNode() {}
func (*Parallel) isNode() {}
func (*Flatten) isNode()  {}
func (*Fetch) isNode()    {}

type OperationKind string

const (
	OperationQuery        OperationKind = "query"
	OperationMutation     OperationKind = "mutation"
	OperationSubscription OperationKind = "subscription"
)

func (k *OperationKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("operation kind: %w", err)
	}
	switch OperationKind(strings.ToLower(s)) {
	case OperationQuery, "":
		*k = OperationQuery
	case OperationMutation:
		*k = OperationMutation
	case OperationSubscription:
		*k = OperationSubscription
	default:
		return fmt.Errorf("operation kind: unknown value %q", s)
	}
	return nil
}

// FetchSpec describes a single backend call. An empty Requires makes it a
// root fetch; otherwise it resolves entities through _entities.
type FetchSpec struct {
	ServiceName    string        `json:"serviceName"`
	Requires       selection.Set `json:"requires,omitempty"`
	VariableUsages []string      `json:"variableUsages,omitempty"`
	Operation      string        `json:"operation"`
	OperationName  string        `json:"operationName,omitempty"`
	OperationKind  OperationKind `json:"operationKind"`
}

func (s *FetchSpec) IsEntityFetch() bool { return len(s.Requires) > 0 }

type Options struct {
	EnableVariableDeduplication bool `json:"enableVariableDeduplication"`
}

// QueryPlan is the root of a plan together with execution-wide options.
// UsageReporting is carried through untouched.
type QueryPlan struct {
	Root           Node
	UsageReporting json.RawMessage
	Options        Options
}

// Walk calls fn for node and every node below it, depth first in plan order.
// Returning false from fn skips the children of that node.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Sequence:
		for _, c := range n.Nodes {
			Walk(c, fn)
		}
	case *Parallel:
		for _, c := range n.Nodes {
			Walk(c, fn)
		}
	case *Flatten:
		Walk(n.Node, fn)
	}
}

// SubgraphFetches counts the Fetch nodes in the plan.
func (qp *QueryPlan) SubgraphFetches() int {
	count := 0
	Walk(qp.Root, func(n Node) bool {
		if _, ok := n.(*Fetch); ok {
			count++
		}
		return true
	})
	return count
}

// ContainsMutations reports whether any fetch is a mutation.
func (qp *QueryPlan) ContainsMutations() bool {
	found := false
	Walk(qp.Root, func(n Node) bool {
		if f, ok := n.(*Fetch); ok && f.OperationKind == OperationMutation {
			found = true
		}
		return !found
	})
	return found
}

// Services returns the distinct service names referenced by the plan in
// first-use order.
func (qp *QueryPlan) Services() []string {
	seen := map[string]bool{}
	var out []string
	Walk(qp.Root, func(n Node) bool {
		if f, ok := n.(*Fetch); ok && !seen[f.ServiceName] {
			seen[f.ServiceName] = true
			out = append(out, f.ServiceName)
		}
		return true
	})
	return out
}
