package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

var (
	// ErrDuplicateNode indicates a node id was added twice.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrUnknownDependency indicates a dependency reference missing from the plan.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrResultAlreadySet indicates a second write to a node result.
	ErrResultAlreadySet = errors.New("node result already set")
)

// Node is a single step in a Plan.
type Node struct {
	ID        string
	DependsOn []string

	result *agent.StepResult
}

// NewNode builds a node with the given dependencies.
func NewNode(id string, deps ...string) *Node {
	return &Node{ID: id, DependsOn: append([]string(nil), deps...)}
}

// Result returns the node result once the step has executed.
func (n *Node) Result() (agent.StepResult, bool) {
	if n.result == nil {
		return agent.StepResult{}, false
	}
	return *n.result, true
}

// SetResult records the node result. It may be called once.
func (n *Node) SetResult(r agent.StepResult) error {
	if n.result != nil {
		return fmt.Errorf("%w: %s", ErrResultAlreadySet, n.ID)
	}
	n.result = &r
	return nil
}

// Plan is a dependency graph of named steps. Nodes keep insertion order for
// diagnostics; correctness never depends on it.
type Plan struct {
	Intent intent.Intent

	nodes map[string]*Node
	order []string
}

// New returns an empty plan carrying the originating intent.
func New(in intent.Intent) *Plan {
	return &Plan{Intent: in, nodes: make(map[string]*Node)}
}

// AddNode inserts n, failing when the id already exists.
func (p *Plan) AddNode(n *Node) error {
	if n == nil || strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("node id required")
	}
	if _, ok := p.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	p.nodes[n.ID] = n
	p.order = append(p.order, n.ID)
	return nil
}

// Validate checks referential integrity only; cycles are detected when the
// plan is executed.
func (p *Plan) Validate() error {
	for _, id := range p.order {
		for _, dep := range p.nodes[id].DependsOn {
			if _, ok := p.nodes[dep]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrUnknownDependency, id, dep)
			}
		}
	}
	return nil
}

// ReadyNodes returns every node not in completed whose dependencies are all in
// completed.
func (p *Plan) ReadyNodes(completed map[string]struct{}) []*Node {
	var ready []*Node
	for _, id := range p.order {
		if _, done := completed[id]; done {
			continue
		}
		n := p.nodes[id]
		ok := true
		for _, dep := range n.DependsOn {
			if _, done := completed[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n)
		}
	}
	return ready
}

// Node returns the node with id.
func (p *Plan) Node(id string) (*Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// Nodes returns nodes in insertion order.
func (p *Plan) Nodes() []*Node {
	out := make([]*Node, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (p *Plan) Len() int { return len(p.nodes) }

func (p *Plan) String() string {
	return fmt.Sprintf("Plan(nodes=%v)", p.order)
}
