package plan

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

func ids(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestAddNodeRejectsDuplicate(t *testing.T) {
	p := New(intent.Intent{})
	if err := p.AddNode(NewNode("a")); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := p.AddNode(NewNode("a")); !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected duplicate node error, got %v", err)
	}
}

func TestValidateDetectsUnknownDependency(t *testing.T) {
	p := New(intent.Intent{})
	_ = p.AddNode(NewNode("a"))
	_ = p.AddNode(NewNode("b", "missing"))
	if err := p.Validate(); !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("expected unknown dependency, got %v", err)
	}
}

func TestValidateAcceptsCycle(t *testing.T) {
	p := New(intent.Intent{})
	_ = p.AddNode(NewNode("a", "b"))
	_ = p.AddNode(NewNode("b", "a"))
	if err := p.Validate(); err != nil {
		t.Fatalf("validate only checks references, got %v", err)
	}
}

func TestReadyNodes(t *testing.T) {
	p := New(intent.Intent{})
	_ = p.AddNode(NewNode("a"))
	_ = p.AddNode(NewNode("b"))
	_ = p.AddNode(NewNode("c", "a", "b"))

	ready := ids(p.ReadyNodes(map[string]struct{}{}))
	if len(ready) != 2 || ready[0] != "a" || ready[1] != "b" {
		t.Fatalf("unexpected first wave: %v", ready)
	}
	ready = ids(p.ReadyNodes(map[string]struct{}{"a": {}}))
	if len(ready) != 1 || ready[0] != "b" {
		t.Fatalf("c must wait for b: %v", ready)
	}
	ready = ids(p.ReadyNodes(map[string]struct{}{"a": {}, "b": {}}))
	if len(ready) != 1 || ready[0] != "c" {
		t.Fatalf("unexpected final wave: %v", ready)
	}
	if got := p.ReadyNodes(map[string]struct{}{"a": {}, "b": {}, "c": {}}); len(got) != 0 {
		t.Fatalf("expected nothing ready, got %v", ids(got))
	}
}

func TestReadyNodesIsPure(t *testing.T) {
	p := New(intent.Intent{})
	_ = p.AddNode(NewNode("a"))
	completed := map[string]struct{}{}
	first := ids(p.ReadyNodes(completed))
	second := ids(p.ReadyNodes(completed))
	if len(first) != 1 || len(second) != 1 || len(completed) != 0 {
		t.Fatalf("ReadyNodes must not mutate state: %v %v %v", first, second, completed)
	}
}

func TestNodeResultWrittenOnce(t *testing.T) {
	n := NewNode("a")
	if _, ok := n.Result(); ok {
		t.Fatalf("new node must have no result")
	}
	if err := n.SetResult(agent.Found("a", nil)); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	if err := n.SetResult(agent.Found("a", nil)); !errors.Is(err, ErrResultAlreadySet) {
		t.Fatalf("expected second write to fail, got %v", err)
	}
}
