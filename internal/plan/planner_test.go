package plan

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

func TestBuildPlanChainsStepsLinearly(t *testing.T) {
	in := intent.Intent{Name: "cancel_flight", Steps: []string{"a", "b", "c"}}
	p, err := NewPlanner().BuildPlan(in)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", p.Len())
	}
	a, _ := p.Node("a")
	b, _ := p.Node("b")
	c, _ := p.Node("c")
	if len(a.DependsOn) != 0 {
		t.Fatalf("first step must have no deps: %v", a.DependsOn)
	}
	if len(b.DependsOn) != 1 || b.DependsOn[0] != "a" {
		t.Fatalf("b deps: %v", b.DependsOn)
	}
	if len(c.DependsOn) != 1 || c.DependsOn[0] != "b" {
		t.Fatalf("c deps: %v", c.DependsOn)
	}
	if p.Intent.Name != "cancel_flight" {
		t.Fatalf("intent not attached: %+v", p.Intent)
	}
}

func TestBuildPlanEmpty(t *testing.T) {
	p, err := NewPlanner().BuildPlan(intent.Intent{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expected empty plan")
	}
}

func TestBuildPlanRejectsRepeatedStep(t *testing.T) {
	_, err := NewPlanner().BuildPlan(intent.Intent{Steps: []string{"a", "a"}})
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected duplicate node error, got %v", err)
	}
}
