package plan

import (
	"fmt"

	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

// Planner turns a classified intent into a validated Plan.
//
// Steps are chained linearly: step i depends only on step i-1. The executor
// handles arbitrary DAGs; the chain is only the current planning policy.
type Planner struct{}

// NewPlanner returns a Planner.
func NewPlanner() *Planner { return &Planner{} }

// BuildPlan builds and validates the plan for in. An intent without steps
// yields an empty plan.
func (Planner) BuildPlan(in intent.Intent) (*Plan, error) {
	p := New(in)
	for i, step := range in.Steps {
		var deps []string
		if i > 0 {
			deps = []string{in.Steps[i-1]}
		}
		if err := p.AddNode(NewNode(step, deps...)); err != nil {
			return nil, fmt.Errorf("build plan: %w", err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}
	return p, nil
}
