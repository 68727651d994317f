package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidStatus indicates an owner returned a status outside the closed set.
var ErrInvalidStatus = errors.New("invalid step status")

// Agent is a capability owner. Handle must be safe to call concurrently with
// other owners and must honour ctx cancellation.
type Agent interface {
	Name() string
	Steps() []string
	Handle(ctx context.Context, stepID string, ec *Context) (StepResult, error)
}

// Dispatcher routes step ids to the single owner responsible for them.
type Dispatcher struct {
	owners map[string]Agent
}

// NewDispatcher builds the static step→owner map from the steps each agent
// declares. Two agents claiming the same step is a construction error.
func NewDispatcher(agents ...Agent) (*Dispatcher, error) {
	d := &Dispatcher{owners: make(map[string]Agent)}
	for _, a := range agents {
		for _, step := range a.Steps() {
			if prev, ok := d.owners[step]; ok {
				return nil, fmt.Errorf("step %s claimed by both %s and %s", step, prev.Name(), a.Name())
			}
			d.owners[step] = a
		}
	}
	return d, nil
}

// Owner returns the agent mapped to stepID.
func (d *Dispatcher) Owner(stepID string) (Agent, bool) {
	a, ok := d.owners[stepID]
	return a, ok
}

// StepIDs lists every routable step id, sorted.
func (d *Dispatcher) StepIDs() []string {
	out := make([]string, 0, len(d.owners))
	for id := range d.owners {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs stepID on its owner. Unmapped steps complete with an
// unknown_step result rather than an error.
func (d *Dispatcher) Dispatch(ctx context.Context, stepID string, ec *Context) (StepResult, error) {
	owner, ok := d.owners[stepID]
	if !ok {
		return Unknown(stepID), nil
	}
	res, err := owner.Handle(ctx, stepID, ec)
	if err != nil {
		return StepResult{}, err
	}
	if !res.Status.Valid() {
		return StepResult{}, fmt.Errorf("%w: %s returned %q for %s", ErrInvalidStatus, owner.Name(), res.Status, stepID)
	}
	if res.Step == "" {
		res.Step = stepID
	}
	return res, nil
}
