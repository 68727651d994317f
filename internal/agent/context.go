package agent

import (
	"sync"
	"time"

	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

// Context is the per-run execution state shared by every step invocation.
//
// UserID and Intent are fixed at creation. Step results are merged by the
// engine after each wave joins. The auxiliary fields are written by steps
// directly and are only guaranteed visible to steps in later waves.
type Context struct {
	UserID string
	Intent intent.Intent

	mu      sync.RWMutex
	results map[string]StepResult
	aux     auxFields
}

type auxFields struct {
	bookingReference *string
	eventTime        *time.Time
}

// NewContext creates an execution context for a single run.
func NewContext(userID string, in intent.Intent) *Context {
	return &Context{
		UserID:  userID,
		Intent:  in,
		results: make(map[string]StepResult),
	}
}

// PutResult stores a step result under the step id.
func (c *Context) PutResult(stepID string, r StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[stepID] = r
}

// Result returns the merged result of a completed step.
func (c *Context) Result(stepID string) (StepResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[stepID]
	return r, ok
}

// Results returns a copy of every merged step result.
func (c *Context) Results() map[string]StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]StepResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// SetBookingReference records the booking reference extracted by a step.
func (c *Context) SetBookingReference(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aux.bookingReference = &ref
}

// BookingReference returns the booking reference if a previous step set it.
func (c *Context) BookingReference() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.aux.bookingReference == nil {
		return "", false
	}
	return *c.aux.bookingReference, true
}

// SetEventTime records the start time of a matched calendar event.
func (c *Context) SetEventTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aux.eventTime = &t
}

// EventTime returns the event timestamp if a previous step set it.
func (c *Context) EventTime() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.aux.eventTime == nil {
		return time.Time{}, false
	}
	return *c.aux.eventTime, true
}
