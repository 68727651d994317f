// Package synth turns step results into a user-facing reply.
package synth

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

// Synthesizer composes a reply. Implementations must be pure.
type Synthesizer interface {
	Synthesize(in intent.Intent, results map[string]agent.StepResult) string
}

// Template is a fixed-phrase Synthesizer.
type Template struct{}

// NewTemplate returns a Template synthesizer.
func NewTemplate() Template { return Template{} }

func (Template) Synthesize(in intent.Intent, results map[string]agent.StepResult) string {
	if len(in.Steps) == 0 || len(results) == 0 {
		return "I could not determine what to do with that request."
	}
	if in.Name == intent.NameCancelFlight {
		return cancellation(in, results)
	}
	var found []string
	for _, step := range in.Steps {
		if r, ok := results[step]; ok && (r.Status == agent.StatusFound || r.Status == agent.StatusDrafted) {
			found = append(found, describe(r))
		}
	}
	if len(found) == 0 {
		return fmt.Sprintf("I could not find anything for that request (%d steps checked).", len(in.Steps))
	}
	return fmt.Sprintf("Found %d of %d steps: %s.", len(found), len(in.Steps), strings.Join(found, "; "))
}

func cancellation(in intent.Intent, results map[string]agent.StepResult) string {
	airline := strings.TrimSpace(in.Entity("airline"))
	ref := results["search_gmail_for_booking"].String("booking_reference")
	start := results["find_calendar_event"].String("start_time")
	to := results["draft_cancellation_email"].String("to")

	if ref == "" {
		return "I processed your cancellation request."
	}
	if date := datePart(start); date != "" {
		return fmt.Sprintf("I found your %s booking %s scheduled on %s and drafted a cancellation email to %s.", airline, ref, date, to)
	}
	return fmt.Sprintf("I found your %s booking %s and drafted a cancellation email.", airline, ref)
}

func datePart(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

func describe(r agent.StepResult) string {
	for _, key := range []string{"subject", "title", "name"} {
		if v := r.String(key); v != "" {
			return fmt.Sprintf("%s (%q)", r.Step, v)
		}
	}
	if emails, ok := r.Data["emails"].([]map[string]interface{}); ok && len(emails) > 0 {
		if s, ok := emails[0]["subject"].(string); ok {
			return fmt.Sprintf("%s (%q)", r.Step, s)
		}
	}
	return r.Step
}
