package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
)

var cancel = intent.Intent{
	Name:     intent.NameCancelFlight,
	Entities: map[string]string{"airline": "Turkish Airlines"},
	Steps:    []string{"search_gmail_for_booking", "find_calendar_event", "draft_cancellation_email"},
}

func TestCancellationWithReferenceAndDate(t *testing.T) {
	got := NewTemplate().Synthesize(cancel, map[string]agent.StepResult{
		"search_gmail_for_booking": agent.Found("search_gmail_for_booking", map[string]interface{}{"booking_reference": "TK1234"}),
		"find_calendar_event":      agent.Found("find_calendar_event", map[string]interface{}{"start_time": "2026-10-29T08:00:00Z"}),
		"draft_cancellation_email": {Status: agent.StatusDrafted, Step: "draft_cancellation_email", Data: map[string]interface{}{"to": "support@airline.com"}},
	})
	assert.Equal(t, "I found your Turkish Airlines booking TK1234 scheduled on 2026-10-29 and drafted a cancellation email to support@airline.com.", got)
}

func TestCancellationWithReferenceOnly(t *testing.T) {
	got := NewTemplate().Synthesize(cancel, map[string]agent.StepResult{
		"search_gmail_for_booking": agent.Found("search_gmail_for_booking", map[string]interface{}{"booking_reference": "TK1234"}),
		"find_calendar_event":      agent.NotFound("find_calendar_event", "none"),
	})
	assert.Equal(t, "I found your Turkish Airlines booking TK1234 and drafted a cancellation email.", got)
}

func TestCancellationWithoutReference(t *testing.T) {
	got := NewTemplate().Synthesize(cancel, map[string]agent.StepResult{
		"search_gmail_for_booking": agent.NotFound("search_gmail_for_booking", "none"),
	})
	assert.Equal(t, "I processed your cancellation request.", got)
}

func TestEmptyPlan(t *testing.T) {
	got := NewTemplate().Synthesize(intent.Intent{Name: intent.NameUnknown}, nil)
	assert.Equal(t, "I could not determine what to do with that request.", got)
}

func TestGenericSummary(t *testing.T) {
	in := intent.Intent{Name: intent.NameManageMeeting, Steps: []string{"search_calendar_event", "search_related_emails"}}
	got := NewTemplate().Synthesize(in, map[string]agent.StepResult{
		"search_calendar_event": agent.Found("search_calendar_event", map[string]interface{}{"title": "Acme Corp Meeting"}),
		"search_related_emails": agent.NotFound("search_related_emails", "none"),
	})
	assert.Equal(t, `Found 1 of 2 steps: search_calendar_event ("Acme Corp Meeting").`, got)

	got = NewTemplate().Synthesize(in, map[string]agent.StepResult{
		"search_calendar_event": agent.NotFound("search_calendar_event", ""),
		"search_related_emails": agent.Unknown("search_related_emails"),
	})
	assert.Equal(t, "I could not find anything for that request (2 steps checked).", got)
}
