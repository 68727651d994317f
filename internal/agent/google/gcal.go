package google

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/retrieval"
)

const (
	StepFindCalendarEvent   = "find_calendar_event"
	StepSearchCalendarEvent = "search_calendar_event"
)

// Calendar owns the calendar steps.
type Calendar struct {
	search        Retriever
	fallbackLimit int
}

// NewCalendar returns the calendar owner.
func NewCalendar(r Retriever, fallbackLimit int) *Calendar {
	return &Calendar{search: r, fallbackLimit: fallbackLimit}
}

func (c *Calendar) Name() string { return "gcal" }

func (c *Calendar) Steps() []string {
	return []string{StepFindCalendarEvent, StepSearchCalendarEvent}
}

func (c *Calendar) Handle(ctx context.Context, stepID string, ec *agent.Context) (agent.StepResult, error) {
	switch stepID {
	case StepFindCalendarEvent:
		return c.findEvent(ctx, ec)
	case StepSearchCalendarEvent:
		return c.searchEvent(ctx, ec)
	}
	return agent.Unsupported(stepID), nil
}

// findEvent tries the airline and then the booking reference as title
// keywords. The first matching term wins.
func (c *Calendar) findEvent(ctx context.Context, ec *agent.Context) (agent.StepResult, error) {
	var terms []string
	if a := ec.Intent.Entity("airline"); a != "" {
		terms = append(terms, a)
	}
	if ref, ok := ec.BookingReference(); ok && ref != "" {
		terms = append(terms, ref)
	}
	if len(terms) == 0 {
		return agent.NotFound(StepFindCalendarEvent, "No search terms available"), nil
	}
	for _, term := range terms {
		out, err := c.search.Search(ctx, retrieval.Query{
			Collection:  records.GCal,
			UserID:      ec.UserID,
			Keyword:     term,
			KeywordOnly: true,
		})
		if err != nil {
			return agent.StepResult{}, err
		}
		if !out.Found() {
			continue
		}
		ev := out.Best()
		if !ev.Timestamp.IsZero() {
			ec.SetEventTime(ev.Timestamp)
		}
		return agent.Found(StepFindCalendarEvent, eventPayload(ev, out.Method)), nil
	}
	return agent.NotFound(StepFindCalendarEvent, "No calendar event found for "+strings.Join(terms, " or ")), nil
}

func (c *Calendar) searchEvent(ctx context.Context, ec *agent.Context) (agent.StepResult, error) {
	q := ec.Intent.Entity("query", "topic")
	if q == "" {
		return agent.NotFound(StepSearchCalendarEvent, "No search query available"), nil
	}
	out, err := c.search.Search(ctx, retrieval.Query{
		Collection: records.GCal,
		UserID:     ec.UserID,
		Keyword:    q,
		Limit:      c.fallbackLimit,
	})
	if err != nil {
		return agent.StepResult{}, err
	}
	if !out.Found() {
		return agent.NotFound(StepSearchCalendarEvent, "No calendar event found for "+q), nil
	}
	data := eventPayload(out.Best(), out.Method)
	if len(out.Records) > 1 {
		data["events"] = matchList(out, func(r records.Record) map[string]interface{} {
			return eventPayload(r, out.Method)
		})
	}
	return agent.Found(StepSearchCalendarEvent, data), nil
}

func eventPayload(r records.Record, m retrieval.Method) map[string]interface{} {
	return map[string]interface{}{
		"event_id":    r.ID,
		"title":       r.Title,
		"description": r.Body,
		"start_time":  formatTime(r.Timestamp),
		"method":      string(m),
	}
}

var _ agent.Agent = (*Calendar)(nil)
