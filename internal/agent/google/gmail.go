package google

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/retrieval"
)

const (
	StepSearchGmailForBooking  = "search_gmail_for_booking"
	StepDraftCancellationEmail = "draft_cancellation_email"
	StepSearchRelatedEmails    = "search_related_emails"
	StepSearchGmail            = "search_gmail"

	cancellationRecipient = "support@airline.com"
	unknownAirline        = "Unknown"
)

var bookingReferencePattern = regexp.MustCompile(`[A-Z]{2}\d{4}`)

// ExtractBookingReference returns the first two-letter four-digit code in
// text, or "" when there is none.
func ExtractBookingReference(text string) string {
	return bookingReferencePattern.FindString(text)
}

// Gmail owns the mail steps.
type Gmail struct {
	search        Retriever
	fallbackLimit int
}

// NewGmail returns the mail owner. fallbackLimit caps vector-only lists for
// the free-text search steps.
func NewGmail(r Retriever, fallbackLimit int) *Gmail {
	return &Gmail{search: r, fallbackLimit: fallbackLimit}
}

func (g *Gmail) Name() string { return "gmail" }

func (g *Gmail) Steps() []string {
	return []string{StepSearchGmailForBooking, StepDraftCancellationEmail, StepSearchRelatedEmails, StepSearchGmail}
}

func (g *Gmail) Handle(ctx context.Context, stepID string, ec *agent.Context) (agent.StepResult, error) {
	switch stepID {
	case StepSearchGmailForBooking:
		return g.searchBooking(ctx, ec)
	case StepDraftCancellationEmail:
		return g.draftCancellation(ec), nil
	case StepSearchRelatedEmails, StepSearchGmail:
		return g.searchText(ctx, stepID, ec)
	}
	return agent.Unsupported(stepID), nil
}

func (g *Gmail) searchBooking(ctx context.Context, ec *agent.Context) (agent.StepResult, error) {
	airline := airlineOf(ec)
	out, err := g.search.Search(ctx, retrieval.Query{
		Collection: records.Gmail,
		UserID:     ec.UserID,
		Keyword:    airline,
		Text:       airline + " booking confirmation",
		Limit:      1,
	})
	if err != nil {
		return agent.StepResult{}, err
	}
	if !out.Found() {
		return agent.NotFound(StepSearchGmailForBooking, "No booking email found for "+airline), nil
	}
	best := out.Best()
	ref := ExtractBookingReference(best.Title)
	var refValue interface{}
	if ref != "" {
		ec.SetBookingReference(ref)
		refValue = ref
	}
	return agent.Found(StepSearchGmailForBooking, map[string]interface{}{
		"email_id":          best.ID,
		"subject":           best.Title,
		"body":              best.Body,
		"booking_reference": refValue,
		"method":            string(out.Method),
	}), nil
}

func (g *Gmail) draftCancellation(ec *agent.Context) agent.StepResult {
	airline := airlineOf(ec)
	ref, hasRef := ec.BookingReference()
	when, hasDate := ec.EventTime()

	var body string
	switch {
	case hasRef && hasDate:
		body = fmt.Sprintf("Please cancel my %s booking %s scheduled on %s.\n", airline, ref, when.Format(dateLayout))
	case hasDate:
		body = fmt.Sprintf("Please cancel my %s booking scheduled on %s.\n", airline, when.Format(dateLayout))
	case hasRef:
		body = fmt.Sprintf("Please cancel my %s booking %s.\n", airline, ref)
	default:
		body = fmt.Sprintf("Please cancel my %s booking.\n", airline)
	}
	body += "Kindly confirm the cancellation."

	return agent.StepResult{
		Status: agent.StatusDrafted,
		Step:   StepDraftCancellationEmail,
		Data: map[string]interface{}{
			"to":      cancellationRecipient,
			"subject": "Cancellation Request - " + airline,
			"body":    body,
		},
	}
}

func (g *Gmail) searchText(ctx context.Context, stepID string, ec *agent.Context) (agent.StepResult, error) {
	q := ec.Intent.Entity("query", "topic")
	if q == "" {
		return agent.NotFound(stepID, "No search query available"), nil
	}
	out, err := g.search.Search(ctx, retrieval.Query{
		Collection: records.Gmail,
		UserID:     ec.UserID,
		Keyword:    q,
		Limit:      g.fallbackLimit,
	})
	if err != nil {
		return agent.StepResult{}, err
	}
	if !out.Found() {
		return agent.NotFound(stepID, "No emails found for "+q), nil
	}
	return agent.Found(stepID, map[string]interface{}{
		"method": string(out.Method),
		"emails": matchList(out, func(r records.Record) map[string]interface{} {
			return map[string]interface{}{
				"email_id":    r.ID,
				"subject":     r.Title,
				"body":        r.Body,
				"received_at": formatTime(r.Timestamp),
			}
		}),
	}), nil
}

func airlineOf(ec *agent.Context) string {
	if a := ec.Intent.Entity("airline"); a != "" {
		return a
	}
	return unknownAirline
}

var _ agent.Agent = (*Gmail)(nil)
