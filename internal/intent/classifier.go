package intent

import (
	"context"
	"strings"
)

// Intent names produced by RuleClassifier.
const (
	NameCancelFlight  = "cancel_flight"
	NameManageMeeting = "manage_meeting"
	NameFindDocument  = "find_document"
	NameManageEmail   = "manage_email"
	NameUnknown       = "unknown"
)

const defaultAirline = "Turkish Airlines"

var knownAirlines = []string{
	"Turkish Airlines",
	"Singapore Airlines",
	"Lufthansa",
	"Emirates",
	"Qatar Airways",
	"British Airways",
	"KLM",
}

// RuleClassifier is a deterministic keyword classifier used until an LLM
// backend is wired in.
type RuleClassifier struct{}

// NewRuleClassifier returns a RuleClassifier.
func NewRuleClassifier() *RuleClassifier { return &RuleClassifier{} }

// Classify implements Classifier.
func (RuleClassifier) Classify(ctx context.Context, query string) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	q := strings.ToLower(query)
	trimmed := strings.TrimSpace(query)

	switch {
	case strings.Contains(q, "cancel") && strings.Contains(q, "flight"):
		return Intent{
			Services: []string{"gmail", "gcal"},
			Name:     NameCancelFlight,
			Entities: map[string]string{"airline": detectAirline(q)},
			Steps: []string{
				"search_gmail_for_booking",
				"find_calendar_event",
				"draft_cancellation_email",
			},
		}, nil
	case strings.Contains(q, "meeting"):
		return Intent{
			Services: []string{"gcal", "gmail"},
			Name:     NameManageMeeting,
			Entities: map[string]string{"query": trimmed},
			Steps:    []string{"search_calendar_event", "search_related_emails"},
		}, nil
	case strings.Contains(q, "file") || strings.Contains(q, "document") || strings.Contains(q, "drive"):
		return Intent{
			Services: []string{"gdrive"},
			Name:     NameFindDocument,
			Entities: map[string]string{"query": trimmed},
			Steps:    []string{"search_drive_files"},
		}, nil
	case strings.Contains(q, "email"):
		return Intent{
			Services: []string{"gmail"},
			Name:     NameManageEmail,
			Entities: map[string]string{"query": trimmed},
			Steps:    []string{"search_gmail"},
		}, nil
	}
	return Intent{
		Services: []string{},
		Name:     NameUnknown,
		Entities: map[string]string{},
		Steps:    []string{},
	}, nil
}

func detectAirline(lowered string) string {
	for _, a := range knownAirlines {
		if strings.Contains(lowered, strings.ToLower(a)) {
			return a
		}
	}
	return defaultAirline
}
