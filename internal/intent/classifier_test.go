package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleClassifierCancelFlight(t *testing.T) {
	got, err := NewRuleClassifier().Classify(context.Background(), "Please cancel my flight to New York")
	require.NoError(t, err)
	assert.Equal(t, NameCancelFlight, got.Name)
	assert.Equal(t, "Turkish Airlines", got.Entities["airline"])
	assert.Equal(t, []string{"search_gmail_for_booking", "find_calendar_event", "draft_cancellation_email"}, got.Steps)
}

func TestRuleClassifierDetectsAirline(t *testing.T) {
	got, err := NewRuleClassifier().Classify(context.Background(), "cancel the Lufthansa flight")
	require.NoError(t, err)
	assert.Equal(t, "Lufthansa", got.Entity("airline"))
}

func TestRuleClassifierRoutes(t *testing.T) {
	cases := map[string]string{
		"what is my next meeting with Acme":  NameManageMeeting,
		"find the budget document":           NameFindDocument,
		"show the latest email from Sarah":   NameManageEmail,
		"tell me a joke":                     NameUnknown,
	}
	for query, want := range cases {
		got, err := NewRuleClassifier().Classify(context.Background(), query)
		require.NoError(t, err)
		assert.Equal(t, want, got.Name, query)
	}
}

func TestRuleClassifierUnknownHasNoSteps(t *testing.T) {
	got, err := NewRuleClassifier().Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, got.Steps)
	assert.NotNil(t, got.Entities)
}

func TestEntityFallsThroughKeys(t *testing.T) {
	in := Intent{Entities: map[string]string{"query": "budget"}}
	assert.Equal(t, "budget", in.Entity("company", "query"))
	assert.Equal(t, "", in.Entity("company"))
}
