package google

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/intent"
	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/records/memory"
	"github.com/mohammad-safakhou/wsorch/internal/retrieval"
)

const user = "user-1"

type fixture struct {
	store    *memory.Store
	embedder embedding.Provider
	search   *retrieval.Strategy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := memory.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	emb := embedding.NewHashProvider(8)
	return &fixture{store: st, embedder: emb, search: retrieval.New(st, emb)}
}

func (f *fixture) add(t *testing.T, c records.Collection, title, body string, ts time.Time) records.Record {
	t.Helper()
	vec, err := f.embedder.Embed(context.Background(), title+" "+body)
	require.NoError(t, err)
	r, err := f.store.UpsertRecord(context.Background(), c, records.Record{
		UserID: user, ExternalID: title, Title: title, Body: body, Embedding: vec, Timestamp: ts,
	})
	require.NoError(t, err)
	return r
}

func ctxFor(entities map[string]string) *agent.Context {
	return agent.NewContext(user, intent.Intent{Name: "test", Entities: entities})
}

func TestExtractBookingReference(t *testing.T) {
	assert.Equal(t, "TK1234", ExtractBookingReference("Booking TK1234 confirmed"))
	assert.Equal(t, "", ExtractBookingReference("No reference here"))
	assert.Equal(t, "AB1111", ExtractBookingReference("AB1111 then CD2222"))
	assert.Equal(t, "", ExtractBookingReference("tk1234 lowercase"))
}

func TestGmailSearchBookingHybrid(t *testing.T) {
	f := newFixture(t)
	f.add(t, records.Gmail, "Weekly Newsletter: Tech Trends", "", time.Time{})
	want := f.add(t, records.Gmail, "Turkish Airlines Booking TK1234", "Your booking is confirmed", time.Time{})
	f.add(t, records.Gmail, "Singapore Airlines Flight TK5678 Confirmed", "", time.Time{})

	ec := ctxFor(map[string]string{"airline": "Turkish Airlines"})
	res, err := NewGmail(f.search, 1).Handle(context.Background(), StepSearchGmailForBooking, ec)
	require.NoError(t, err)
	require.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, want.ID, res.String("email_id"))
	assert.Equal(t, "TK1234", res.String("booking_reference"))
	assert.Equal(t, "hybrid", res.String("method"))

	ref, ok := ec.BookingReference()
	assert.True(t, ok)
	assert.Equal(t, "TK1234", ref)
}

func TestGmailSearchBookingFallsBackToVector(t *testing.T) {
	f := newFixture(t)
	f.add(t, records.Gmail, "Budget discussion with Sarah", "", time.Time{})

	ec := ctxFor(map[string]string{"airline": "Lufthansa"})
	res, err := NewGmail(f.search, 1).Handle(context.Background(), StepSearchGmailForBooking, ec)
	require.NoError(t, err)
	require.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, "vector_only", res.String("method"))
	assert.Nil(t, res.Data["booking_reference"])
	_, ok := ec.BookingReference()
	assert.False(t, ok)
}

func TestGmailSearchBookingNotFound(t *testing.T) {
	f := newFixture(t)
	res, err := NewGmail(f.search, 1).Handle(context.Background(), StepSearchGmailForBooking, ctxFor(nil))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusNotFound, res.Status)
	assert.Equal(t, "No booking email found for Unknown", res.String("message"))
}

func TestGmailDraftCancellationVariants(t *testing.T) {
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		ref  string
		date bool
		want string
	}{
		{"both", "TK1234", true, "Please cancel my Turkish Airlines booking TK1234 scheduled on 2026-03-14.\n"},
		{"date only", "", true, "Please cancel my Turkish Airlines booking scheduled on 2026-03-14.\n"},
		{"ref only", "TK1234", false, "Please cancel my Turkish Airlines booking TK1234.\n"},
		{"neither", "", false, "Please cancel my Turkish Airlines booking.\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ec := ctxFor(map[string]string{"airline": "Turkish Airlines"})
			if tc.ref != "" {
				ec.SetBookingReference(tc.ref)
			}
			if tc.date {
				ec.SetEventTime(day)
			}
			res, err := NewGmail(nil, 1).Handle(context.Background(), StepDraftCancellationEmail, ec)
			require.NoError(t, err)
			assert.Equal(t, agent.StatusDrafted, res.Status)
			assert.Equal(t, "support@airline.com", res.String("to"))
			assert.Equal(t, "Cancellation Request - Turkish Airlines", res.String("subject"))
			assert.Equal(t, tc.want+"Kindly confirm the cancellation.", res.String("body"))
		})
	}
}

func TestGmailSearchTextListsMatches(t *testing.T) {
	f := newFixture(t)
	f.add(t, records.Gmail, "Acme Corp meeting agenda - Product Launch", "", time.Time{})
	f.add(t, records.Gmail, "Out of Office Policy Update", "", time.Time{})

	res, err := NewGmail(f.search, 3).Handle(context.Background(), StepSearchRelatedEmails, ctxFor(map[string]string{"query": "acme"}))
	require.NoError(t, err)
	require.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, "hybrid", res.String("method"))
	emails := res.Data["emails"].([]map[string]interface{})
	require.Len(t, emails, 1)
	assert.Equal(t, "Acme Corp meeting agenda - Product Launch", emails[0]["subject"])

	res, err = NewGmail(f.search, 3).Handle(context.Background(), StepSearchGmail, ctxFor(nil))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusNotFound, res.Status)
}

func TestCalendarFindEventUsesBookingReference(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 10, 29, 8, 0, 0, 0, time.UTC)
	ev := f.add(t, records.GCal, "Istanbul → NYC Flight TK1234", "Turkish Airlines flight", start)
	f.add(t, records.GCal, "Acme Corp Meeting", "", start.Add(-time.Hour))

	ec := ctxFor(map[string]string{"airline": "Turkish Airlines"})
	ec.SetBookingReference("TK1234")
	res, err := NewCalendar(f.search, 1).Handle(context.Background(), StepFindCalendarEvent, ec)
	require.NoError(t, err)
	require.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, ev.ID, res.String("event_id"))
	assert.Equal(t, "2026-10-29T08:00:00Z", res.String("start_time"))

	got, ok := ec.EventTime()
	require.True(t, ok)
	assert.True(t, got.Equal(start))
}

func TestCalendarFindEventNotFound(t *testing.T) {
	f := newFixture(t)
	f.add(t, records.GCal, "Acme Corp Meeting", "", time.Now())

	ec := ctxFor(map[string]string{"airline": "Turkish Airlines"})
	ec.SetBookingReference("TK1234")
	res, err := NewCalendar(f.search, 1).Handle(context.Background(), StepFindCalendarEvent, ec)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusNotFound, res.Status)
	assert.Equal(t, "No calendar event found for Turkish Airlines or TK1234", res.String("message"))
	_, ok := ec.EventTime()
	assert.False(t, ok)

	res, err = NewCalendar(f.search, 1).Handle(context.Background(), StepFindCalendarEvent, ctxFor(nil))
	require.NoError(t, err)
	assert.Equal(t, "No search terms available", res.String("message"))
}

func TestCalendarSearchEvent(t *testing.T) {
	f := newFixture(t)
	f.add(t, records.GCal, "Sarah - Budget Review", "Quarterly budget discussion", time.Now())

	res, err := NewCalendar(f.search, 1).Handle(context.Background(), StepSearchCalendarEvent, ctxFor(map[string]string{"query": "budget"}))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, "Sarah - Budget Review", res.String("title"))
}

func TestDriveSearchFiles(t *testing.T) {
	f := newFixture(t)
	f.add(t, records.GDrive, "Q1 Budget Spreadsheet", "Quarterly budget breakdown for Q1 planning.", time.Time{})
	f.add(t, records.GDrive, "Acme Corp Product Launch Plan", "Detailed strategy document for Acme Corp product launch.", time.Time{})

	res, err := NewDrive(f.search).Handle(context.Background(), StepSearchDriveFiles, ctxFor(map[string]string{"company": "Acme"}))
	require.NoError(t, err)
	require.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, "Acme Corp Product Launch Plan", res.String("name"))
	assert.Equal(t, "hybrid", res.String("method"))

	res, err = NewDrive(f.search).Handle(context.Background(), StepSearchDriveFiles, ctxFor(nil))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusFound, res.Status)
	assert.Equal(t, "vector_only", res.String("method"))
}

func TestOwnersRejectForeignSteps(t *testing.T) {
	owners := []agent.Agent{NewGmail(nil, 1), NewCalendar(nil, 1), NewDrive(nil)}
	for _, o := range owners {
		res, err := o.Handle(context.Background(), "send_email", ctxFor(nil))
		require.NoError(t, err)
		assert.Equal(t, agent.StatusUnsupportedStep, res.Status, o.Name())
	}
}

func TestOwnersShareNoSteps(t *testing.T) {
	d, err := agent.NewDispatcher(NewGmail(nil, 1), NewCalendar(nil, 1), NewDrive(nil))
	require.NoError(t, err)
	assert.Len(t, d.StepIDs(), 7)
}
