// Package seed loads the demo mailbox, calendar and drive used by the API
// and the end-to-end tests.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/records"
)

// DemoUserID owns the demo dataset.
const DemoUserID = "550e8400-e29b-41d4-a716-446655440000"

var gmailSubjects = []string{
	"Turkish Airlines Booking TK1234",
	"Singapore Airlines Flight TK5678 Confirmed",
	"Flight confirmation and seat assignment TK1234",
	"Budget discussion with Sarah - Q1 Planning",
	"Acme Corp meeting agenda - Product Launch",
	"Sarah: Budget Review - Conference Room A",
	"Acme Corp Contract Review - Document attached",
	"Out of Office Policy Update",
	"Weekly Newsletter: Tech Trends",
	"Tomorrow's Stand-up Agenda",
	"Next Week: Team Offsite Details",
}

var calendarEvents = []struct {
	title, description string
	inDays             int
}{
	{"Istanbul → NYC Flight TK1234", "Turkish Airlines flight", 10},
	{"Acme Corp Meeting", "Product launch planning with Acme", 3},
	{"Sarah - Budget Review", "Quarterly budget discussion", 5},
	{"Out of Office - Vacation", "Personal time off", 15},
}

var driveFiles = []struct{ name, preview string }{
	{"Turkish Airlines Cancellation Policy", "Cancellation policy for Turkish Airlines bookings including refund rules."},
	{"Acme Corp Product Launch Plan", "Detailed strategy document for Acme Corp product launch."},
	{"Q1 Budget Spreadsheet", "Quarterly budget breakdown for Q1 planning."},
	{"Company Out of Office Policy", "Official company policy for vacation and leave."},
}

// Summary counts the records written by Load.
type Summary struct {
	Emails int `json:"emails"`
	Events int `json:"events"`
	Files  int `json:"files"`
}

// Load upserts the demo dataset for userID with timestamps relative to now.
// External ids are fixed so repeated loads replace rather than duplicate.
func Load(ctx context.Context, w records.Writer, emb embedding.Provider, userID string, now time.Time) (Summary, error) {
	var sum Summary
	put := func(c records.Collection, ext, title, body, embedText string, at time.Time) error {
		vec, err := emb.Embed(ctx, embedText)
		if err != nil {
			return fmt.Errorf("embed %s: %w", ext, err)
		}
		_, err = w.UpsertRecord(ctx, c, records.Record{
			UserID:     userID,
			ExternalID: ext,
			Title:      title,
			Body:       body,
			Embedding:  vec,
			Timestamp:  at,
		})
		if err != nil {
			return fmt.Errorf("upsert %s: %w", ext, err)
		}
		return nil
	}

	for i, subject := range gmailSubjects {
		age := i - 5
		if age < 0 {
			age = 0
		}
		at := now.AddDate(0, 0, -age)
		if err := put(records.Gmail, fmt.Sprintf("gmail_msg_%d", i), subject, subject, subject, at); err != nil {
			return sum, err
		}
		sum.Emails++
	}
	for i, ev := range calendarEvents {
		at := now.AddDate(0, 0, ev.inDays)
		if err := put(records.GCal, fmt.Sprintf("gcal_event_%d", i), ev.title, ev.description, ev.title, at); err != nil {
			return sum, err
		}
		sum.Events++
	}
	for i, f := range driveFiles {
		if err := put(records.GDrive, fmt.Sprintf("gdrive_file_%d", i), f.name, f.preview, f.name+" "+f.preview, now); err != nil {
			return sum, err
		}
		sum.Files++
	}
	return sum, nil
}
