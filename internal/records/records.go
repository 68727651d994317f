// Package records defines the cached per-user records searched by the
// capability owners and the store contracts they are read through.
package records

import (
	"context"
	"errors"
	"math"
	"time"
)

// Collection names a per-service record table.
type Collection string

const (
	Gmail  Collection = "gmail"
	GCal   Collection = "gcal"
	GDrive Collection = "gdrive"
)

// Collections lists every known collection.
var Collections = []Collection{Gmail, GCal, GDrive}

// ErrUnknownCollection indicates a collection name outside Collections.
var ErrUnknownCollection = errors.New("unknown collection")

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, k := range Collections {
		if k == c {
			return true
		}
	}
	return false
}

// Record is one cached item: a mail message, a calendar event or a drive file.
// Title is the primary text field matched by the keyword stage. For drive
// files Body carries the content preview.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	Embedding  []float32 `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
}

// Searcher exposes the three retrieval primitives over a record collection.
type Searcher interface {
	// KeywordFilter returns the user's records whose title contains pattern,
	// case-insensitively, in storage order.
	KeywordFilter(ctx context.Context, c Collection, userID, pattern string) ([]Record, error)
	// VectorRerank returns the candidate closest to query. Ties go to the
	// candidate stored first. ok is false when no candidate exists.
	VectorRerank(ctx context.Context, c Collection, candidateIDs []string, query []float32) (rec Record, ok bool, err error)
	// VectorSearch returns up to limit of the user's records ordered by
	// ascending distance to query.
	VectorSearch(ctx context.Context, c Collection, userID string, query []float32, limit int) ([]Record, error)
}

// Writer ingests records. Upserts are keyed by (collection, user, external id).
type Writer interface {
	UpsertRecord(ctx context.Context, c Collection, r Record) (Record, error)
}

// Store is a full record backend.
type Store interface {
	Searcher
	Writer
}

// Distance is the Euclidean distance between a and b. Vectors of different
// lengths are infinitely far apart.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
