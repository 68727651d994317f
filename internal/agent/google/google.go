// Package google holds the capability owners backed by the cached Gmail,
// Calendar and Drive collections.
package google

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/wsorch/internal/records"
	"github.com/mohammad-safakhou/wsorch/internal/retrieval"
)

// Retriever is the hybrid search the owners run.
type Retriever interface {
	Search(ctx context.Context, q retrieval.Query) (retrieval.Outcome, error)
}

const dateLayout = "2006-01-02"

func matchList(out retrieval.Outcome, fn func(records.Record) map[string]interface{}) []map[string]interface{} {
	list := make([]map[string]interface{}, 0, len(out.Records))
	for _, r := range out.Records {
		list = append(list, fn(r))
	}
	return list
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
