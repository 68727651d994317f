// Package retrieval implements the hybrid keyword plus vector search shared by
// every capability owner.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/records"
)

// Method tags which stage produced a match.
type Method string

const (
	MethodHybrid     Method = "hybrid"
	MethodVectorOnly Method = "vector_only"
)

// Query describes one retrieval.
type Query struct {
	Collection records.Collection
	UserID     string
	// Keyword is matched as a case-insensitive substring of record titles.
	// An empty keyword skips the keyword stage.
	Keyword string
	// Text is embedded for ranking. Defaults to Keyword.
	Text string
	// Limit caps the fallback list. Values below 1 mean 1.
	Limit int
	// KeywordOnly disables the vector fallback.
	KeywordOnly bool
}

// Outcome is the result of a retrieval. Records is empty when nothing matched.
type Outcome struct {
	Method  Method
	Records []records.Record
}

// Found reports whether any record matched.
func (o Outcome) Found() bool { return len(o.Records) > 0 }

// Best returns the winning record.
func (o Outcome) Best() records.Record {
	if len(o.Records) == 0 {
		return records.Record{}
	}
	return o.Records[0]
}

// Strategy runs the hybrid algorithm against a record searcher.
type Strategy struct {
	store    records.Searcher
	embedder embedding.Provider
	observe  func(c records.Collection, method string)
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithObserver receives the collection and the method tag (or "not_found")
// of every completed search.
func WithObserver(fn func(c records.Collection, method string)) Option {
	return func(s *Strategy) { s.observe = fn }
}

// New returns a Strategy reading from store and embedding with embedder.
func New(store records.Searcher, embedder embedding.Provider, opts ...Option) *Strategy {
	s := &Strategy{store: store, embedder: embedder}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs the keyword stage, reranks its candidates by vector distance,
// and falls back to a pure vector search of the user's collection when the
// keyword stage yields nothing.
func (s *Strategy) Search(ctx context.Context, q Query) (Outcome, error) {
	out, err := s.search(ctx, q)
	if err == nil && s.observe != nil {
		tag := "not_found"
		if out.Found() {
			tag = string(out.Method)
		}
		s.observe(q.Collection, tag)
	}
	return out, err
}

func (s *Strategy) search(ctx context.Context, q Query) (Outcome, error) {
	text := q.Text
	if strings.TrimSpace(text) == "" {
		text = q.Keyword
	}
	var vec []float32
	embed := func() ([]float32, error) {
		if vec != nil {
			return vec, nil
		}
		v, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vec = v
		return vec, nil
	}

	if q.Keyword != "" {
		cands, err := s.store.KeywordFilter(ctx, q.Collection, q.UserID, q.Keyword)
		if err != nil {
			return Outcome{}, fmt.Errorf("keyword filter: %w", err)
		}
		if len(cands) > 0 {
			v, err := embed()
			if err != nil {
				return Outcome{}, err
			}
			ids := make([]string, 0, len(cands))
			for _, c := range cands {
				ids = append(ids, c.ID)
			}
			best, ok, err := s.store.VectorRerank(ctx, q.Collection, ids, v)
			if err != nil {
				return Outcome{}, fmt.Errorf("vector rerank: %w", err)
			}
			if ok {
				return Outcome{Method: MethodHybrid, Records: []records.Record{best}}, nil
			}
		}
	}
	if q.KeywordOnly {
		return Outcome{}, nil
	}

	v, err := embed()
	if err != nil {
		return Outcome{}, err
	}
	limit := q.Limit
	if limit < 1 {
		limit = 1
	}
	found, err := s.store.VectorSearch(ctx, q.Collection, q.UserID, v, limit)
	if err != nil {
		return Outcome{}, fmt.Errorf("vector search: %w", err)
	}
	if len(found) == 0 {
		return Outcome{}, nil
	}
	return Outcome{Method: MethodVectorOnly, Records: found}, nil
}
