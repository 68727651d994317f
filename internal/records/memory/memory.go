// Package memory keeps cached records in process. Keyword matching goes
// through a bleve index; vector ranking is brute force.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/analysis/token/lowercase"
	"github.com/blevesearch/bleve/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"github.com/google/uuid"

	"github.com/mohammad-safakhou/wsorch/internal/records"
)

const lowerKeywordAnalyzer = "lower_keyword"

type entry struct {
	seq    uint64
	record records.Record
}

type collection struct {
	index bleve.Index
	byID  map[string]*entry
	byExt map[string]string
}

// Store is an in-memory records.Store.
type Store struct {
	mu          sync.RWMutex
	seq         uint64
	collections map[records.Collection]*collection
	now         func() time.Time
}

// New builds an empty store with one index per known collection.
func New() (*Store, error) {
	s := &Store{
		collections: make(map[records.Collection]*collection, len(records.Collections)),
		now:         time.Now,
	}
	for _, c := range records.Collections {
		im, err := newIndexMapping()
		if err != nil {
			return nil, err
		}
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("bleve index %s: %w", c, err)
		}
		s.collections[c] = &collection{
			index: idx,
			byID:  make(map[string]*entry),
			byExt: make(map[string]string),
		}
	}
	return s, nil
}

// newIndexMapping indexes the whole title as one lowercased token so a
// wildcard query behaves as a case-insensitive substring match.
func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(lowerKeywordAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("bleve analyzer: %w", err)
	}
	title := bleve.NewTextFieldMapping()
	title.Analyzer = lowerKeywordAnalyzer
	title.Store = false
	user := bleve.NewTextFieldMapping()
	user.Analyzer = keyword.Name
	user.Store = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("title", title)
	doc.AddFieldMappingsAt("user_id", user)
	im.DefaultMapping = doc
	return im, nil
}

func (s *Store) collection(c records.Collection) (*collection, error) {
	col, ok := s.collections[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", records.ErrUnknownCollection, c)
	}
	return col, nil
}

func extKey(userID, externalID string) string { return userID + "\x00" + externalID }

// UpsertRecord inserts r or replaces the record with the same user and
// external id, keeping its id and storage position.
func (s *Store) UpsertRecord(ctx context.Context, c records.Collection, r records.Record) (records.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(c)
	if err != nil {
		return records.Record{}, err
	}
	if r.ExternalID == "" {
		r.ExternalID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now().UTC()
	}
	r.Embedding = append([]float32(nil), r.Embedding...)

	key := extKey(r.UserID, r.ExternalID)
	if id, ok := col.byExt[key]; ok {
		e := col.byID[id]
		r.ID = id
		e.record = r
	} else {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.seq++
		col.byID[r.ID] = &entry{seq: s.seq, record: r}
		col.byExt[key] = r.ID
	}
	doc := map[string]interface{}{"title": r.Title, "user_id": r.UserID}
	if err := col.index.Index(r.ID, doc); err != nil {
		return records.Record{}, fmt.Errorf("index record %s: %w", r.ID, err)
	}
	return r, nil
}

// KeywordFilter implements records.Searcher.
func (s *Store) KeywordFilter(ctx context.Context, c records.Collection, userID, pattern string) ([]records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.collection(c)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(pattern)
	// wildcard metacharacters cannot be escaped in a bleve wildcard query
	if needle == "" || strings.ContainsAny(needle, "*?") {
		return col.scan(userID, needle), nil
	}

	user := bleve.NewTermQuery(userID)
	user.SetField("user_id")
	title := bleve.NewWildcardQuery("*" + needle + "*")
	title.SetField("title")
	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery([]query.Query{user, title}...), len(col.byID)+1, 0, false)
	res, err := col.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search %s: %w", c, err)
	}
	hits := make([]*entry, 0, len(res.Hits))
	for _, h := range res.Hits {
		if e, ok := col.byID[h.ID]; ok {
			hits = append(hits, e)
		}
	}
	return sortedRecords(hits), nil
}

func (col *collection) scan(userID, needle string) []records.Record {
	var hits []*entry
	for _, e := range col.byID {
		if e.record.UserID == userID && strings.Contains(strings.ToLower(e.record.Title), needle) {
			hits = append(hits, e)
		}
	}
	return sortedRecords(hits)
}

// VectorRerank implements records.Searcher.
func (s *Store) VectorRerank(ctx context.Context, c records.Collection, candidateIDs []string, q []float32) (records.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.collection(c)
	if err != nil {
		return records.Record{}, false, err
	}
	var cands []*entry
	for _, id := range candidateIDs {
		if e, ok := col.byID[id]; ok {
			cands = append(cands, e)
		}
	}
	ranked := rank(cands, q)
	if len(ranked) == 0 {
		return records.Record{}, false, nil
	}
	return ranked[0], true, nil
}

// VectorSearch implements records.Searcher.
func (s *Store) VectorSearch(ctx context.Context, c records.Collection, userID string, q []float32, limit int) ([]records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.collection(c)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	var owned []*entry
	for _, e := range col.byID {
		if e.record.UserID == userID {
			owned = append(owned, e)
		}
	}
	ranked := rank(owned, q)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// rank orders by ascending distance, breaking ties by storage order.
// Records without an embedding are skipped.
func rank(entries []*entry, q []float32) []records.Record {
	type scored struct {
		e    *entry
		dist float64
	}
	list := make([]scored, 0, len(entries))
	for _, e := range entries {
		if len(e.record.Embedding) == 0 {
			continue
		}
		list = append(list, scored{e: e, dist: records.Distance(e.record.Embedding, q)})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].dist != list[j].dist {
			return list[i].dist < list[j].dist
		}
		return list[i].e.seq < list[j].e.seq
	})
	out := make([]records.Record, 0, len(list))
	for _, s := range list {
		out = append(out, s.e.record)
	}
	return out
}

func sortedRecords(entries []*entry) []records.Record {
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]records.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.record)
	}
	return out
}

// Close releases the bleve indexes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, col := range s.collections {
		if err := col.index.Close(); err != nil {
			return err
		}
	}
	return nil
}

var _ records.Store = (*Store)(nil)
