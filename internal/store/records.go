package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/wsorch/internal/records"
)

const recordColumns = `id::text, user_id, external_id, title, body, occurred_at`

// UpsertRecord inserts or replaces the record keyed by (user_id, external_id)
// and returns it with its id.
func (s *Store) UpsertRecord(ctx context.Context, c records.Collection, r records.Record) (records.Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return records.Record{}, err
	}
	if r.UserID == "" || r.ExternalID == "" {
		return records.Record{}, fmt.Errorf("user_id and external_id are required")
	}
	var vec interface{}
	if len(r.Embedding) > 0 {
		lit, err := encodeVectorLiteral(r.Embedding)
		if err != nil {
			return records.Record{}, err
		}
		vec = lit
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	err = s.DB.QueryRowContext(ctx, fmt.Sprintf(`
INSERT INTO %s (user_id, external_id, title, body, embedding, occurred_at)
VALUES ($1,$2,$3,$4,$5::vector,$6)
ON CONFLICT (user_id, external_id) DO UPDATE SET
  title       = EXCLUDED.title,
  body        = EXCLUDED.body,
  embedding   = EXCLUDED.embedding,
  occurred_at = EXCLUDED.occurred_at
RETURNING id::text
`, table), r.UserID, r.ExternalID, r.Title, r.Body, vec, r.Timestamp).Scan(&r.ID)
	if err != nil {
		return records.Record{}, err
	}
	return r, nil
}

// KeywordFilter implements records.Searcher with ILIKE over the title.
func (s *Store) KeywordFilter(ctx context.Context, c records.Collection, userID, pattern string) ([]records.Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE user_id = $1 AND title ILIKE $2
ORDER BY seq
`, recordColumns, table), userID, "%"+escapeLike(pattern)+"%")
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// VectorRerank implements records.Searcher. Ties on distance resolve by
// insertion sequence.
func (s *Store) VectorRerank(ctx context.Context, c records.Collection, candidateIDs []string, query []float32) (records.Record, bool, error) {
	if len(candidateIDs) == 0 {
		return records.Record{}, false, nil
	}
	table, err := tableFor(c)
	if err != nil {
		return records.Record{}, false, err
	}
	lit, err := encodeVectorLiteral(query)
	if err != nil {
		return records.Record{}, false, err
	}
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = ANY($1::uuid[]) AND embedding IS NOT NULL
ORDER BY embedding <-> $2::vector, seq
LIMIT 1
`, recordColumns, table), pq.Array(candidateIDs), lit)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, false, nil
	}
	if err != nil {
		return records.Record{}, false, err
	}
	return rec, true, nil
}

// VectorSearch implements records.Searcher.
func (s *Store) VectorSearch(ctx context.Context, c records.Collection, userID string, query []float32, limit int) ([]records.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}
	lit, err := encodeVectorLiteral(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE user_id = $1 AND embedding IS NOT NULL
ORDER BY embedding <-> $2::vector, seq
LIMIT $3
`, recordColumns, table), userID, lit, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (records.Record, error) {
	var (
		rec  records.Record
		body sql.NullString
		at   sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ExternalID, &rec.Title, &body, &at); err != nil {
		return records.Record{}, err
	}
	rec.Body = body.String
	if at.Valid {
		rec.Timestamp = at.Time
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]records.Record, error) {
	defer rows.Close()
	var out []records.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ records.Store = (*Store)(nil)
