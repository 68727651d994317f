package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/wsorch/internal/records"
)

// Store is the Postgres backend for cached records, conversations and step
// checkpoints.
type Store struct {
	DB *sql.DB
}

// Step checkpoint statuses persisted in run_steps.
const (
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// EmbeddingDimensions is the width of the vector columns.
const EmbeddingDimensions = 1536

var tables = map[records.Collection]string{
	records.Gmail:  "gmail_cache",
	records.GCal:   "gcal_cache",
	records.GDrive: "gdrive_cache",
}

func tableFor(c records.Collection) (string, error) {
	t, ok := tables[c]
	if !ok {
		return "", fmt.Errorf("%w: %s", records.ErrUnknownCollection, c)
	}
	return t, nil
}

// NewWithDSN constructs the Store using an explicit Postgres DSN. The "postgres"
// driver is registered by the lib/pq import in records.go.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

// escapeLike escapes LIKE metacharacters so pattern matches literally.
func escapeLike(pattern string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(pattern)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
