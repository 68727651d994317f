package streams

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types and payload versions carried on the query stream.
const (
	EventQuerySubmitted = "query.submitted"
	PayloadVersionV1    = "v1"
)

// Envelope represents the canonical message wrapper persisted to Redis Streams.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	TraceID        string          `json:"trace_id,omitempty"`
	Attempt        int             `json:"attempt"`
	PayloadVersion string          `json:"payload_version"`
	Data           json.RawMessage `json:"data"`
}

// ValidateBasic ensures mandatory envelope fields are present.
func (e *Envelope) ValidateBasic() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.PayloadVersion == "" {
		return fmt.Errorf("payload_version is required")
	}
	if e.Attempt < 0 {
		return fmt.Errorf("attempt must be >= 0")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("data payload is required")
	}
	return nil
}

// Marshal returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope parses JSON bytes into an Envelope and validates required fields.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}

// QuerySubmitted asks a worker to run the orchestration pipeline for a task.
type QuerySubmitted struct {
	TaskID string `json:"task_id"`
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

func (q QuerySubmitted) validate() error {
	if q.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if q.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query is required")
	}
	return nil
}

// NewQuerySubmitted wraps q in an envelope.
func NewQuerySubmitted(q QuerySubmitted, traceID string) (Envelope, error) {
	if err := q.validate(); err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(q)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		EventID:        uuid.NewString(),
		EventType:      EventQuerySubmitted,
		OccurredAt:     time.Now().UTC(),
		TraceID:        traceID,
		PayloadVersion: PayloadVersionV1,
		Data:           data,
	}, nil
}

// DecodeQuerySubmitted extracts the query payload from env.
func DecodeQuerySubmitted(env Envelope) (QuerySubmitted, error) {
	if env.EventType != EventQuerySubmitted {
		return QuerySubmitted{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	if env.PayloadVersion != PayloadVersionV1 {
		return QuerySubmitted{}, fmt.Errorf("unsupported payload version %q", env.PayloadVersion)
	}
	var q QuerySubmitted
	if err := json.Unmarshal(env.Data, &q); err != nil {
		return QuerySubmitted{}, fmt.Errorf("unmarshal query payload: %w", err)
	}
	if err := q.validate(); err != nil {
		return QuerySubmitted{}, err
	}
	return q, nil
}

// ValidatePayload checks the payload of known event types. Unknown types pass.
func ValidatePayload(env Envelope) error {
	switch env.EventType {
	case EventQuerySubmitted:
		_, err := DecodeQuerySubmitted(env)
		return err
	}
	return nil
}
