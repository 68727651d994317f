package streams

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher appends query envelopes to a single stream.
type Publisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithMaxLen trims the stream to roughly n entries on every append.
func WithMaxLen(n int64) PublisherOption {
	return func(p *Publisher) { p.maxLen = n }
}

// NewPublisher returns a Publisher writing to stream.
func NewPublisher(client redis.Cmdable, stream string, opts ...PublisherOption) *Publisher {
	p := &Publisher{client: client, stream: stream}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishQuery enqueues q for a worker and returns the stream entry id.
func (p *Publisher) PublishQuery(ctx context.Context, q QuerySubmitted) (string, error) {
	env, err := NewQuerySubmitted(q, "")
	if err != nil {
		return "", err
	}
	return p.publish(ctx, env)
}

func (p *Publisher) publish(ctx context.Context, env Envelope) (string, error) {
	if p.stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	if err := ValidatePayload(env); err != nil {
		return "", fmt.Errorf("invalid %s payload: %w", env.EventType, err)
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{envelopeField: raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}
