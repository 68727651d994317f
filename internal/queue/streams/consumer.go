package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const envelopeField = "envelope"

// Message is a decoded query entry read from the stream.
type Message struct {
	ID       string
	Envelope Envelope
	Query    QuerySubmitted
}

// LagMetrics describes how far a consumer group trails its stream.
type LagMetrics struct {
	Pending    int64
	Lag        int64
	Consumers  int64
	OldestIdle time.Duration
}

// Consumer reads query envelopes from one stream as a member of a consumer
// group. Entries that cannot be decoded are acknowledged and dropped.
type Consumer struct {
	client redis.Cmdable
	stream string
	group  string
	name   string
	onDrop func(id string, err error)
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDropHook is called for every entry dropped as undecodable.
func WithDropHook(fn func(id string, err error)) ConsumerOption {
	return func(c *Consumer) { c.onDrop = fn }
}

// NewConsumer binds a consumer named name in group to stream.
func NewConsumer(client redis.Cmdable, stream, group, name string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{client: client, stream: stream, group: group, name: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureGroup creates the stream and the group if either is missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c.stream == "" || c.group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", c.stream, c.group, err)
	}
	return nil
}

// Read returns up to count new entries, blocking for at most block when the
// stream is idle. An idle stream yields no messages and no error.
func (c *Consumer) Read(ctx context.Context, block time.Duration, count int64) ([]Message, error) {
	if c.name == "" {
		return nil, fmt.Errorf("consumer name is required")
	}
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", c.stream, err)
	}
	var out []Message
	for _, st := range res {
		out = append(out, c.decodeAll(ctx, st.Messages)...)
	}
	return out, nil
}

// Ack marks entries as processed.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", c.stream, err)
	}
	return nil
}

// Claim takes over entries another consumer left pending for longer than
// minIdle. Pass the returned cursor back as start to continue; "0-0" means
// the pending list was exhausted.
func (c *Consumer) Claim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]Message, string, error) {
	entries, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    start,
		Count:    count,
	}).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim %s: %w", c.stream, err)
	}
	return c.decodeAll(ctx, entries), next, nil
}

// Lag reports the group's pending count, undelivered backlog and the idle
// time of its oldest pending entry. Lag is -1 when the group is unknown.
func (c *Consumer) Lag(ctx context.Context) (LagMetrics, error) {
	groups, err := c.client.XInfoGroups(ctx, c.stream).Result()
	if err != nil {
		return LagMetrics{}, fmt.Errorf("xinfo groups %s: %w", c.stream, err)
	}
	m := LagMetrics{Lag: -1}
	for _, g := range groups {
		if g.Name == c.group {
			m = LagMetrics{Pending: g.Pending, Lag: g.Lag, Consumers: g.Consumers}
			break
		}
	}
	if m.Pending == 0 {
		return m, nil
	}
	oldest, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return LagMetrics{}, fmt.Errorf("xpending %s: %w", c.stream, err)
	}
	if len(oldest) > 0 {
		m.OldestIdle = oldest[0].Idle
	}
	return m, nil
}

func (c *Consumer) decodeAll(ctx context.Context, entries []redis.XMessage) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		msg, err := decodeEntry(e)
		if err != nil {
			c.drop(ctx, e.ID, err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (c *Consumer) drop(ctx context.Context, id string, cause error) {
	_ = c.client.XAck(ctx, c.stream, c.group, id).Err()
	if c.onDrop != nil {
		c.onDrop(id, cause)
	}
}

func decodeEntry(e redis.XMessage) (Message, error) {
	var raw []byte
	switch v := e.Values[envelopeField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		return Message{}, fmt.Errorf("entry has no %s field", envelopeField)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	env, err := UnmarshalEnvelope(raw)
	if err != nil {
		return Message{}, err
	}
	q, err := DecodeQuerySubmitted(env)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: e.ID, Envelope: env, Query: q}, nil
}
