//go:build integration

package streams

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPublishConsumeAck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()
	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	defer client.Close()

	const stream, group = "query.submitted", "wsorch-workers"
	var dropped []string
	consumer := NewConsumer(client, stream, group, "worker-1", WithDropHook(func(id string, err error) {
		dropped = append(dropped, id)
	}))
	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup must be idempotent: %v", err)
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]interface{}{"envelope": "not json"}}).Err(); err != nil {
		t.Fatalf("XAdd: %v", err)
	}
	if _, err := NewPublisher(client, stream, WithMaxLen(100)).PublishQuery(ctx, QuerySubmitted{TaskID: "t1", UserID: "u1", Query: "find document"}); err != nil {
		t.Fatalf("PublishQuery: %v", err)
	}

	msgs, err := consumer.Read(ctx, time.Second, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(msgs) != 1 || len(dropped) != 1 {
		t.Fatalf("expected one message and one drop, got %d and %v", len(msgs), dropped)
	}
	if msgs[0].Query.TaskID != "t1" || msgs[0].Query.Query != "find document" {
		t.Fatalf("unexpected query %+v", msgs[0].Query)
	}
	if err := consumer.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	lag, err := consumer.Lag(ctx)
	if err != nil {
		t.Fatalf("Lag: %v", err)
	}
	if lag.Pending != 0 {
		t.Fatalf("expected nothing pending, got %+v", lag)
	}
	claimed, _, err := consumer.Claim(ctx, 0, "0-0", 10)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected nothing to claim, got %d", len(claimed))
	}
}
