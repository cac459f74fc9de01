package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	mqcontracts "mailpilot/contracts/mq"
)

type fakeConfirmation struct {
	acked bool
	err   error
	// block 为 true 时等到 ctx 结束
	block bool
}

func (f fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.acked, f.err
}

func TestAwaitConfirmAck(t *testing.T) {
	if err := awaitConfirm(context.Background(), fakeConfirmation{acked: true}); err != nil {
		t.Fatalf("awaitConfirm: %v", err)
	}
}

func TestAwaitConfirmNack(t *testing.T) {
	err := awaitConfirm(context.Background(), fakeConfirmation{acked: false})
	if !errors.Is(err, ErrPublishNacked) {
		t.Fatalf("expected ErrPublishNacked, got %v", err)
	}
}

func TestAwaitConfirmChannelClosed(t *testing.T) {
	err := awaitConfirm(context.Background(), fakeConfirmation{err: amqp091.ErrClosed})
	if !errors.Is(err, amqp091.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}

func TestAwaitConfirmHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := awaitConfirm(ctx, fakeConfirmation{block: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRetryDelaysAreDistinctTiers(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	got := p.RetryDelays()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("RetryDelays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RetryDelays = %v, want %v", got, want)
		}
	}
	// 每个可能的 Backoff 都有对应的队列
	tiers := map[time.Duration]bool{}
	for _, d := range got {
		tiers[d] = true
	}
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		if !tiers[p.Backoff(attempt)] {
			t.Fatalf("no retry tier for attempt %d", attempt)
		}
	}

	if d := (RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second}).RetryDelays(); len(d) != 0 {
		t.Fatalf("single attempt policy should need no retry queues, got %v", d)
	}
}

func TestRetryQueuePerTier(t *testing.T) {
	kind := mqcontracts.KindSendDraft
	if got := RetryQueueName(kind, 2*time.Second); got != "send_draft.retry.2000ms" {
		t.Fatalf("RetryQueueName = %q", got)
	}
	if RetryQueueName(kind, time.Second) == RetryQueueName(kind, 2*time.Second) {
		t.Fatal("different delays must use different queues")
	}
	if got := RetryQueueName(kind, 0); got != "send_draft.retry.1ms" {
		t.Fatalf("zero delay should clamp to 1ms, got %q", got)
	}

	args := retryQueueArgs(kind, 1500*time.Millisecond)
	if args["x-message-ttl"] != int64(1500) {
		t.Fatalf("x-message-ttl = %v", args["x-message-ttl"])
	}
	if args["x-dead-letter-exchange"] != ExchangeName || args["x-dead-letter-routing-key"] != kind.RoutingKey() {
		t.Fatalf("retry queue must dead-letter back to the job exchange, got %v", args)
	}
}

func TestRetryPublishingUsesQueueTTL(t *testing.T) {
	msg := amqp091.Delivery{
		Body:    []byte(`{"draftId":"d1"}`),
		Headers: amqp091.Table{HeaderJobID: "j1", HeaderAttempt: int32(1)},
	}
	pub := retryPublishing(msg, 2)
	if pub.Expiration != "" {
		t.Fatalf("per-message expiration must not be set, got %q", pub.Expiration)
	}
	if pub.Headers[HeaderAttempt] != int32(2) || pub.Headers[HeaderJobID] != "j1" {
		t.Fatalf("unexpected headers %v", pub.Headers)
	}
	if msg.Headers[HeaderAttempt] != int32(1) {
		t.Fatal("original delivery headers were mutated")
	}
	if pub.DeliveryMode != amqp091.Persistent {
		t.Fatal("retry copy must be persistent")
	}
}
