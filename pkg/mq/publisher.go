package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/otel"
	"mailpilot/pkg/trace"
)

type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	mu      sync.Mutex
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := enableConfirms(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected checks if the publisher connection is still alive
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed() && !p.channel.IsClosed()
}

// NewJobHeaders assigns a job id and returns the headers of a first attempt.
func NewJobHeaders(ctx context.Context, kind mqcontracts.JobKind) map[string]interface{} {
	_, traceID := trace.Ensure(ctx)
	return map[string]interface{}{
		HeaderJobID:         uuid.NewString(),
		HeaderAttempt:       int32(1),
		HeaderKind:          string(kind),
		trace.HeaderTraceID: traceID,
	}
}

// PublishWithContext publishes a raw JSON body to the job exchange and
// waits for the broker confirm. headers may be nil; the current span
// context is injected into them.
func (p *Publisher) PublishWithContext(ctx context.Context, routingKey string, body []byte, headers map[string]interface{}) (err error) {
	if headers == nil {
		headers = map[string]interface{}{}
	}
	ctx, span := otel.MQPublishSpan(ctx, routingKey, ExchangeName, headers)
	defer func() { otel.EndSpan(span, err) }()

	p.mu.Lock()
	dc, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		ExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      amqp091.Table(headers),
		},
	)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if dc == nil {
		return fmt.Errorf("mq: publisher channel is not in confirm mode")
	}
	// broker 确认之后才算发布成功
	return awaitConfirm(ctx, dc)
}

// Enqueue publishes payload as a new job of kind.
func (p *Publisher) Enqueue(ctx context.Context, kind mqcontracts.JobKind, payload any) error {
	body, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	return p.PublishWithContext(ctx, kind.RoutingKey(), body, NewJobHeaders(ctx, kind))
}
