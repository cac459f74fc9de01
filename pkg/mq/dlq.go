package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	mqcontracts "mailpilot/contracts/mq"
)

const (
	DLQExchangeName = "pipeline.dlq"

	HeaderOriginalError = "x-original-error"
	HeaderDeadReason    = "x-dead-reason"
	HeaderFailedAt      = "x-failed-at"
)

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares the dead letter queue of a kind.
func DeclareDLQQueue(ch *amqp091.Channel, kind mqcontracts.JobKind) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		string(kind)+".dlq",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		kind.RoutingKey(),
		DLQExchangeName,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// publishDead copies a failed delivery to the dead letter exchange with the
// failure attached as headers.
func publishDead(ctx context.Context, ch *amqp091.Channel, kind mqcontracts.JobKind, msg amqp091.Delivery, reason string, cause error) error {
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderDeadReason] = reason
	headers[HeaderFailedAt] = time.Now().UTC().Format(time.RFC3339)
	if cause != nil {
		headers[HeaderOriginalError] = cause.Error()
	}

	return publishConfirmed(ctx, ch,
		DLQExchangeName,
		kind.RoutingKey(),
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         msg.Body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
