package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	mqcontracts "mailpilot/contracts/mq"
)

const (
	// ExchangeName is the topic exchange every job is published to.
	ExchangeName = "pipeline.jobs"
)

// NewConnection creates a new RabbitMQ connection.
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the job exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

// RetryQueueName is the holding queue for redeliveries of kind delayed by
// delay. Each backoff tier gets its own queue so every message in a queue
// shares one TTL and expires in FIFO order.
func RetryQueueName(kind mqcontracts.JobKind, delay time.Duration) string {
	return fmt.Sprintf("%s.retry.%dms", kind, retryDelayMS(delay))
}

func retryDelayMS(delay time.Duration) int64 {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

// 没有消费者，过期后经死信交换回到主交换机
func retryQueueArgs(kind mqcontracts.JobKind, delay time.Duration) amqp091.Table {
	return amqp091.Table{
		"x-message-ttl":             retryDelayMS(delay),
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": kind.RoutingKey(),
	}
}

// DeclareRetryQueues declares one retry queue per delay.
func DeclareRetryQueues(ch *amqp091.Channel, kind mqcontracts.JobKind, delays []time.Duration) error {
	for _, d := range delays {
		_, err := ch.QueueDeclare(
			RetryQueueName(kind, d),
			true,
			false,
			false,
			false,
			retryQueueArgs(kind, d),
		)
		if err != nil {
			return fmt.Errorf("failed to declare retry queue %s: %w", RetryQueueName(kind, d), err)
		}
	}
	return nil
}

// DeclareTopology declares the work and dead-letter queues of a kind.
// Retry queues depend on the retry policy; see DeclareRetryQueues.
//
//	pipeline.jobs          --job.<kind>--> <kind>.q
//	<kind>.retry.<ms>ms    --(x-message-ttl)--> pipeline.jobs
//	pipeline.dlq           --job.<kind>--> <kind>.dlq
func DeclareTopology(ch *amqp091.Channel, kind mqcontracts.JobKind) error {
	if err := DeclareExchange(ch); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		kind.QueueName(),
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, kind.RoutingKey(), ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	if _, err := DeclareDLQQueue(ch, kind); err != nil {
		return err
	}
	return nil
}
