package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/metrics"
	"mailpilot/pkg/otel"
	"mailpilot/pkg/trace"
	"mailpilot/pkg/util"
)

type Consumer struct {
	kind     mqcontracts.JobKind
	tag      string
	handler  MessageHandler
	policy   RetryPolicy
	deduper  *util.Deduper
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	logger   *zap.Logger
	prefetch int
}

// NewConsumer opens a dedicated connection for one consumer of kind and
// declares the kind's topology.
func NewConsumer(url string, kind mqcontracts.JobKind, tag string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareTopology(ch, kind); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	// 重试和死信的转发都要等 broker 确认
	if err := enableConfirms(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", kind.RoutingKey()),
		zap.String("queue", kind.QueueName()),
		zap.String("exchange", ExchangeName),
		zap.Int("prefetch", prefetch),
	)

	return &Consumer{
		kind:     kind,
		tag:      tag,
		conn:     conn,
		channel:  ch,
		logger:   logger,
		policy:   DefaultRetryPolicy(),
		prefetch: prefetch,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) SetRetryPolicy(p RetryPolicy) {
	c.policy = p.withDefaults()
}

// SetDeduper enables completed-job dedup; nil disables it.
func (c *Consumer) SetDeduper(d *util.Deduper) {
	c.deduper = d
}

// Stop cancels the subscription; StartConsuming returns once the
// in-flight delivery has been settled.
func (c *Consumer) Stop() {
	if c.channel != nil {
		_ = c.channel.Cancel(c.tag, false)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}
	if err := DeclareRetryQueues(c.channel, c.kind, c.policy.RetryDelays()); err != nil {
		return err
	}

	deliveries, err := c.channel.Consume(
		c.kind.QueueName(),
		c.tag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.kind.RoutingKey()),
		zap.String("queue", c.kind.QueueName()),
		zap.String("consumer_tag", c.tag),
	)

	// 保证每条消息都会被 ack 或 nack
	for msg := range deliveries {
		c.handleDelivery(ctx, msg)
	}
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp091.Delivery) {
	headers := map[string]interface{}(msg.Headers)
	if headers == nil {
		headers = map[string]interface{}{}
	}
	jobID := stringHeader(headers, HeaderJobID)
	attempt := attemptFromHeader(headers[HeaderAttempt])

	if ctx.Err() != nil {
		// 正在关闭：放回队列，交给下一个实例
		c.nack(msg, jobID)
		return
	}

	if c.deduper != nil && c.deduper.AlreadyDone(ctx, string(c.kind), jobID) {
		c.ack(msg, jobID)
		return
	}

	jobCtx := trace.WithJobID(ctx, jobID)
	if traceID := stringHeader(headers, trace.HeaderTraceID); traceID != "" {
		jobCtx = trace.WithContext(jobCtx, traceID)
	} else {
		jobCtx, _ = trace.Ensure(jobCtx)
	}
	jobCtx = withAttempt(jobCtx, attempt)
	jobCtx, span := otel.MQConsumeSpan(jobCtx, c.kind.RoutingKey(), c.kind.QueueName(), headers)

	log := c.logger.With(
		zap.String("kind", string(c.kind)),
		zap.String("job_id", jobID),
		zap.Int("attempt", attempt),
	)
	log.Debug("Received message", zap.Int("message_size", len(msg.Body)))

	start := time.Now()
	err := runHandler(jobCtx, c.handler, msg.Body)
	otel.EndSpan(span, err)

	if err != nil && ctx.Err() != nil {
		log.Warn("Job interrupted by shutdown, requeueing", zap.Error(err))
		metrics.RecordJob(string(c.kind), "interrupted", time.Since(start))
		c.nack(msg, jobID)
		return
	}

	d, reason := c.policy.decide(attempt, err)
	metrics.RecordJob(string(c.kind), d.String(), time.Since(start))

	switch d {
	case dispositionAck:
		if c.deduper != nil {
			c.deduper.MarkDone(ctx, string(c.kind), jobID)
		}
		c.ack(msg, jobID)
		log.Debug("Message processed successfully")

	case dispositionRetry:
		delay := c.policy.Backoff(attempt)
		log.Warn("Job failed, scheduling retry",
			zap.String("reason", reason),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if perr := c.publishRetry(ctx, msg, attempt+1, delay); perr != nil {
			log.Error("Failed to schedule retry, requeueing", zap.Error(perr))
			c.nack(msg, jobID)
			return
		}
		c.ack(msg, jobID)

	case dispositionDead:
		log.Error("Job dead-lettered",
			zap.String("reason", reason),
			zap.Error(err),
		)
		metrics.IncrementDeadJob(string(c.kind), reason)
		if perr := publishDead(ctx, c.channel, c.kind, msg, reason, err); perr != nil {
			log.Error("Failed to publish to DLQ, requeueing", zap.Error(perr))
			c.nack(msg, jobID)
			return
		}
		c.ack(msg, jobID)
	}
}

// publishRetry parks a copy of msg in the retry queue of its delay tier;
// the broker routes it back to the work queue when the queue TTL expires.
func (c *Consumer) publishRetry(ctx context.Context, msg amqp091.Delivery, nextAttempt int, delay time.Duration) error {
	return publishConfirmed(ctx, c.channel,
		"", // 默认交换机直达重试队列
		RetryQueueName(c.kind, delay),
		retryPublishing(msg, nextAttempt),
	)
}

func retryPublishing(msg amqp091.Delivery, nextAttempt int) amqp091.Publishing {
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderAttempt] = int32(nextAttempt)
	return amqp091.Publishing{
		ContentType:  "application/json",
		Body:         msg.Body,
		DeliveryMode: amqp091.Persistent,
		Headers:      headers,
	}
}

func (c *Consumer) ack(msg amqp091.Delivery, jobID string) {
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.kind.RoutingKey()),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (c *Consumer) nack(msg amqp091.Delivery, jobID string) {
	if err := msg.Nack(false, true); err != nil {
		c.logger.Error("Failed to nack message",
			zap.String("routing_key", c.kind.RoutingKey()),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}
