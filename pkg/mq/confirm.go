package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ErrPublishNacked is returned when the broker refuses a publish.
var ErrPublishNacked = errors.New("mq: publish nacked by broker")

const defaultConfirmTimeout = 10 * time.Second

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// enableConfirms puts ch into publisher-confirm mode.
func enableConfirms(ch *amqp091.Channel) error {
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return nil
}

// publishConfirmed publishes msg and blocks until the broker acks it.
func publishConfirmed(ctx context.Context, ch *amqp091.Channel, exchange, key string, msg amqp091.Publishing) error {
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return err
	}
	if dc == nil {
		return errors.New("mq: channel is not in confirm mode")
	}
	return awaitConfirm(ctx, dc)
}

// awaitConfirm waits for a broker ack. Only a positive ack returns nil.
func awaitConfirm(ctx context.Context, c confirmation) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConfirmTimeout)
		defer cancel()
	}
	acked, err := c.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("mq: wait for publish confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}
	return nil
}
