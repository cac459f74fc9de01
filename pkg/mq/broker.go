package mq

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/pkg/util"
)

// BrokerConfig configures the RabbitMQ-backed queue.
type BrokerConfig struct {
	URL         string
	Prefetch    int
	Concurrency int
	Retry       RetryPolicy
	// Deduper is optional.
	Deduper *util.Deduper
}

// Broker is the RabbitMQ implementation of Queue. Each Consume call starts
// Concurrency consumers, each on its own connection.
type Broker struct {
	cfg       BrokerConfig
	publisher *Publisher
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	consumers []*Consumer
	wg        sync.WaitGroup
}

var _ Queue = (*Broker)(nil)

func NewBroker(cfg BrokerConfig, logger *zap.Logger) (*Broker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	cfg.Retry = cfg.Retry.withDefaults()

	pub, err := NewPublisher(cfg.URL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		cfg:       cfg,
		publisher: pub,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Publisher exposes the broker's publisher, e.g. for the outbox dispatcher.
func (b *Broker) Publisher() *Publisher {
	return b.publisher
}

func (b *Broker) Enqueue(ctx context.Context, kind mqcontracts.JobKind, payload any) error {
	return b.publisher.Enqueue(ctx, kind, payload)
}

func (b *Broker) Consume(kind mqcontracts.JobKind, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", kind)
	}
	for i := 0; i < b.cfg.Concurrency; i++ {
		tag := fmt.Sprintf("%s-%d", kind, i)
		c, err := NewConsumer(b.cfg.URL, kind, tag, b.cfg.Prefetch, b.logger)
		if err != nil {
			return fmt.Errorf("consumer %s: %w", tag, err)
		}
		c.SetHandler(handler)
		c.SetRetryPolicy(b.cfg.Retry)
		c.SetDeduper(b.cfg.Deduper)

		b.mu.Lock()
		b.consumers = append(b.consumers, c)
		b.mu.Unlock()

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := c.StartConsuming(b.ctx); err != nil {
				b.logger.Error("Consumer stopped with error",
					zap.String("consumer_tag", tag),
					zap.Error(err),
				)
			}
		}()
	}
	return nil
}

// Close stops all consumers, waits for in-flight jobs to settle and closes
// every connection.
func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	consumers := append([]*Consumer(nil), b.consumers...)
	b.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
	}
	b.wg.Wait()
	for _, c := range consumers {
		c.Close()
	}
	b.publisher.Close()
}
