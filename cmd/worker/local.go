package main

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "mailpilot/contracts/mq"
	"mailpilot/internal/config"
	"mailpilot/internal/mailer"
	"mailpilot/internal/mqhandler"
	"mailpilot/internal/planner"
	"mailpilot/internal/repository"
	"mailpilot/internal/seed"
	"mailpilot/pkg/mq"
)

// runLocal runs the whole pipeline in process on the memory queue and store,
// seeded with the demo mailbox. Nothing survives a restart.
func runLocal(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store := repository.NewMemoryStore()
	queue := mq.NewMemoryQueue(retryPolicy(cfg), logger)
	tracker := planner.NewTracker(nil, logger)

	deps := mqhandler.Deps{
		Store:    store,
		Provider: newProvider(cfg, logger),
		Enqueuer: queue,
		Progress: tracker,
		Mailer:   mailer.Noop{Logger: logger},
		Options:  pipelineOptions(cfg),
		Logger:   logger,
	}
	if err := mqhandler.Register(queue, deps); err != nil {
		return err
	}

	res, err := seed.Run(ctx, store)
	if err != nil {
		return err
	}
	for _, e := range res.Emails {
		if err := queue.Enqueue(ctx, mqcontracts.KindClassifyMail, mqcontracts.ClassifyMailPayload{EmailID: e.ID}); err != nil {
			return err
		}
	}
	logger.Info("Local mode seeded", zap.Int("emails", len(res.Emails)))

	srv := newHTTPServer(cfg.Metrics.Addr, logger, func(context.Context) error { return nil })
	go serveHTTP(srv, logger)

	queue.Run(ctx, cfg.Pipeline.Concurrency)

	logger.Info("Local pipeline stopped",
		zap.Int("pending", len(queue.Pending())),
		zap.Int("dead", len(queue.Dead())),
	)
	shutdownHTTP(srv, logger)
	return nil
}
