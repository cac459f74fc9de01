package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailpilot/internal/config"
	"mailpilot/internal/llm"
	"mailpilot/internal/mailer"
	"mailpilot/internal/mqhandler"
	"mailpilot/internal/planner"
	"mailpilot/internal/repository"
	"mailpilot/pkg/circuitbreaker"
	"mailpilot/pkg/db"
	"mailpilot/pkg/logger"
	"mailpilot/pkg/mq"
	"mailpilot/pkg/otel"
	"mailpilot/pkg/outbox"
	"mailpilot/pkg/redis"
	"mailpilot/pkg/secret"
	"mailpilot/pkg/util"
)

const (
	serviceName = "mailpilot-worker"
	version     = "0.1.0"
	planTTL     = 7 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logger.NewLogger(os.Getenv("LOG_LEVEL") == "debug")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
	}, logger)
	if err != nil {
		logger.Fatal("OpenTelemetry init failed", zap.Error(err))
	}
	defer shutdownTracing()

	logger.Info("Starting worker...",
		zap.Bool("local_mode", cfg.LocalMode),
		zap.Bool("auto_generate", cfg.Pipeline.AutoGenerate),
		zap.Bool("enable_optimizer", cfg.Pipeline.EnableOptimizer),
		zap.Bool("enable_rag", cfg.Pipeline.EnableRAG),
	)

	if cfg.LocalMode {
		err = runLocal(ctx, cfg, logger)
	} else {
		err = run(ctx, cfg, logger)
	}
	if err != nil {
		logger.Fatal("Worker failed", zap.Error(err))
	}
	logger.Info("Worker shutdown complete")
}

// run wires the production pipeline: PostgreSQL store, RabbitMQ consumers
// and the outbox for follow-up jobs.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := db.NewConnection(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, logger); err != nil {
		return err
	}

	// Redis 可选：不可用时关闭去重，计划只保存在内存
	var (
		deduper   *util.Deduper
		persister planner.Persister
	)
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, dedup and plan persistence disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		deduper = util.NewDeduper(rdb, cfg.DedupTTL(), logger)
		persister = planner.NewRedisPersister(rdb, planTTL)
	}

	broker, err := mq.NewBroker(mq.BrokerConfig{
		URL:         cfg.MQ.URL,
		Prefetch:    cfg.MQ.Prefetch,
		Concurrency: cfg.Pipeline.Concurrency,
		Retry:       retryPolicy(cfg),
		Deduper:     deduper,
	}, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	outboxRepo := outbox.NewRepository(pool)
	dispatcher := outbox.NewDispatcher(outboxRepo, broker.Publisher(), logger)
	go dispatcher.Start(ctx)

	deps := mqhandler.Deps{
		Store:    repository.NewPostgresStore(pool),
		Provider: newProvider(cfg, logger),
		Enqueuer: outbox.NewEnqueuer(outboxRepo),
		Progress: planner.NewTracker(persister, logger),
		Mailer:   newMailer(cfg, logger),
		Options:  pipelineOptions(cfg),
		Logger:   logger,
	}
	if err := mqhandler.Register(broker, deps); err != nil {
		return err
	}

	srv := newHTTPServer(cfg.Metrics.Addr, logger, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		if !broker.Publisher().IsConnected() {
			return errors.New("mq publisher disconnected")
		}
		return pingRedis(ctx, rdb)
	})
	go serveHTTP(srv, logger)

	logger.Info("Worker running")
	<-ctx.Done()
	logger.Info("Shutting down worker gracefully...")
	shutdownHTTP(srv, logger)
	return nil
}

func pingRedis(ctx context.Context, rdb *goredis.Client) error {
	if rdb == nil {
		return nil
	}
	return rdb.Ping(ctx).Err()
}

func retryPolicy(cfg *config.Config) mq.RetryPolicy {
	return mq.RetryPolicy{
		MaxAttempts: cfg.Pipeline.Retry.MaxAttempts,
		BaseDelay:   cfg.Pipeline.Retry.BaseDelay(),
		MaxDelay:    cfg.Pipeline.Retry.MaxDelay(),
	}
}

func pipelineOptions(cfg *config.Config) mqhandler.Options {
	return mqhandler.Options{
		AutoGenerate:    cfg.Pipeline.AutoGenerate,
		EnableOptimizer: cfg.Pipeline.EnableOptimizer,
		EnableRAG:       cfg.Pipeline.EnableRAG,
		RAGExamples:     cfg.Pipeline.RAGExamples,
	}
}

func newProvider(cfg *config.Config, logger *zap.Logger) llm.Provider {
	if cfg.Agent.UseStub || cfg.Agent.URL == "" {
		logger.Info("Using stub capability provider")
		return llm.Stub{}
	}
	breaker := circuitbreaker.DefaultConfig()
	breaker.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Agent circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	logger.Info("Using agent service", zap.String("url", cfg.Agent.URL))
	return llm.NewAgentClient(llm.AgentConfig{
		BaseURL: cfg.Agent.URL,
		Timeout: cfg.AgentTimeout(),
		Breaker: breaker,
	})
}

func newMailer(cfg *config.Config, logger *zap.Logger) mailer.Mailer {
	if cfg.Gmail.ClientID == "" {
		logger.Info("Gmail not configured, replies are only logged")
		return mailer.Noop{Logger: logger}
	}
	sealer, err := secret.NewSealer(cfg.Secret.CredentialKey)
	if err != nil {
		logger.Warn("Credential key missing, replies are only logged", zap.Error(err))
		return mailer.Noop{Logger: logger}
	}
	return mailer.NewGmail(mailer.GmailConfig{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RedirectURL:  cfg.Gmail.RedirectURL,
		Endpoint:     cfg.Gmail.Endpoint,
	}, sealer)
}
