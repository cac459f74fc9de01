package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailpilot/internal/config"
	pkgconfig "mailpilot/pkg/config"
	"mailpilot/pkg/db"
	"mailpilot/pkg/logger"
	"mailpilot/pkg/mq"
	"mailpilot/pkg/redis"
)

// commandContext loads configuration once and opens backends on demand.
type commandContext struct {
	configDir *string
	env       *string

	cfg    *config.Config
	logger *zap.Logger
}

func newCommandContext(configDir, env *string) *commandContext {
	return &commandContext{configDir: configDir, env: env}
}

func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	env := *c.env
	if env == "" {
		env = pkgconfig.GetConfigEnv()
	}
	dir := *c.configDir
	if dir == "" {
		dir = pkgconfig.GetEnv("CONFIG_DIR", "config")
	}
	cfg, err := config.LoadFrom(env, dir)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) log() *zap.Logger {
	if c.logger == nil {
		c.logger = logger.NewLogger(false)
	}
	return c.logger
}

func (c *commandContext) withPool(ctx context.Context, fn func(*pgxpool.Pool) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	pool, err := db.NewConnection(ctx, cfg.DB, c.log())
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

func (c *commandContext) withPublisher(fn func(*mq.Publisher) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	pub, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("connect mq: %w", err)
	}
	defer pub.Close()
	return fn(pub)
}

func (c *commandContext) withRedis(ctx context.Context, fn func(*goredis.Client) error) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()
	return fn(rdb)
}

const planTTL = 7 * 24 * time.Hour
