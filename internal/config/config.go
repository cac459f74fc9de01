package config

import (
	"fmt"
	"time"

	"mailpilot/pkg/config"
)

type Config struct {
	DB       config.DBConfig       `yaml:"db"`
	MQ       config.MQConfig       `yaml:"mq"`
	Redis    config.RedisConfig    `yaml:"redis"`
	Agent    config.AgentConfig    `yaml:"agent_service"`
	Gmail    config.GmailConfig    `yaml:"gmail"`
	Pipeline config.PipelineConfig `yaml:"pipeline"`
	Metrics  config.MetricsConfig  `yaml:"metrics"`
	OTel     config.OTelConfig     `yaml:"otel"`
	Secret   config.SecretConfig   `yaml:"secret"`

	// LocalMode runs the pipeline on the in-memory queue and store.
	LocalMode bool `yaml:"local_mode"`
}

// Load 使用统一配置中心加载配置，环境变量优先级最高
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

// LoadFrom loads the given environment from configDir.
func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg := defaults()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideAgentFromEnv(&cfg.Agent)
	config.OverrideGmailFromEnv(&cfg.Gmail)
	config.OverridePipelineFromEnv(&cfg.Pipeline)
	config.OverrideSecretFromEnv(&cfg.Secret)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MQ: config.MQConfig{Prefetch: 10},
		Agent: config.AgentConfig{
			TimeoutSeconds: 30,
		},
		Pipeline: config.PipelineConfig{
			EnableOptimizer: true,
			EnableRAG:       true,
			Concurrency:     1,
			Retry: config.RetryConfig{
				MaxAttempts: 5,
				BaseDelayMS: 1000,
				MaxDelayMS:  60000,
			},
			DedupTTLMinutes: 60,
		},
		Metrics: config.MetricsConfig{Addr: ":9090"},
	}
}

// AgentTimeout returns the provider HTTP timeout.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSeconds) * time.Second
}

// DedupTTL returns how long completed job ids are remembered.
func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.Pipeline.DedupTTLMinutes) * time.Minute
}
