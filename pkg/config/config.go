package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
	// SlowQueryMS is the threshold above which a query is logged as slow.
	SlowQueryMS int `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL      string `yaml:"url"`
	Prefetch int    `yaml:"prefetch"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AgentConfig describes the HTTP capability provider.
type AgentConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UseStub        bool   `yaml:"use_stub"`
}

// GmailConfig holds the OAuth client used to send replies.
// An empty ClientID disables outbound sending.
type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	Endpoint     string `yaml:"endpoint"`
}

// RetryConfig 重试策略
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// BaseDelay returns the first backoff delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff ceiling.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// PipelineConfig toggles the optional pipeline edges.
type PipelineConfig struct {
	AutoGenerate    bool        `yaml:"auto_generate"`
	EnableOptimizer bool        `yaml:"enable_optimizer"`
	EnableRAG       bool        `yaml:"enable_rag"`
	RAGExamples     bool        `yaml:"rag_examples"`
	Concurrency     int         `yaml:"concurrency"`
	Retry           RetryConfig `yaml:"retry"`
	DedupTTLMinutes int         `yaml:"dedup_ttl_minutes"`
}

// MetricsConfig Prometheus 暴露地址
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// SecretConfig holds the key material used to seal provider credentials.
type SecretConfig struct {
	CredentialKey string `yaml:"credential_key"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideAgentFromEnv 从环境变量覆盖 agent 配置
func OverrideAgentFromEnv(cfg *AgentConfig) {
	if url := os.Getenv("AGENT_SERVICE_URL"); url != "" {
		cfg.URL = url
	}
	if v, ok := boolEnv("USE_LLM_STUB"); ok {
		cfg.UseStub = v
	}
}

// OverrideGmailFromEnv 从环境变量覆盖 Gmail OAuth 配置
func OverrideGmailFromEnv(cfg *GmailConfig) {
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.ClientSecret = secret
	}
	if redirect := os.Getenv("GOOGLE_REDIRECT_URI"); redirect != "" {
		cfg.RedirectURL = redirect
	}
}

// OverridePipelineFromEnv 从环境变量覆盖流水线开关
func OverridePipelineFromEnv(cfg *PipelineConfig) {
	if v, ok := boolEnv("ENABLE_OPTIMIZER"); ok {
		cfg.EnableOptimizer = v
	}
	if v, ok := boolEnv("ENABLE_RAG"); ok {
		cfg.EnableRAG = v
	}
	if v, ok := boolEnv("AUTO_GENERATE"); ok {
		cfg.AutoGenerate = v
	}
}

// OverrideSecretFromEnv 从环境变量覆盖凭据密钥
func OverrideSecretFromEnv(cfg *SecretConfig) {
	if key := os.Getenv("CREDENTIAL_KEY"); key != "" {
		cfg.CredentialKey = key
	}
}

func boolEnv(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
