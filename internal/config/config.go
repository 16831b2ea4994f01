package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	MailGatewayURL    string `env:"MAIL_GATEWAY_URL,required=true"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=16"`
	WorkerPrefetch    int    `env:"WORKER_PREFETCH,default=8"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`

	// Resilience tuning for the delivery executor. Durations are in
	// milliseconds.
	BulkheadSize            int     `env:"BULKHEAD_SIZE,default=16"`
	BulkheadMaxWaitMillis   int     `env:"BULKHEAD_MAX_WAIT_MS,default=2000"`
	AttemptTimeoutMillis    int     `env:"ATTEMPT_TIMEOUT_MS,default=10000"`
	MaxAttempts             int     `env:"MAX_ATTEMPTS,default=3"`
	BreakerWindowSize       int     `env:"BREAKER_WINDOW_SIZE,default=10"`
	BreakerFailureThreshold float64 `env:"BREAKER_FAILURE_THRESHOLD,default=0.5"`
	BreakerMinimumSamples   int     `env:"BREAKER_MINIMUM_SAMPLES,default=5"`
	BreakerWaitMillis       int     `env:"BREAKER_WAIT_MS,default=30000"`
	BreakerPermittedProbes  int     `env:"BREAKER_PERMITTED_PROBES,default=1"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) BulkheadMaxWait() time.Duration {
	return time.Duration(c.BulkheadMaxWaitMillis) * time.Millisecond
}

func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutMillis) * time.Millisecond
}

func (c *Config) BreakerWait() time.Duration {
	return time.Duration(c.BreakerWaitMillis) * time.Millisecond
}
