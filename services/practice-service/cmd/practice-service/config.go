package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/practicepulse/libs/config"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
)

type appConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"practice-service"`
	Port        string `env:"PORT" envDefault:"8080"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9092"`

	DatabaseURL string        `env:"DATABASE_URL,notEmpty"`
	DBMaxConns  int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBSlowQuery time.Duration `env:"DB_SLOW_QUERY" envDefault:"500ms"`

	KafkaBrokers     string        `env:"KAFKA_BROKERS"`
	OutboxPollEvery  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	OutboxBatchSize  int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	OutboxRetention  time.Duration `env:"OUTBOX_RETENTION" envDefault:"168h"`
	RedisURL         string        `env:"REDIS_URL"`
	CacheKeyPrefix   string        `env:"PAGE_CACHE_PREFIX" envDefault:"pagecache"`
	CacheChannel     string        `env:"PAGE_CACHE_CHANNEL" envDefault:"pagecache.invalidate"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	RateLimitPrefix  string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl:practice"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	CORSOrigins      []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	JWTSecret        string        `env:"JWT_SECRET"`
	JWKSURL          string        `env:"JWKS_URL"`
	JWKSCacheTTL     time.Duration `env:"JWKS_CACHE_TTL" envDefault:"10m"`
	StripeSecretKey  string        `env:"STRIPE_SECRET_KEY"`
	StripeAPIBase    string        `env:"STRIPE_API_BASE"`
	StripeTimeout    time.Duration `env:"STRIPE_TIMEOUT" envDefault:"10s"`
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	PriceStarter     string        `env:"STRIPE_PRICE_STARTER"`
	PricePro         string        `env:"STRIPE_PRICE_PRO"`
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	for _, p := range []string{cfg.Port, cfg.GRPCPort} {
		if err := config.ValidPort(p); err != nil {
			return cfg, err
		}
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		return cfg, fmt.Errorf("config: JWT_SECRET or JWKS_URL is required")
	}
	return cfg, nil
}

// priceTiers maps configured Stripe price ids to the plan they grant.
func (c appConfig) priceTiers() map[string]plan.Tier {
	out := map[string]plan.Tier{}
	if id := strings.TrimSpace(c.PriceStarter); id != "" {
		out[id] = plan.Starter
	}
	if id := strings.TrimSpace(c.PricePro); id != "" {
		out[id] = plan.Professional
	}
	return out
}
