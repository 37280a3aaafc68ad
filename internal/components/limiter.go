package components

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"newswire/internal/classifier"
	"newswire/internal/config"
)

// LimiterComponent provides the gate around classifier calls. The redis
// variant shares the concurrency limit between processes.
type LimiterComponent struct {
	config  config.LimiterConfig
	limit   int
	client  *redis.Client
	limiter classifier.Limiter
}

func NewLimiterComponent(cfg config.LimiterConfig, limit int) *LimiterComponent {
	return &LimiterComponent{config: cfg, limit: limit}
}

func (c *LimiterComponent) Name() string {
	return LimiterComponentName
}

func (c *LimiterComponent) Dependencies() []string {
	return []string{}
}

func (c *LimiterComponent) Validate() error {
	if c.config.Type == "redis" && c.config.RedisAddr == "" {
		return fmt.Errorf("limiter: redis address is required")
	}
	return nil
}

func (c *LimiterComponent) Initialize(ctx context.Context) error {
	if c.config.Type != "redis" {
		c.limiter = classifier.NewLocalLimiter(c.limit)
		return nil
	}

	c.client = redis.NewClient(&redis.Options{
		Addr: c.config.RedisAddr,
		DB:   c.config.RedisDB,
	})
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("limiter: failed to connect to redis: %w", err)
	}

	c.limiter = classifier.NewRedisLimiter(c.client, c.config.Key, c.limit, config.Duration(c.config.Lease))
	return nil
}

func (c *LimiterComponent) Close(ctx context.Context) error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *LimiterComponent) Limiter() classifier.Limiter {
	return c.limiter
}
