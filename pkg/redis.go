package pkg

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/edplatform/grading-service/internal/config"
)

// NewRedisClient builds a redis client from the configured URL.
// Caching is optional; callers skip this when RedisURL is empty.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
