package convctx

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/observability"
)

// New builds the context store from configuration: Redis with in-memory
// degradation when an address is configured, plain process memory otherwise.
// Either way writers are serialized per session.
func New(cfg config.RedisConfig, logger *observability.Logger) Store {
	if cfg.Addr == "" {
		logger.Warn(context.Background(), "redis not configured, conversation context is process-local")
		return WithSessionLocks(NewMemoryStore())
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return WithSessionLocks(WithFallback(NewRedisStore(client), logger))
}
