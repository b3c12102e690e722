package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/vp8inspector/internal/config"
)

// New builds the registry selected by cfg.Backend. The Redis backend is
// pinged before it is returned.
func New(ctx context.Context, cfg config.RegistryConfig, logger *logrus.Logger) (Registry, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRegistry(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisRegistry(client, logger, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}
