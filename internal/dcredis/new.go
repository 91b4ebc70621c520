package dcredis

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/logang-di/dsx-connect/internal/config"
)

// New creates a redis connection from the specified configuration. The type of the
// connection returned is determined by the configuration.
func New(ctx context.Context, cfg config.C) (Client, error) {
	return NewForRoot(ctx, cfg.GetRoot())
}

// NewForRoot creates a redis connection from the specified configuration root. Same as New.
func NewForRoot(ctx context.Context, root *config.Root) (Client, error) {
	switch v := root.Redis.(type) {
	case *config.RedisMiniredis:
		return NewMiniredis(v)
	case *config.RedisReal:
		return NewRedis(ctx, v)
	case nil:
		return nil, errors.New("redis configuration not present")
	default:
		return nil, errors.New("redis type not supported")
	}
}

// NewRedis creates a redis connection to a real redis instance.
func NewRedis(ctx context.Context, redisConfig *config.RedisReal) (Client, error) {
	opts, err := redisConfig.ToRedisOptions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert redis config to redis options")
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	return client, nil
}
