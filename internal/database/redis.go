package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memzapp/memz/internal/config"
)

const (
	// redisClientName identifies Memz connections in CLIENT LIST.
	redisClientName = "memz"

	defaultRedisDialTimeout = 5 * time.Second
)

// NewRedis connects the client shared by the session store and the change
// broker. It fails unless the server answers a ping within the dial timeout.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// redisOptions parses REDIS_URL and layers the pool settings on top. Values
// given in the URL query (pool_size, dial_timeout) win over the env ones.
func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = redisClientName
	}
	if opts.PoolSize == 0 && cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultRedisDialTimeout
	}
	return opts, nil
}
