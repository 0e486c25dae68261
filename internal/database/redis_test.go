package database

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memzapp/memz/internal/config"
)

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 4, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "memz", opts.ClientName)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	// URL parameters win over the env settings.
	opts, err = redisOptions(config.RedisConfig{URL: "redis://localhost:6379?pool_size=9&dial_timeout=3s", PoolSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 9, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = redisOptions(config.RedisConfig{URL: "redis://localhost:6379"})
	require.NoError(t, err)
	assert.Zero(t, opts.PoolSize)
	assert.Equal(t, defaultRedisDialTimeout, opts.DialTimeout)

	_, err = redisOptions(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{URL: "redis://" + mr.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedis(config.RedisConfig{URL: "redis://" + addr, DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
