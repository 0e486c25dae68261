package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisSessionStore(client)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, "tok", &Session{Email: "ann@example.com", CreatedAt: created}, time.Hour))
	assert.True(t, mr.Exists("session:tok"))
	assert.Equal(t, time.Hour, mr.TTL("session:tok"))

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got.Email)
	assert.True(t, created.Equal(got.CreatedAt))

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tok", &Session{Email: "ann@example.com"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore_CorruptData(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set("session:tok", "{not json"))

	_, err := NewRedisSessionStore(client).Get(context.Background(), "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore().(*memorySessionStore)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", &Session{Email: "ann@example.com"}, time.Hour))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got.Email)

	// Changing the returned copy must not touch the stored session.
	got.Email = "eve@example.com"
	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", again.Email)

	now = now.Add(time.Hour)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStore_SweepsExpiredOnSave(t *testing.T) {
	store := NewMemorySessionStore().(*memorySessionStore)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "old", &Session{Email: "ann@example.com"}, time.Minute))
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Save(ctx, "new", &Session{Email: "bob@example.com"}, time.Minute))

	assert.Len(t, store.sessions, 1)

	require.NoError(t, store.Delete(ctx, "new"))
	_, err := store.Get(ctx, "new")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
