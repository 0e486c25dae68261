package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix namespaces session keys in Redis.
const sessionKeyPrefix = "session:"

// ErrSessionNotFound is returned by a SessionStore for unknown or expired
// tokens.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions by token.
type SessionStore interface {
	Save(ctx context.Context, token string, s *Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}

// redisSessionStore keeps sessions as JSON under session:<token> with a TTL.
type redisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a session store backed by Redis.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Save(ctx context.Context, token string, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+token, data, ttl).Err(); err != nil {
		return fmt.Errorf("storing session in redis: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &sess, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}

// memorySessionStore keeps sessions in process. Used when Redis is not
// configured; sessions do not survive a restart.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	session   Session
	expiresAt time.Time
}

// NewMemorySessionStore creates an in-process session store.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

func (s *memorySessionStore) Save(_ context.Context, token string, sess *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Expired entries are swept on write so the map can't grow unbounded.
	for t, m := range s.sessions {
		if !now.Before(m.expiresAt) {
			delete(s.sessions, t)
		}
	}
	s.sessions[token] = memorySession{session: *sess, expiresAt: now.Add(ttl)}
	return nil
}

func (s *memorySessionStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.now().Before(m.expiresAt) {
		delete(s.sessions, token)
		return nil, ErrSessionNotFound
	}
	sess := m.session
	return &sess, nil
}

func (s *memorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
