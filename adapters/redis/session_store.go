package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/entities"
	"github.com/nexalabs/nexa-server/domain/repositories"
)

const (
	// Redis key prefixes
	identityKeyPrefix = "identity:"
	greetingKeyPrefix = "greeting:"
	// Default TTL for identity keys (24 hours)
	defaultTTL = 24 * time.Hour
)

// SessionStore implements IdentitySessionStore on Redis. Identities live
// under identity:<connectionID> with a TTL; greeting rotation counters live
// under greeting:<scope> with no expiry so the rotation survives restarts.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ repositories.IdentitySessionStore = (*SessionStore)(nil)

// NewClient creates a go-redis client from environment configuration
func NewClient(logger *zap.Logger) (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379" // Default for development
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Successfully connected to Redis", zap.String("addr", addr))
	return client, nil
}

// NewSessionStore creates a Redis-backed identity session store
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SessionStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// SaveIdentity implements IdentitySessionStore.
func (s *SessionStore) SaveIdentity(ctx context.Context, connectionID string, identity entities.UserIdentity) error {
	val, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, identityKeyPrefix+connectionID, val, s.ttl).Err()
}

// Identity implements IdentitySessionStore.
// Returns nil if no identity is bound to the connection (not an error).
func (s *SessionStore) Identity(ctx context.Context, connectionID string) (*entities.UserIdentity, error) {
	val, err := s.client.Get(ctx, identityKeyPrefix+connectionID).Result()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	var identity entities.UserIdentity
	if err := json.Unmarshal([]byte(val), &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// ClearIdentity implements IdentitySessionStore.
func (s *SessionStore) ClearIdentity(ctx context.Context, connectionID string) error {
	return s.client.Del(ctx, identityKeyPrefix+connectionID).Err()
}

// NextGreetingIndex implements IdentitySessionStore. INCR gives each login
// in a scope the next rotation slot atomically across server instances.
func (s *SessionStore) NextGreetingIndex(ctx context.Context, scope string) (int, error) {
	n, err := s.client.Incr(ctx, greetingKeyPrefix+scope).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance greeting counter: %w", err)
	}
	// INCR starts at 1; indexes start at 0.
	return int(n - 1), nil
}
