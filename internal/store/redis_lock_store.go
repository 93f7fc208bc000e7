package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript frees the lease only while the caller still owns it,
// so a holder that overran the TTL cannot release a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockStore implements LockStore for Redis
type RedisLockStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLockStore creates a new Redis lock store
func NewRedisLockStore(host string, port int, password string, db int, logger *zap.Logger) (*RedisLockStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLockStore{
		client: client,
		logger: logger,
	}, nil
}

// Acquire takes the lease for at most ttl. The TTL doubles as the
// maximum hold time: a crashed holder's lease expires on its own.
func (s *RedisLockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", ErrLockNotAcquired
	}

	return token, nil
}

// Release frees the lease if the token still owns it
func (s *RedisLockStore) Release(ctx context.Context, key, token string) error {
	released, err := releaseScript.Run(ctx, s.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if released == 0 {
		s.logger.Warn("Lock already expired or taken over before release",
			zap.String("key", key))
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisLockStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisLockStore) Close() error {
	return s.client.Close()
}
