package common

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock guards a job run across replicas
type RunLock interface {
	// Acquire returns false when another holder owns key
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisRunLock is a SETNX lock. The TTL bounds how long a crashed holder blocks others.
type RedisRunLock struct {
	client *redis.Client
	prefix string
	owner  string
}

var _ RunLock = (*RedisRunLock)(nil)

func NewRedisRunLock(client *redis.Client, prefix, owner string) *RedisRunLock {
	return &RedisRunLock{client: client, prefix: prefix, owner: owner}
}

func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release deletes the key only while this owner still holds it
func (l *RedisRunLock) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// NoopRunLock always acquires. Used when redis is disabled and only one replica runs the job.
type NoopRunLock struct{}

func (NoopRunLock) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NoopRunLock) Release(context.Context, string) error                        { return nil }
