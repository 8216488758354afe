package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// An empty address leaves both nil.
func ConnectRedisWithRetry(ctx context.Context, s Settings) (*redis.Client, error) {
	if s.Redis.Address == "" {
		log.Printf("REDIS_ADDRESS not set; distributed locks disabled")
		return nil, nil
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     s.Redis.Address,
			Password: s.Redis.Password,
			DB:       0, // use default DB
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, s.Redis.Address)
			return client, nil
		}
		_ = client.Close()

		sleep := retrySleep(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, s.Redis.Address, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// RedisLocker hands out redislock locks keyed by name.
type RedisLocker struct {
	client *redislock.Client
	// RetryWait bounds how long Obtain keeps retrying; zero means one attempt.
	RetryWait time.Duration
}

func NewRedisLocker(client *redislock.Client, retryWait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, RetryWait: retryWait}
}

// Obtain returns redislock.ErrNotObtained when the lock is held elsewhere.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	opts := &redislock.Options{}
	if l.RetryWait > 0 {
		backoff := 100 * time.Millisecond
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(backoff), int(l.RetryWait/backoff))
	}

	lock, err := l.client.Obtain(ctx, "lock:"+key, ttl, opts)
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// the lock may already have expired; redislock reports ErrLockNotHeld then
		_ = lock.Release(context.Background())
	}, nil
}
