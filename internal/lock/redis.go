package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only when it still holds our token, so a
// holder whose TTL expired can never release someone else's lock.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process pointing at the same server.
// Keys expire after TTL so a crashed holder cannot block allocation forever.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger *zap.Logger
}

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	Prefix string        // key namespace, default "claimpdf:lock:"
	TTL    time.Duration // lease length, default 2m
	Poll   time.Duration // retry interval, default 100ms
	Logger *zap.Logger   // release failures, default no-op
}

// NewRedis creates a Locker on an existing client.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "claimpdf:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Minute
	}
	if opts.Poll <= 0 {
		opts.Poll = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: opts.Prefix, ttl: opts.TTL, poll: opts.Poll, logger: opts.Logger}
}

// Acquire polls SET NX until it wins, wait elapses or ctx is done.
func (r *Redis) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	if wait <= 0 {
		wait = DefaultWait
	}
	k := r.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, waitErr(ctx, key)
			}
			return nil, fmt.Errorf("redis lock %q: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %q after %s", ErrTimeout, key, wait)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, waitErr(ctx, key)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.release(ctx, k, token) })
	}, nil
}

// release deletes k if it still holds token. A failure leaves the key to
// expire after the TTL, so it is logged rather than returned.
func (r *Redis) release(ctx context.Context, k, token string) {
	// Release must run even when the caller's ctx is already cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(rctx, r.client, []string{k}, token).Int()
	switch {
	case err != nil:
		r.logger.Error("lock release failed, key expires after ttl",
			zap.String("key", k), zap.Duration("ttl", r.ttl), zap.Error(err))
	case deleted == 0:
		r.logger.Warn("lock expired before release", zap.String("key", k), zap.Duration("ttl", r.ttl))
	}
}
