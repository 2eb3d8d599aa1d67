package cache

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache holds the shared Redis client and the redsync instance built on it.
type RedisCache struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	log    zerolog.Logger
}

// NewRedisCache connects to Redis. redisURL may be a comma separated list of
// addresses or redis:// URLs for cluster deployments.
func NewRedisCache(ctx context.Context, redisURL string, log zerolog.Logger) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("Redis URL must be provided")
	}
	log = log.With().Str("component", "redis").Logger()

	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("Ignoring non-zero DB when using Redis Cluster configuration")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Int("addrs", len(opts.Addrs)).Msg("connected to redis")
	return &RedisCache{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		log:    log,
	}, nil
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
		if opts.DialTimeout == 0 {
			opts.DialTimeout = parsed.DialTimeout
		}
		if opts.PoolSize == 0 {
			opts.PoolSize = parsed.PoolSize
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no Redis addresses provided")
	}
	return opts, nil
}

// Client exposes the underlying client for registry use.
func (r *RedisCache) Client() redis.UniversalClient {
	return r.client
}

// HealthCheck pings Redis.
func (r *RedisCache) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// LockOption tunes WithLock.
type LockOption func(*lockOptions)

type lockOptions struct {
	retryDelay time.Duration
}

// WithRetryDelay sets a fixed pause between acquisition attempts.
func WithRetryDelay(d time.Duration) LockOption {
	return func(o *lockOptions) { o.retryDelay = d }
}

// WithLock runs fn while holding the named distributed lock. Acquisition retries
// until ctx is done, and the lock is extended every ttl/3 until fn returns.
func WithLock(ctx context.Context, cache *RedisCache, lockName string, ttl time.Duration, fn func() error, opts ...LockOption) error {
	var o lockOptions
	for _, opt := range opts {
		opt(&o)
	}

	mutexOpts := []redsync.Option{redsync.WithExpiry(ttl), redsync.WithTries(math.MaxInt32)}
	if o.retryDelay > 0 {
		mutexOpts = append(mutexOpts, redsync.WithRetryDelay(o.retryDelay))
	}
	mutex := cache.rs.NewMutex(lockName, mutexOpts...)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("acquire lock %s: %w", lockName, ctxErr)
		}
		return fmt.Errorf("acquire lock %s: %w", lockName, err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.keepAlive(context.WithoutCancel(ctx), mutex, ttl, stop)
	}()

	defer func() {
		close(stop)
		wg.Wait()
		// unlock must run even when ctx is already cancelled
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			cache.log.Error().Err(err).Str("lock", lockName).Msg("failed to unlock mutex")
		}
	}()

	return fn()
}

func (r *RedisCache) keepAlive(ctx context.Context, mutex *redsync.Mutex, ttl time.Duration, stop <-chan struct{}) {
	interval := ttl / 3
	if interval <= 0 {
		interval = ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := mutex.ExtendContext(ctx)
			if err != nil || !ok {
				r.log.Warn().Err(err).Str("lock", mutex.Name()).Msg("failed to extend lock")
			}
		}
	}
}
