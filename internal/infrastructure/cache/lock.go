package cache

import (
	"context"
	"time"
)

const conversationLockPrefix = "companion-relay:lock:conversation:"

// ConversationLock serializes exchanges on one conversation across replicas with a redsync mutex.
// It satisfies relay.Serializer. Waiters block until the holder finishes or their
// context ends; the holder keeps the lock alive for as long as its exchange runs.
type ConversationLock struct {
	cache      *RedisCache
	ttl        time.Duration
	retryDelay time.Duration
}

// NewConversationLock creates a lock-based serializer. ttl bounds how long a crashed
// holder can block a conversation.
func NewConversationLock(cache *RedisCache, ttl time.Duration) *ConversationLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ConversationLock{cache: cache, ttl: ttl}
}

func (l *ConversationLock) Do(ctx context.Context, conversationID string, fn func(ctx context.Context)) error {
	var opts []LockOption
	if l.retryDelay > 0 {
		opts = append(opts, WithRetryDelay(l.retryDelay))
	}
	return WithLock(ctx, l.cache, conversationLockPrefix+conversationID, l.ttl, func() error {
		fn(ctx)
		return nil
	}, opts...)
}
