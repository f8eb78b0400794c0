package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBlacklist remembers revoked tokens until they would have expired anyway.
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

type redisTokenBlacklist struct {
	client *redis.Client
}

// NewRedisTokenBlacklist stores revoked tokens under "blacklist:<token>" keys.
func NewRedisTokenBlacklist(client *redis.Client) TokenBlacklist {
	return &redisTokenBlacklist{client: client}
}

func (b *redisTokenBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, "blacklist:"+token, "true", ttl).Err()
}

func (b *redisTokenBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	err := b.client.Get(ctx, "blacklist:"+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type memoryTokenBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryTokenBlacklist is the single-process fallback used when Redis is not configured.
func NewMemoryTokenBlacklist() TokenBlacklist {
	return &memoryTokenBlacklist{entries: make(map[string]time.Time), now: time.Now}
}

func (b *memoryTokenBlacklist) Add(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for t, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, t)
		}
	}
	b.entries[token] = now.Add(ttl)
	return nil
}

func (b *memoryTokenBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[token]
	if !ok {
		return false, nil
	}
	if !exp.After(b.now()) {
		delete(b.entries, token)
		return false, nil
	}
	return true, nil
}
