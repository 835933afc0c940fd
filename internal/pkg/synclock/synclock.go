package synclock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked 另一个发布流程正持有锁。
var ErrLocked = errors.New("publish lock is held by another run")

// releaseScript 仅当锁仍归当前持有者时删除。
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Locker 基于 Redis SET NX 的互斥锁，保证同一时刻只有一个发布流程。
type Locker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// Lease 一次成功加锁的凭证。
type Lease struct {
	locker *Locker
	token  string
}

// NewLocker 创建发布互斥锁。
func NewLocker(rdb *redis.Client, key string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if key == "" {
		key = "mirapuri:lock:publish"
	}
	return &Locker{rdb: rdb, key: key, ttl: ttl}
}

// Acquire 尝试加锁，锁已被占用时返回 ErrLocked。
func (l *Locker) Acquire(ctx context.Context) (*Lease, error) {
	if l == nil || l.rdb == nil {
		return nil, errors.New("redis client is not initialized")
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock setnx: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lease{locker: l, token: token}, nil
}

// Release 释放锁。锁已过期或被他人持有时不做任何事。
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.locker.rdb, []string{l.locker.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lock release: %w", err)
	}
	return nil
}
