// Package lock 提供基于 Redis 的巡检互斥锁
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/orderbridge/internal/risk/domain"
)

// Store 锁所需的 Redis 能力，由 cache.RedisCache 实现
type Store interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisPassLock SET NX PX 实现的租约锁。
// TTL 应小于巡检周期，进程崩溃后锁自动过期。
// 锁按实例划分：止损监控保存在各实例自己的内存中，只有相同 instance
// 的进程（如滚动发布时新旧进程重叠）会互斥，不同实例互不阻塞。
type RedisPassLock struct {
	store Store
	key   string
	ttl   time.Duration
}

var _ domain.PassLock = (*RedisPassLock)(nil)

// NewRedisPassLock 创建锁，instance 非空时作为 key 后缀
func NewRedisPassLock(store Store, key, instance string, ttl time.Duration) *RedisPassLock {
	if instance != "" {
		key = key + ":" + instance
	}
	return &RedisPassLock{store: store, key: key, ttl: ttl}
}

// Key 实际使用的 Redis key
func (l *RedisPassLock) Key() string {
	return l.key
}

// TryAcquire 尝试获取锁，返回本次持有的 token
func (l *RedisPassLock) TryAcquire(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return "", false, fmt.Errorf("redis SETNX %s: %w", l.key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release 仅当锁仍由 token 持有时删除
func (l *RedisPassLock) Release(ctx context.Context, token string) error {
	if _, err := l.store.DeleteIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("redis release %s: %w", l.key, err)
	}
	return nil
}
