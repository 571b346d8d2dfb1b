// Package ratelimit 提供按 key 的请求限流，支持进程内与 Redis 两种实现
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 限流器
type RateLimiter interface {
	// Allow 判断 key 在 limit 规则下是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则：每 Period 允许 Rate 次，突发 Burst
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// Result 限流结果
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// DefaultIdleTTL 进程内限流器空闲多久后可被回收
const DefaultIdleTTL = 10 * time.Minute

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter 进程内令牌桶，每个 key 一个 rate.Limiter。
// 空闲超过 idleTTL 且令牌已回满的 key 会被回收，重建后行为一致。
type LocalRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localEntry
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalRateLimiter 创建进程内限流器；idleTTL <= 0 时使用 DefaultIdleTTL
func NewLocalRateLimiter(idleTTL time.Duration) *LocalRateLimiter {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &LocalRateLimiter{
		limiters: make(map[string]*localEntry),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Allow 判断是否放行
func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit Limit) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	e, ok := l.limiters[key]
	if !ok {
		every := rate.Every(limit.Period / time.Duration(max(limit.Rate, 1)))
		e = &localEntry{limiter: rate.NewLimiter(every, max(limit.Burst, 1))}
		l.limiters[key] = e
	}
	e.lastSeen = now
	lim := e.limiter
	l.mu.Unlock()

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &Result{Allowed: false, RetryAfter: delay}, nil
	}
	return &Result{Allowed: true, Remaining: int(math.Max(0, lim.TokensAt(now)))}, nil
}

// Len 当前跟踪的 key 数量
func (l *LocalRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweep 回收空闲 key，每个 idleTTL 最多执行一次，调用方持有锁
func (l *LocalRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) < l.idleTTL {
			continue
		}
		if e.limiter.TokensAt(now) >= float64(e.limiter.Burst()) {
			delete(l.limiters, key)
		}
	}
}

// WindowCounter 固定窗口计数，由 cache.RedisCache 实现
type WindowCounter interface {
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

// RedisRateLimiter 基于 Redis 固定窗口计数，多实例共享配额
type RedisRateLimiter struct {
	counter WindowCounter
	now     func() time.Time
}

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(counter WindowCounter) *RedisRateLimiter {
	return &RedisRateLimiter{counter: counter, now: time.Now}
}

// Allow 判断是否放行，窗口内计数超过 Rate+Burst 时拒绝
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	if limit.Period <= 0 {
		return nil, fmt.Errorf("rate limit period must be positive")
	}
	now := r.now().UnixNano()
	period := int64(limit.Period)
	windowKey := fmt.Sprintf("%s:%d", key, now/period)

	count, err := r.counter.IncrWithExpire(ctx, windowKey, limit.Period)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowance := int64(limit.Rate + limit.Burst)
	if count > allowance {
		elapsed := time.Duration(now % period)
		return &Result{Allowed: false, RetryAfter: limit.Period - elapsed}, nil
	}
	return &Result{Allowed: true, Remaining: int(allowance - count)}, nil
}
