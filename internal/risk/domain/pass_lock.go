// Package domain 包含止损巡检的领域接口
package domain

import "context"

// PassLock 跨进程的巡检互斥锁
type PassLock interface {
	// TryAcquire 非阻塞获取；ok 为 false 表示其他实例持有
	TryAcquire(ctx context.Context) (token string, ok bool, err error)
	// Release 仅释放由 token 标识的本次持有
	Release(ctx context.Context, token string) error
}
