// Package memory 提供进程内的订单存储实现
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

// OrderStore 内存订单存储。
// 一把读写锁同时保护订单与监控；退役集合保证监控至多被消费一次。
type OrderStore struct {
	mu      sync.RWMutex
	orders  map[string]*domain.OrderRecord
	watches map[string]*domain.StopLossWatch
	retired map[string]struct{}
}

// NewOrderStore 创建内存存储
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[string]*domain.OrderRecord),
		watches: make(map[string]*domain.StopLossWatch),
		retired: make(map[string]struct{}),
	}
}

var _ domain.OrderStore = (*OrderStore)(nil)

// Save 保存新订单
func (s *OrderStore) Save(_ context.Context, order *domain.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.OrderID]; ok {
		return domain.ErrOrderExists
	}
	s.orders[order.OrderID] = order.Clone()
	return nil
}

// SaveWatch 保存止损监控
func (s *OrderStore) SaveWatch(_ context.Context, watch *domain.StopLossWatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.retired[watch.OrderID]; ok {
		return domain.ErrWatchRetired
	}
	if _, ok := s.watches[watch.OrderID]; ok {
		return domain.ErrWatchExists
	}
	if _, ok := s.orders[watch.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	s.watches[watch.OrderID] = watch.Clone()
	return nil
}

// Get 根据订单 ID 获取订单副本
func (s *OrderStore) Get(_ context.Context, orderID string) (*domain.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListOrders 订单快照
func (s *OrderStore) ListOrders(_ context.Context) []*domain.OrderRecord {
	s.mu.RLock()
	out := make([]*domain.OrderRecord, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

// ListWatches 监控快照
func (s *OrderStore) ListWatches(_ context.Context) []*domain.StopLossWatch {
	s.mu.RLock()
	out := make([]*domain.StopLossWatch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, w.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RemoveWatch 移除并退役监控
func (s *OrderStore) RemoveWatch(_ context.Context, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.watches[orderID]; !ok {
		return false
	}
	delete(s.watches, orderID)
	s.retired[orderID] = struct{}{}
	return true
}

// MarkExecuted 写入止损执行结果，同一订单只能写一次
func (s *OrderStore) MarkExecuted(_ context.Context, orderID string, exec domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Execution != nil {
		return domain.ErrWatchRetired
	}
	exec.Response = append([]byte(nil), exec.Response...)
	order.Execution = &exec
	return nil
}

// Counts 计数
func (s *OrderStore) Counts(_ context.Context) domain.StoreCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := domain.StoreCounts{Orders: len(s.orders), Watches: len(s.watches)}
	for _, o := range s.orders {
		switch o.Status {
		case domain.OrderStatusPlaced:
			c.Placed++
		case domain.OrderStatusFailed:
			c.Failed++
		}
		if o.Execution != nil {
			c.Executed++
		}
	}
	return c
}
