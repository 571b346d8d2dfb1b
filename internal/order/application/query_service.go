package application

import (
	"context"

	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

// InstrumentCounter 提供已加载合约数量
type InstrumentCounter interface {
	Count() int
}

// OrderQueryService 订单只读查询
type OrderQueryService struct {
	store       domain.OrderStore
	instruments InstrumentCounter
}

// NewOrderQueryService 创建查询服务
func NewOrderQueryService(store domain.OrderStore, instruments InstrumentCounter) *OrderQueryService {
	return &OrderQueryService{store: store, instruments: instruments}
}

// Summary 订单、监控与合约计数
func (s *OrderQueryService) Summary(ctx context.Context) Summary {
	sum := Summary{StoreCounts: s.store.Counts(ctx)}
	if s.instruments != nil {
		sum.Instruments = s.instruments.Count()
	}
	return sum
}

// ListOrders 全部订单与当前止损监控
func (s *OrderQueryService) ListOrders(ctx context.Context) OrdersView {
	return OrdersView{
		Orders:     s.store.ListOrders(ctx),
		StopLosses: s.store.ListWatches(ctx),
		Counts:     s.store.Counts(ctx),
	}
}

// GetOrder 按订单号查询
func (s *OrderQueryService) GetOrder(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	return s.store.Get(ctx, orderID)
}

// ListStopLosses 当前止损监控
func (s *OrderQueryService) ListStopLosses(ctx context.Context) []*domain.StopLossWatch {
	return s.store.ListWatches(ctx)
}
