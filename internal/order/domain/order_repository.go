package domain

import (
	"context"
)

// StoreCounts 存储计数
type StoreCounts struct {
	Orders   int `json:"orders"`
	Placed   int `json:"placed"`
	Failed   int `json:"failed"`
	Executed int `json:"executed"`
	Watches  int `json:"stop_loss_watches"`
}

// OrderStore 订单与止损监控存储。
// 所有读取都返回副本。
type OrderStore interface {
	// Save 保存新订单，id 已存在时返回 ErrOrderExists
	Save(ctx context.Context, order *OrderRecord) error
	// SaveWatch 保存止损监控
	SaveWatch(ctx context.Context, watch *StopLossWatch) error
	// Get 根据订单 ID 获取订单
	Get(ctx context.Context, orderID string) (*OrderRecord, error)
	// ListOrders 按下单时间排序
	ListOrders(ctx context.Context) []*OrderRecord
	// ListWatches 按创建时间排序
	ListWatches(ctx context.Context) []*StopLossWatch
	// RemoveWatch 移除并退役监控，不存在时返回 false
	RemoveWatch(ctx context.Context, orderID string) bool
	// MarkExecuted 写入止损执行结果
	MarkExecuted(ctx context.Context, orderID string, exec Execution) error
	// Counts 计数
	Counts(ctx context.Context) StoreCounts
}
