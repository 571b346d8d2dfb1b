package domain

import "context"

// EventPublisher 事件发布者接口，发布失败不影响主流程
type EventPublisher interface {
	// PublishOrderPlaced 发布订单受理事件
	PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
	// PublishOrderFailed 发布下单失败事件
	PublishOrderFailed(ctx context.Context, event OrderFailedEvent) error
	// PublishStopLossExecuted 发布止损平仓事件
	PublishStopLossExecuted(ctx context.Context, event StopLossExecutedEvent) error
	// PublishStopLossLiquidationFailed 发布止损平仓失败事件
	PublishStopLossLiquidationFailed(ctx context.Context, event StopLossLiquidationFailedEvent) error
}
