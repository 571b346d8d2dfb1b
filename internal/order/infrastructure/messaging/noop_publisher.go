package messaging

import (
	"context"

	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

// NoopEventPublisher 未启用 Kafka 时使用
type NoopEventPublisher struct{}

var _ domain.EventPublisher = NoopEventPublisher{}

func (NoopEventPublisher) PublishOrderPlaced(context.Context, domain.OrderPlacedEvent) error {
	return nil
}

func (NoopEventPublisher) PublishOrderFailed(context.Context, domain.OrderFailedEvent) error {
	return nil
}

func (NoopEventPublisher) PublishStopLossExecuted(context.Context, domain.StopLossExecutedEvent) error {
	return nil
}

func (NoopEventPublisher) PublishStopLossLiquidationFailed(context.Context, domain.StopLossLiquidationFailedEvent) error {
	return nil
}
