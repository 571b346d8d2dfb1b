// Package messaging 提供领域事件发布实现
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

// MessageSender 消息发送能力，由 mq.KafkaProducer 实现
type MessageSender interface {
	SendMessage(ctx context.Context, topic, key string, headers map[string]string, value any) error
}

// KafkaEventPublisher 将领域事件发布到 Kafka，同一订单的事件使用订单号作为分区键
type KafkaEventPublisher struct {
	sender  MessageSender
	topic   string
	service string
}

// NewKafkaEventPublisher 创建发布者
func NewKafkaEventPublisher(sender MessageSender, topic, service string) *KafkaEventPublisher {
	return &KafkaEventPublisher{sender: sender, topic: topic, service: service}
}

var _ domain.EventPublisher = (*KafkaEventPublisher)(nil)

// PublishOrderPlaced 发布订单受理事件
func (p *KafkaEventPublisher) PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	return p.publish(ctx, domain.EventOrderPlaced, event.OrderID, event)
}

// PublishOrderFailed 发布下单失败事件
func (p *KafkaEventPublisher) PublishOrderFailed(ctx context.Context, event domain.OrderFailedEvent) error {
	return p.publish(ctx, domain.EventOrderFailed, event.OrderID, event)
}

// PublishStopLossExecuted 发布止损平仓事件
func (p *KafkaEventPublisher) PublishStopLossExecuted(ctx context.Context, event domain.StopLossExecutedEvent) error {
	return p.publish(ctx, domain.EventStopLossExecuted, event.OrderID, event)
}

// PublishStopLossLiquidationFailed 发布止损平仓失败事件
func (p *KafkaEventPublisher) PublishStopLossLiquidationFailed(ctx context.Context, event domain.StopLossLiquidationFailedEvent) error {
	return p.publish(ctx, domain.EventStopLossLiquidationFailed, event.OrderID, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, key string, event any) error {
	headers := map[string]string{
		"event_id":    uuid.NewString(),
		"event_type":  eventType,
		"source":      p.service,
		"occurred_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	return p.sender.SendMessage(ctx, p.topic, key, headers, event)
}
