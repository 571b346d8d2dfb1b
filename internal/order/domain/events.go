package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 事件类型，作为 Kafka 消息头 event_type
const (
	EventOrderPlaced               = "OrderPlaced"
	EventOrderFailed               = "OrderFailed"
	EventStopLossExecuted          = "StopLossExecuted"
	EventStopLossLiquidationFailed = "StopLossLiquidationFailed"
)

// OrderPlacedEvent 订单已被券商受理
type OrderPlacedEvent struct {
	BatchID         string          `json:"batch_id"`
	OrderID         string          `json:"order_id"`
	Symbol          string          `json:"symbol,omitempty"`
	InstrumentToken int64           `json:"instrument_token"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	OccurredOn      time.Time       `json:"occurred_on"`
}

// OrderFailedEvent 下单失败
type OrderFailedEvent struct {
	BatchID         string    `json:"batch_id"`
	OrderID         string    `json:"order_id"`
	Symbol          string    `json:"symbol,omitempty"`
	InstrumentToken int64     `json:"instrument_token"`
	Reason          string    `json:"reason"`
	OccurredOn      time.Time `json:"occurred_on"`
}

// StopLossExecutedEvent 止损平仓成功
type StopLossExecutedEvent struct {
	OrderID          string          `json:"order_id"`
	InstrumentToken  int64           `json:"instrument_token"`
	Quantity         int64           `json:"quantity"`
	StopLossPrice    decimal.Decimal `json:"stop_loss_price"`
	ExecutionPrice   decimal.Decimal `json:"execution_price"`
	ExecutionOrderID string          `json:"execution_order_id"`
	OccurredOn       time.Time       `json:"occurred_on"`
}

// StopLossLiquidationFailedEvent 止损平仓失败，下个周期重试
type StopLossLiquidationFailedEvent struct {
	OrderID         string          `json:"order_id"`
	InstrumentToken int64           `json:"instrument_token"`
	LastPrice       decimal.Decimal `json:"last_price"`
	Reason          string          `json:"reason"`
	OccurredOn      time.Time       `json:"occurred_on"`
}
