// Package domain 包含订单与止损监控的领域模型
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 本地订单记录状态
type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "placed"
	OrderStatusFailed OrderStatus = "failed"
)

// TransactionType 买卖方向
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// Valid 是否为支持的方向
func (t TransactionType) Valid() bool {
	return t == TransactionBuy || t == TransactionSell
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeSL     OrderType = "SL"
	OrderTypeSLM    OrderType = "SL-M"
)

// 下单默认值
const (
	DefaultProduct  = "I"
	DefaultValidity = "DAY"
	DefaultTag      = "excel-order"
	StopLossTag     = "stop-loss-order"
)

// OrderRequest 一行批量指令解析后的下单请求
type OrderRequest struct {
	Symbol            string
	InstrumentToken   int64
	TransactionType   TransactionType
	Quantity          int64
	Price             decimal.Decimal
	OrderType         OrderType
	Product           string
	Validity          string
	Tag               string
	DisclosedQuantity int64
	TriggerPrice      decimal.Decimal
	IsAMO             bool
	// 仅对 BUY 有意义，<= 0 表示不设止损
	StopLossPrice decimal.Decimal
}

// HasStopLoss 是否需要在成交后建立止损监控
func (r OrderRequest) HasStopLoss() bool {
	return r.TransactionType == TransactionBuy && r.StopLossPrice.IsPositive()
}

// Placement 转换为券商下单请求
func (r OrderRequest) Placement() PlacementRequest {
	return PlacementRequest{
		InstrumentToken:   r.InstrumentToken,
		TransactionType:   r.TransactionType,
		Quantity:          r.Quantity,
		Price:             r.Price,
		OrderType:         r.OrderType,
		Product:           r.Product,
		Validity:          r.Validity,
		Tag:               r.Tag,
		DisclosedQuantity: r.DisclosedQuantity,
		TriggerPrice:      r.TriggerPrice,
		IsAMO:             r.IsAMO,
	}
}

// Execution 止损平仓的执行结果
type Execution struct {
	Price    decimal.Decimal `json:"execution_price"`
	Time     time.Time       `json:"execution_time"`
	OrderID  string          `json:"execution_order_id"`
	Response json.RawMessage `json:"execution_response,omitempty"`
}

// OrderRecord 已提交（成功或失败）的订单记录。
// 创建后只允许写入一次 Execution，不会被删除。
type OrderRecord struct {
	OrderID         string          `json:"order_id"`
	Symbol          string          `json:"symbol,omitempty"`
	InstrumentToken int64           `json:"instrument_token"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	OrderType       OrderType       `json:"order_type"`
	Product         string          `json:"product"`
	Validity        string          `json:"validity"`
	Tag             string          `json:"tag"`
	PlacedAt        time.Time       `json:"placed_at"`
	Status          OrderStatus     `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Response        json.RawMessage `json:"response,omitempty"`
	Credential      Credential      `json:"-"`
	Execution       *Execution      `json:"execution,omitempty"`
}

// Executed 是否已被止损平仓
func (o *OrderRecord) Executed() bool {
	return o.Execution != nil
}

// Clone 深拷贝
func (o *OrderRecord) Clone() *OrderRecord {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Response = cloneRaw(o.Response)
	if o.Execution != nil {
		exec := *o.Execution
		exec.Response = cloneRaw(o.Execution.Response)
		cp.Execution = &exec
	}
	return &cp
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
