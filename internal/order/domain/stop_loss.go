package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StopLossWatch 一笔 BUY 订单的止损监控。
// 每个订单至多一个；移除后不可再次加入。
type StopLossWatch struct {
	OrderID         string          `json:"order_id"`
	Symbol          string          `json:"symbol,omitempty"`
	InstrumentToken int64           `json:"instrument_token"`
	Quantity        int64           `json:"quantity"`
	Product         string          `json:"product"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	Credential      Credential      `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewStopLossWatch 由下单请求与成功的订单记录生成监控
func NewStopLossWatch(req OrderRequest, record *OrderRecord) *StopLossWatch {
	return &StopLossWatch{
		OrderID:         record.OrderID,
		Symbol:          record.Symbol,
		InstrumentToken: record.InstrumentToken,
		Quantity:        record.Quantity,
		Product:         record.Product,
		StopLossPrice:   req.StopLossPrice,
		BuyPrice:        record.Price,
		Credential:      record.Credential,
		CreatedAt:       record.PlacedAt,
	}
}

// Triggered 最新价小于等于止损价即触发
func (w *StopLossWatch) Triggered(lastPrice decimal.Decimal) bool {
	return lastPrice.LessThanOrEqual(w.StopLossPrice)
}

// LiquidationRequest 平仓使用市价 SELL，当日有效
func (w *StopLossWatch) LiquidationRequest() PlacementRequest {
	return PlacementRequest{
		InstrumentToken: w.InstrumentToken,
		TransactionType: TransactionSell,
		Quantity:        w.Quantity,
		Price:           decimal.Zero,
		OrderType:       OrderTypeMarket,
		Product:         w.Product,
		Validity:        DefaultValidity,
		Tag:             StopLossTag,
		TriggerPrice:    decimal.Zero,
	}
}

// Clone 拷贝
func (w *StopLossWatch) Clone() *StopLossWatch {
	if w == nil {
		return nil
	}
	cp := *w
	return &cp
}
