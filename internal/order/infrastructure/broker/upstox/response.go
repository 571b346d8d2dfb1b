package upstox

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Response 券商统一响应信封
type Response[T any] struct {
	Status string          `json:"status"`
	Data   T               `json:"data"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// Failed 是否为可识别的错误报文
func (r Response[T]) Failed() bool {
	return r.Status == "error" || len(r.Errors) > 0
}

// Message 汇总错误信息
func (r Response[T]) Message() string {
	if len(r.Errors) == 0 {
		return "status " + r.Status
	}
	e := r.Errors[0]
	if e.ErrorCode == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// ResponseError 错误明细
type ResponseError struct {
	ErrorCode    string `json:"errorCode,omitempty"`
	Message      string `json:"message,omitempty"`
	PropertyPath string `json:"propertyPath,omitempty"`
}

// ResponsePlaceOrder 下单结果
type ResponsePlaceOrder struct {
	OrderID any `json:"order_id"`
}

// ID 订单号可能是字符串或数字
func (r ResponsePlaceOrder) ID() string {
	switch v := r.OrderID.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// ResponseLastPrice 单个合约的最新价
type ResponseLastPrice struct {
	LastPrice       *decimal.Decimal `json:"last_price"`
	InstrumentToken any              `json:"instrument_token,omitempty"`
}

// TokenString 报价中的 instrument_token，可能是数字或 instrument key
func (r ResponseLastPrice) TokenString() string {
	switch v := r.InstrumentToken.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// placeOrderPayload 下单请求体
type placeOrderPayload struct {
	Quantity          int64       `json:"quantity"`
	Product           string      `json:"product"`
	Validity          string      `json:"validity"`
	Price             json.Number `json:"price"`
	Tag               string      `json:"tag"`
	InstrumentToken   int64       `json:"instrument_token"`
	OrderType         string      `json:"order_type"`
	TransactionType   string      `json:"transaction_type"`
	DisclosedQuantity int64       `json:"disclosed_quantity"`
	TriggerPrice      json.Number `json:"trigger_price"`
	IsAMO             bool        `json:"is_amo"`
}
