package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Credential 券商访问令牌。随记录按值传递，打印时脱敏。
type Credential string

// Empty 是否为空
func (c Credential) Empty() bool { return c == "" }

// String 脱敏输出
func (c Credential) String() string {
	if len(c) <= 4 {
		return "****"
	}
	return "****" + string(c[len(c)-4:])
}

// PlacementRequest 下单请求的线上字段
type PlacementRequest struct {
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
}

// Placement 券商受理结果，OrderID 可能为空
type Placement struct {
	OrderID string
	Raw     json.RawMessage
}

// BrokerGateway 券商下单与行情接口
type BrokerGateway interface {
	// PlaceOrder 提交订单；失败返回 *BrokerError
	PlaceOrder(ctx context.Context, req PlacementRequest, cred Credential) (*Placement, error)
	// GetLastPrices 批量查询最新价，查询失败的合约不出现在结果中
	GetLastPrices(ctx context.Context, tokens []int64, cred Credential) map[int64]decimal.Decimal
}

// BrokerErrorKind 券商错误分类
type BrokerErrorKind int

const (
	// KindTransport 网络、超时、DNS 等
	KindTransport BrokerErrorKind = iota + 1
	// KindRejection 券商返回了可识别的错误报文
	KindRejection
	// KindHTTPStatus 非 2xx 且无可识别的错误报文
	KindHTTPStatus
)

func (k BrokerErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRejection:
		return "rejection"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "unknown"
	}
}

// BrokerError 券商调用失败
type BrokerError struct {
	Kind       BrokerErrorKind
	StatusCode int
	Message    string
	Raw        json.RawMessage
	Err        error
}

func (e *BrokerError) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("broker transport failure: %v", e.Err)
	case KindHTTPStatus:
		return fmt.Sprintf("broker returned HTTP %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("broker rejected order (HTTP %d): %s", e.StatusCode, e.Message)
	}
}

// Unwrap 同时暴露分类哨兵与底层错误
func (e *BrokerError) Unwrap() []error {
	sentinel := ErrBrokerRejection
	if e.Kind == KindTransport {
		sentinel = ErrTransport
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// SymbolResolver 交易代码 -> 合约编号
type SymbolResolver interface {
	Resolve(symbol string) (int64, bool)
}
