package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

// 批量指令支持的列
const (
	colSymbol            = "symbol"
	colInstrumentToken   = "instrument_token"
	colTransactionType   = "transaction_type"
	colQuantity          = "quantity"
	colPrice             = "price"
	colOrderType         = "order_type"
	colProduct           = "product"
	colValidity          = "validity"
	colTag               = "tag"
	colDisclosedQuantity = "disclosed_quantity"
	colTriggerPrice      = "trigger_price"
	colIsAMO             = "is_amo"
	colStopLossPrice     = "stop_loss_price"
)

type row map[string]any

var (
	errIntegerRange = errors.New("integer out of int64 range")

	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// ParseRow 将一行原始数据解析为下单请求并补齐默认值。
// 列名忽略大小写与首尾空白；数值列格式错误、数量不为正、价格为负
// 或方向、订单类型不受支持时返回 ErrMalformedRow。
// instrument_token 缺失或非正整数时保持为 0，由调用方按代码解析；
// 超出 int64 范围的整数按格式错误处理。
func ParseRow(raw map[string]any) (domain.OrderRequest, error) {
	r := make(row, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		r[key] = v
	}

	req := domain.OrderRequest{
		Symbol:          r.str(colSymbol),
		TransactionType: domain.TransactionType(strings.ToUpper(r.str(colTransactionType))),
		OrderType:       domain.OrderType(strings.ToUpper(r.str(colOrderType))),
		Product:         strings.ToUpper(r.str(colProduct)),
		Validity:        strings.ToUpper(r.str(colValidity)),
		Tag:             r.str(colTag),
	}
	token, ok, err := r.integer(colInstrumentToken)
	if errors.Is(err, errIntegerRange) {
		return req, err
	}
	if err == nil && ok && token > 0 {
		req.InstrumentToken = token
	}

	if req.Quantity, err = r.integerOr(colQuantity, 1); err != nil {
		return req, err
	}
	if req.DisclosedQuantity, err = r.integerOr(colDisclosedQuantity, 0); err != nil {
		return req, err
	}
	if req.Price, err = r.decimal(colPrice); err != nil {
		return req, err
	}
	if req.TriggerPrice, err = r.decimal(colTriggerPrice); err != nil {
		return req, err
	}
	if req.StopLossPrice, err = r.decimal(colStopLossPrice); err != nil {
		return req, err
	}
	if req.IsAMO, err = r.boolean(colIsAMO); err != nil {
		return req, err
	}

	if req.TransactionType == "" {
		req.TransactionType = domain.TransactionBuy
	}
	if req.OrderType == "" {
		req.OrderType = domain.OrderTypeMarket
	}
	if req.Product == "" {
		req.Product = domain.DefaultProduct
	}
	if req.Validity == "" {
		req.Validity = domain.DefaultValidity
	}
	if req.Tag == "" {
		req.Tag = domain.DefaultTag
	}

	return req, validate(req)
}

func validate(req domain.OrderRequest) error {
	if !req.TransactionType.Valid() {
		return fmt.Errorf("%w: unsupported transaction_type %q", domain.ErrMalformedRow, req.TransactionType)
	}
	switch req.OrderType {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeSL, domain.OrderTypeSLM:
	default:
		return fmt.Errorf("%w: unsupported order_type %q", domain.ErrMalformedRow, req.OrderType)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrMalformedRow, req.Quantity)
	}
	if req.DisclosedQuantity < 0 {
		return fmt.Errorf("%w: disclosed_quantity must not be negative", domain.ErrMalformedRow)
	}
	if req.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", domain.ErrMalformedRow)
	}
	if req.TriggerPrice.IsNegative() {
		return fmt.Errorf("%w: trigger_price must not be negative", domain.ErrMalformedRow)
	}
	return nil
}

func (r row) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (r row) integer(key string) (int64, bool, error) {
	s := r.str(key)
	if s == "" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, false, fmt.Errorf("%w: column %s: %q is not an integer", domain.ErrMalformedRow, key, s)
	}
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return 0, false, fmt.Errorf("%w: column %s: %q: %w", domain.ErrMalformedRow, key, s, errIntegerRange)
	}
	return d.IntPart(), true, nil
}

func (r row) integerOr(key string, def int64) (int64, error) {
	n, ok, err := r.integer(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return n, nil
}

func (r row) decimal(key string) (decimal.Decimal, error) {
	s := r.str(key)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: column %s: %q is not a number", domain.ErrMalformedRow, key, s)
	}
	return d, nil
}

func (r row) boolean(key string) (bool, error) {
	s := strings.ToLower(r.str(key))
	switch s {
	case "", "false", "0", "no", "n":
		return false, nil
	case "true", "1", "yes", "y":
		return true, nil
	default:
		return false, fmt.Errorf("%w: column %s: %q is not a boolean", domain.ErrMalformedRow, key, s)
	}
}
