// Package domain 包含合约参考数据的领域模型
package domain

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Instrument 合约映射：交易代码 -> 券商合约编号
type Instrument struct {
	Symbol string `json:"symbol"`
	Token  int64  `json:"token"`
}

// RawInstrument 数据源中的一条原始记录，字段可能缺失或格式错误
type RawInstrument struct {
	Symbol any
	Token  any
}

// InstrumentSource 合约数据源
type InstrumentSource interface {
	// Name 数据源名称，用于日志
	Name() string
	// Fetch 读取全部原始记录；单条记录的格式问题不应返回错误
	Fetch(ctx context.Context) ([]RawInstrument, error)
}

// NormalizeSymbol 统一交易代码格式：去空白并转大写
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseToken 将任意数值表示解析为正整数合约编号
func ParseToken(v any) (int64, bool) {
	var token int64
	switch t := v.(type) {
	case int:
		token = int64(t)
	case int32:
		token = int64(t)
	case int64:
		token = t
	case uint32:
		token = int64(t)
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 {
			return 0, false
		}
		token = int64(t)
	case json.Number:
		return ParseToken(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, false
			}
			return ParseToken(f)
		}
		token = n
	default:
		return 0, false
	}
	if token <= 0 {
		return 0, false
	}
	return token, true
}
