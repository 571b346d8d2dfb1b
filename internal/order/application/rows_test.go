package application

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

func TestParseRowDefaults(t *testing.T) {
	req, err := ParseRow(map[string]any{"Symbol": " abc "})
	require.NoError(t, err)

	assert.Equal(t, "abc", req.Symbol)
	assert.Equal(t, int64(0), req.InstrumentToken)
	assert.Equal(t, domain.TransactionBuy, req.TransactionType)
	assert.Equal(t, domain.OrderTypeMarket, req.OrderType)
	assert.Equal(t, "I", req.Product)
	assert.Equal(t, "DAY", req.Validity)
	assert.Equal(t, "excel-order", req.Tag)
	assert.Equal(t, int64(1), req.Quantity)
	assert.True(t, req.Price.IsZero())
	assert.True(t, req.StopLossPrice.IsZero())
	assert.False(t, req.IsAMO)
	assert.False(t, req.HasStopLoss())
}

func TestParseRowFullRow(t *testing.T) {
	req, err := ParseRow(map[string]any{
		" Instrument_Token ": json.Number("1001"),
		"transaction_type":   "buy",
		"QUANTITY":           float64(10),
		"price":              "100.50",
		"order type":         "limit",
		"product":            "d",
		"validity":           "ioc",
		"tag":                "desk-7",
		"disclosed_quantity": "2",
		"trigger_price":      0,
		"is_amo":             "yes",
		"Stop Loss Price":    95,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1001), req.InstrumentToken)
	assert.Equal(t, int64(10), req.Quantity)
	assert.True(t, req.Price.Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, domain.OrderTypeLimit, req.OrderType)
	assert.Equal(t, "D", req.Product)
	assert.Equal(t, "IOC", req.Validity)
	assert.Equal(t, "desk-7", req.Tag)
	assert.Equal(t, int64(2), req.DisclosedQuantity)
	assert.True(t, req.IsAMO)
	assert.True(t, req.StopLossPrice.Equal(decimal.NewFromInt(95)))
	assert.True(t, req.HasStopLoss())
}

func TestParseRowInstrumentTokenFallsBackToSymbol(t *testing.T) {
	for _, v := range []any{"", "abc", 0, -5, nil} {
		req, err := ParseRow(map[string]any{"symbol": "ABC", "instrument_token": v})
		require.NoError(t, err, "%v", v)
		assert.Equal(t, int64(0), req.InstrumentToken, "%v", v)
	}
}

func TestParseRowMalformed(t *testing.T) {
	cases := map[string]map[string]any{
		"quantity text":     {"symbol": "ABC", "quantity": "ten"},
		"quantity zero":     {"symbol": "ABC", "quantity": 0},
		"quantity fraction": {"symbol": "ABC", "quantity": "1.5"},
		"quantity overflow": {"symbol": "ABC", "quantity": "18446744073709551621"},
		"quantity huge":     {"symbol": "ABC", "quantity": "99999999999999999999"},
		"token overflow":    {"symbol": "ABC", "instrument_token": "18446744073709552617"},
		"disclosed huge":    {"symbol": "ABC", "disclosed_quantity": json.Number("1e30")},
		"negative price":    {"symbol": "ABC", "price": "-1"},
		"price text":        {"symbol": "ABC", "price": "n/a"},
		"stop loss text":    {"symbol": "ABC", "stop_loss_price": "low"},
		"side":              {"symbol": "ABC", "transaction_type": "HOLD"},
		"order type":        {"symbol": "ABC", "order_type": "ICEBERG"},
		"is_amo":            {"symbol": "ABC", "is_amo": "maybe"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRow(raw)
			require.ErrorIs(t, err, domain.ErrMalformedRow)
		})
	}
}

func TestParseRowLargeIntegersInRange(t *testing.T) {
	req, err := ParseRow(map[string]any{
		"instrument_token": "9223372036854775807",
		"quantity":         "1e3",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), req.InstrumentToken)
	assert.Equal(t, int64(1000), req.Quantity)
}

func TestParseRowSellStopLossIgnored(t *testing.T) {
	req, err := ParseRow(map[string]any{"symbol": "ABC", "transaction_type": "SELL", "stop_loss_price": 95})
	require.NoError(t, err)
	assert.False(t, req.HasStopLoss())
}
