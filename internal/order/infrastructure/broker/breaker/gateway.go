// Package breaker 为券商网关下单调用加熔断保护
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
)

// Config 熔断配置
type Config struct {
	// 连续失败次数达到该值时熔断
	ConsecutiveFailures uint32
	// 熔断后进入半开状态前的等待时间
	OpenTimeout time.Duration
}

// Gateway 包装下游网关。仅传输失败与非 2xx 计入失败，券商明确拒单不触发熔断。
// 熔断期间下单直接返回 KindTransport 错误，行情查询不受影响。
type Gateway struct {
	next   domain.BrokerGateway
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

var _ domain.BrokerGateway = (*Gateway)(nil)

// NewGateway 创建熔断网关
func NewGateway(next domain.BrokerGateway, cfg Config) *Gateway {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	l := logger.Module("broker_breaker")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-place-order",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &Gateway{next: next, cb: cb, logger: l}
}

// PlaceOrder 经熔断器提交订单
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.PlacementRequest, cred domain.Credential) (*domain.Placement, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.next.PlaceOrder(ctx, req, cred)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &domain.BrokerError{Kind: domain.KindTransport, Err: err}
	}
	placement, _ := res.(*domain.Placement)
	return placement, err
}

// GetLastPrices 透传行情查询
func (g *Gateway) GetLastPrices(ctx context.Context, tokens []int64, cred domain.Credential) map[int64]decimal.Decimal {
	return g.next.GetLastPrices(ctx, tokens, cred)
}

// State 当前熔断状态
func (g *Gateway) State() gobreaker.State {
	return g.cb.State()
}

func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var be *domain.BrokerError
	if errors.As(err, &be) {
		return be.Kind == domain.KindRejection
	}
	return false
}
