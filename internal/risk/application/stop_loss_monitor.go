package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	orderdomain "github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/internal/risk/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/metrics"
)

// ErrPassInProgress 已有巡检在执行
var ErrPassInProgress = errors.New("stop-loss pass already in progress")

// PassReport 一次巡检的统计
type PassReport struct {
	Watches             int           `json:"watches"`
	Instruments         int           `json:"instruments"`
	PriceLookups        int           `json:"price_lookups"`
	Priced              int           `json:"priced"`
	Triggered           int           `json:"triggered"`
	Executed            int           `json:"executed"`
	Failed              int           `json:"failed"`
	SkippedNoCredential int           `json:"skipped_no_credential"`
	SkippedNoPrice      int           `json:"skipped_no_price"`
	Duration            time.Duration `json:"duration"`
}

// MonitorOption 可选配置
type MonitorOption func(*StopLossMonitor)

// WithPassLock 启用分布式互斥
func WithPassLock(lock domain.PassLock) MonitorOption {
	return func(m *StopLossMonitor) { m.lock = lock }
}

// WithMonitorMetrics 记录巡检指标
func WithMonitorMetrics(mt *metrics.Metrics) MonitorOption {
	return func(m *StopLossMonitor) { m.metrics = mt }
}

// WithMonitorClock 替换时间源
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *StopLossMonitor) { m.now = now }
}

// StopLossMonitor 止损巡检，定期按合约批量查询最新价并对触发的监控市价平仓。
// 同一时刻至多一次巡检，保证每个监控至多平仓一次。
type StopLossMonitor struct {
	store     orderdomain.OrderStore
	broker    orderdomain.BrokerGateway
	publisher orderdomain.EventPublisher
	lock      domain.PassLock
	interval  time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// NewStopLossMonitor 创建止损巡检
func NewStopLossMonitor(
	store orderdomain.OrderStore,
	broker orderdomain.BrokerGateway,
	publisher orderdomain.EventPublisher,
	interval time.Duration,
	opts ...MonitorOption,
) *StopLossMonitor {
	m := &StopLossMonitor{
		store:     store,
		broker:    broker,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		logger:    logger.Module("stop_loss_monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start 启动巡检循环，ctx 取消后返回
func (m *StopLossMonitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("stop-loss monitor started", "interval", m.interval, "distributed_lock", m.lock != nil)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stop-loss monitor stopping")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *StopLossMonitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "stop-loss pass panicked", "panic", r)
		}
	}()

	report, err := m.RunPass(ctx)
	switch {
	case errors.Is(err, ErrPassInProgress):
		m.logger.DebugContext(ctx, "stop-loss pass skipped, another pass is running")
	case err != nil:
		m.logger.ErrorContext(ctx, "stop-loss pass failed", "error", err)
	case report.Watches > 0:
		m.logger.InfoContext(ctx, "stop-loss pass finished",
			"watches", report.Watches,
			"instruments", report.Instruments,
			"price_lookups", report.PriceLookups,
			"triggered", report.Triggered,
			"executed", report.Executed,
			"failed", report.Failed,
			"duration", report.Duration,
		)
	}
}

// RunPass 执行一次巡检
func (m *StopLossMonitor) RunPass(ctx context.Context) (*PassReport, error) {
	if !m.mu.TryLock() {
		m.skipped()
		return nil, ErrPassInProgress
	}
	defer m.mu.Unlock()

	if m.lock != nil {
		token, ok, err := m.lock.TryAcquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire pass lock: %w", err)
		}
		if !ok {
			m.skipped()
			return nil, ErrPassInProgress
		}
		defer func() {
			if err := m.lock.Release(context.WithoutCancel(ctx), token); err != nil {
				m.logger.WarnContext(ctx, "failed to release pass lock", "error", err)
			}
		}()
	}

	start := m.now()
	report := &PassReport{}
	defer func() {
		report.Duration = m.now().Sub(start)
		if m.metrics != nil {
			m.metrics.MonitorPassDuration.Observe(report.Duration.Seconds())
			m.metrics.StopLossWatches.Set(float64(m.store.Counts(ctx).Watches))
		}
	}()

	watches := m.store.ListWatches(ctx)
	report.Watches = len(watches)
	if len(watches) == 0 {
		return report, nil
	}

	groups := make(map[int64][]*orderdomain.StopLossWatch)
	tokens := make([]int64, 0)
	for _, w := range watches {
		if _, ok := groups[w.InstrumentToken]; !ok {
			tokens = append(tokens, w.InstrumentToken)
		}
		groups[w.InstrumentToken] = append(groups[w.InstrumentToken], w)
	}
	report.Instruments = len(tokens)

	prices, uncredentialed := m.lookupPrices(ctx, tokens, groups, report)
	report.Priced = len(prices)

	for _, token := range tokens {
		if _, skip := uncredentialed[token]; skip {
			continue
		}
		group := groups[token]
		price, ok := prices[token]
		if !ok {
			for _, w := range group {
				if w.Credential.Empty() {
					report.SkippedNoCredential++
				} else {
					report.SkippedNoPrice++
				}
			}
			continue
		}
		for _, w := range group {
			if w.Credential.Empty() {
				report.SkippedNoCredential++
				continue
			}
			if !w.Triggered(price) {
				continue
			}
			report.Triggered++
			m.logger.WarnContext(ctx, "stop-loss triggered",
				"order_id", w.OrderID,
				"instrument_token", token,
				"last_price", price.String(),
				"stop_loss_price", w.StopLossPrice.String(),
			)
			m.liquidate(ctx, w, price, report)
		}
	}

	return report, nil
}

// lookupPrices 每个合约选第一个非空凭证，按凭证分桶批量查询
func (m *StopLossMonitor) lookupPrices(
	ctx context.Context,
	tokens []int64,
	groups map[int64][]*orderdomain.StopLossWatch,
	report *PassReport,
) (map[int64]decimal.Decimal, map[int64]struct{}) {
	buckets := make(map[orderdomain.Credential][]int64)
	creds := make([]orderdomain.Credential, 0)
	uncredentialed := make(map[int64]struct{})

	for _, token := range tokens {
		var cred orderdomain.Credential
		for _, w := range groups[token] {
			if !w.Credential.Empty() {
				cred = w.Credential
				break
			}
		}
		if cred.Empty() {
			uncredentialed[token] = struct{}{}
			report.SkippedNoCredential += len(groups[token])
			m.logger.WarnContext(ctx, "no credential for instrument, skipping", "instrument_token", token)
			continue
		}
		if _, ok := buckets[cred]; !ok {
			creds = append(creds, cred)
		}
		buckets[cred] = append(buckets[cred], token)
	}

	prices := make(map[int64]decimal.Decimal, len(tokens))
	for _, cred := range creds {
		batch := buckets[cred]
		report.PriceLookups += len(batch)
		for token, price := range m.broker.GetLastPrices(ctx, batch, cred) {
			prices[token] = price
		}
	}
	return prices, uncredentialed
}

func (m *StopLossMonitor) liquidate(ctx context.Context, w *orderdomain.StopLossWatch, price decimal.Decimal, report *PassReport) {
	placement, err := m.broker.PlaceOrder(ctx, w.LiquidationRequest(), w.Credential)
	if err != nil {
		report.Failed++
		if m.metrics != nil {
			m.metrics.LiquidationFailuresTotal.Inc()
		}
		m.logger.ErrorContext(ctx, "stop-loss liquidation failed, will retry next pass",
			"order_id", w.OrderID,
			"instrument_token", w.InstrumentToken,
			"error", err,
		)
		if perr := m.publisher.PublishStopLossLiquidationFailed(ctx, orderdomain.StopLossLiquidationFailedEvent{
			OrderID:         w.OrderID,
			InstrumentToken: w.InstrumentToken,
			LastPrice:       price,
			Reason:          err.Error(),
			OccurredOn:      m.now(),
		}); perr != nil {
			m.logger.WarnContext(ctx, "failed to publish liquidation failure event", "order_id", w.OrderID, "error", perr)
		}
		return
	}

	execID := placement.OrderID
	if execID == "" {
		execID = "manual-" + uuid.NewString()
	}
	exec := orderdomain.Execution{
		Price:    price,
		Time:     m.now(),
		OrderID:  execID,
		Response: placement.Raw,
	}
	if err := m.store.MarkExecuted(ctx, w.OrderID, exec); err != nil {
		m.logger.ErrorContext(ctx, "failed to record stop-loss execution", "order_id", w.OrderID, "error", err)
	}
	if !m.store.RemoveWatch(ctx, w.OrderID) {
		m.logger.WarnContext(ctx, "stop-loss watch already removed", "order_id", w.OrderID)
	}

	report.Executed++
	if m.metrics != nil {
		m.metrics.LiquidationsTotal.Inc()
	}
	m.logger.InfoContext(ctx, "stop-loss executed",
		"order_id", w.OrderID,
		"execution_order_id", execID,
		"execution_price", price.String(),
	)

	if err := m.publisher.PublishStopLossExecuted(ctx, orderdomain.StopLossExecutedEvent{
		OrderID:          w.OrderID,
		InstrumentToken:  w.InstrumentToken,
		Quantity:         w.Quantity,
		StopLossPrice:    w.StopLossPrice,
		ExecutionPrice:   price,
		ExecutionOrderID: execID,
		OccurredOn:       exec.Time,
	}); err != nil {
		m.logger.WarnContext(ctx, "failed to publish stop-loss executed event", "order_id", w.OrderID, "error", err)
	}
}

func (m *StopLossMonitor) skipped() {
	if m.metrics != nil {
		m.metrics.MonitorPassesSkipped.Inc()
	}
}
