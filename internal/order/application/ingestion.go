package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/metrics"
	"golang.org/x/time/rate"
)

// IngestorOption 可选配置
type IngestorOption func(*BatchIngestor)

// WithRateLimit 限制下单速率，ordersPerSecond <= 0 表示不限速
func WithRateLimit(ordersPerSecond float64, burst int) IngestorOption {
	return func(i *BatchIngestor) {
		if ordersPerSecond <= 0 {
			i.limiter = nil
			return
		}
		i.limiter = rate.NewLimiter(rate.Limit(ordersPerSecond), max(burst, 1))
	}
}

// WithIngestorMetrics 记录下单指标
func WithIngestorMetrics(m *metrics.Metrics) IngestorOption {
	return func(i *BatchIngestor) { i.metrics = m }
}

// WithClock 替换时间源
func WithClock(now func() time.Time) IngestorOption {
	return func(i *BatchIngestor) { i.now = now }
}

// BatchIngestor 逐行解析、解析合约、下单并记录。
// 行之间相互隔离，任何一行失败都不会中断批次。
type BatchIngestor struct {
	resolver  domain.SymbolResolver
	broker    domain.BrokerGateway
	store     domain.OrderStore
	publisher domain.EventPublisher
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// NewBatchIngestor 创建批量下单处理器
func NewBatchIngestor(resolver domain.SymbolResolver, broker domain.BrokerGateway, store domain.OrderStore, publisher domain.EventPublisher, opts ...IngestorOption) *BatchIngestor {
	i := &BatchIngestor{
		resolver:  resolver,
		broker:    broker,
		store:     store,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.Module("batch_ingestor"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Process 按顺序处理批次中的每一行
func (i *BatchIngestor) Process(ctx context.Context, batch Batch) *BatchReport {
	report := i.newRunningReport(batch)
	i.run(ctx, batch, report, func(RowOutcome) {})
	return report
}

func (i *BatchIngestor) newRunningReport(batch Batch) *BatchReport {
	started := i.now()
	return &BatchReport{
		BatchID:     batch.ID,
		State:       BatchRunning,
		SubmittedAt: batch.SubmittedAt,
		StartedAt:   &started,
		Total:       len(batch.Rows),
		Rows:        make([]RowOutcome, 0, len(batch.Rows)),
	}
}

// run 逐行处理，每完成一行回调一次
func (i *BatchIngestor) run(ctx context.Context, batch Batch, report *BatchReport, onRow func(RowOutcome)) {
	i.logger.InfoContext(ctx, "processing order batch", "batch_id", batch.ID, "rows", len(batch.Rows))

	for idx, raw := range batch.Rows {
		outcome := i.processRow(ctx, batch, idx+1, raw)
		report.add(outcome)
		onRow(outcome)
	}

	finished := i.now()
	report.FinishedAt = &finished
	report.State = BatchFinished

	i.logger.InfoContext(ctx, "order batch finished",
		"batch_id", batch.ID,
		"placed", report.Placed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", finished.Sub(*report.StartedAt),
	)
}

func (i *BatchIngestor) processRow(ctx context.Context, batch Batch, index int, raw map[string]any) RowOutcome {
	outcome := RowOutcome{Row: index}

	req, err := ParseRow(raw)
	if err != nil {
		return i.skip(ctx, batch, outcome, "malformed", err)
	}

	if req.InstrumentToken <= 0 {
		token, ok := i.resolver.Resolve(req.Symbol)
		if !ok {
			return i.skip(ctx, batch, outcome, "resolution", fmt.Errorf("%w: symbol %q", domain.ErrResolution, req.Symbol))
		}
		req.InstrumentToken = token
	}

	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return i.skip(ctx, batch, outcome, "cancelled", err)
		}
	}

	placement, placeErr := i.broker.PlaceOrder(ctx, req.Placement(), batch.Credential)
	record := &domain.OrderRecord{
		Symbol:          strings.ToUpper(req.Symbol),
		InstrumentToken: req.InstrumentToken,
		TransactionType: req.TransactionType,
		Quantity:        req.Quantity,
		Price:           req.Price,
		OrderType:       req.OrderType,
		Product:         req.Product,
		Validity:        req.Validity,
		Tag:             req.Tag,
		PlacedAt:        i.now(),
		Credential:      batch.Credential,
	}

	if placeErr != nil {
		record.OrderID = fallbackOrderID()
		record.Status = domain.OrderStatusFailed
		record.FailureReason = placeErr.Error()
		var be *domain.BrokerError
		if errors.As(placeErr, &be) {
			record.Response = be.Raw
		}
	} else {
		record.OrderID = placement.OrderID
		if record.OrderID == "" {
			record.OrderID = fallbackOrderID()
		}
		record.Status = domain.OrderStatusPlaced
		record.Response = placement.Raw
	}
	outcome.OrderID = record.OrderID

	if err := i.store.Save(ctx, record); err != nil {
		i.logger.ErrorContext(ctx, "failed to record order", "batch_id", batch.ID, "row", index, "order_id", record.OrderID, "error", err)
		outcome.Reason = "not recorded: " + err.Error()
	}

	if placeErr != nil {
		return i.fail(ctx, batch, outcome, record, placeErr)
	}
	return i.placed(ctx, batch, outcome, req, record)
}

func (i *BatchIngestor) placed(ctx context.Context, batch Batch, outcome RowOutcome, req domain.OrderRequest, record *domain.OrderRecord) RowOutcome {
	outcome.Status = RowPlaced
	if i.metrics != nil {
		i.metrics.OrdersPlacedTotal.Inc()
	}
	i.logger.InfoContext(ctx, "order placed",
		"batch_id", batch.ID,
		"row", outcome.Row,
		"order_id", record.OrderID,
		"instrument_token", record.InstrumentToken,
		"transaction_type", record.TransactionType,
		"quantity", record.Quantity,
	)

	if outcome.Reason == "" && req.HasStopLoss() {
		if err := i.store.SaveWatch(ctx, domain.NewStopLossWatch(req, record)); err != nil {
			i.logger.ErrorContext(ctx, "failed to register stop-loss watch", "order_id", record.OrderID, "error", err)
			outcome.Reason = "stop-loss not registered: " + err.Error()
		} else {
			if i.metrics != nil {
				i.metrics.StopLossWatches.Inc()
			}
			i.logger.InfoContext(ctx, "stop-loss watch registered",
				"order_id", record.OrderID,
				"stop_loss_price", req.StopLossPrice.String(),
			)
		}
	}

	if err := i.publisher.PublishOrderPlaced(ctx, domain.OrderPlacedEvent{
		BatchID:         batch.ID,
		OrderID:         record.OrderID,
		Symbol:          record.Symbol,
		InstrumentToken: record.InstrumentToken,
		TransactionType: record.TransactionType,
		Quantity:        record.Quantity,
		Price:           record.Price,
		StopLossPrice:   req.StopLossPrice,
		OccurredOn:      record.PlacedAt,
	}); err != nil {
		i.logger.WarnContext(ctx, "failed to publish order placed event", "order_id", record.OrderID, "error", err)
	}
	return outcome
}

func (i *BatchIngestor) fail(ctx context.Context, batch Batch, outcome RowOutcome, record *domain.OrderRecord, cause error) RowOutcome {
	outcome.Status = RowFailed
	if outcome.Reason == "" {
		outcome.Reason = cause.Error()
	}
	if i.metrics != nil {
		i.metrics.OrdersFailedTotal.Inc()
	}
	i.logger.WarnContext(ctx, "order placement failed",
		"batch_id", batch.ID,
		"row", outcome.Row,
		"order_id", record.OrderID,
		"instrument_token", record.InstrumentToken,
		"error", cause,
	)

	if err := i.publisher.PublishOrderFailed(ctx, domain.OrderFailedEvent{
		BatchID:         batch.ID,
		OrderID:         record.OrderID,
		Symbol:          record.Symbol,
		InstrumentToken: record.InstrumentToken,
		Reason:          cause.Error(),
		OccurredOn:      record.PlacedAt,
	}); err != nil {
		i.logger.WarnContext(ctx, "failed to publish order failed event", "order_id", record.OrderID, "error", err)
	}
	return outcome
}

func (i *BatchIngestor) skip(ctx context.Context, batch Batch, outcome RowOutcome, reason string, cause error) RowOutcome {
	outcome.Status = RowSkipped
	outcome.Reason = cause.Error()
	if i.metrics != nil {
		i.metrics.RowsSkippedTotal.WithLabelValues(reason).Inc()
	}
	i.logger.WarnContext(ctx, "order row skipped", "batch_id", batch.ID, "row", outcome.Row, "reason", reason, "error", cause)
	return outcome
}

func fallbackOrderID() string {
	return "manual-" + uuid.NewString()
}
