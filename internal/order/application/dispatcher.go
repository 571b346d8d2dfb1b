package application

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/metrics"
)

// BatchDispatcher 有界队列 + 固定数量的 worker。
// 队列满时 Submit 立即返回 ErrQueueFull，不阻塞调用方。
type BatchDispatcher struct {
	ingestor *BatchIngestor
	queue    chan Batch
	workers  int
	history  int
	metrics  *metrics.Metrics
	logger   *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.RWMutex
	reports map[string]*BatchReport
	order   []string
}

// NewBatchDispatcher 创建分发器；m 可为空
func NewBatchDispatcher(ingestor *BatchIngestor, workers, queueSize, history int, m *metrics.Metrics) *BatchDispatcher {
	return &BatchDispatcher{
		ingestor: ingestor,
		queue:    make(chan Batch, max(queueSize, 1)),
		workers:  max(workers, 1),
		history:  max(history, 1),
		metrics:  m,
		logger:   logger.Module("batch_dispatcher"),
		reports:  make(map[string]*BatchReport),
	}
}

// Start 启动 worker，重复调用无效
func (d *BatchDispatcher) Start(ctx context.Context) {
	if d.running.Swap(true) {
		return
	}
	for n := range d.workers {
		d.wg.Add(1)
		go d.work(ctx, n)
	}
	d.logger.InfoContext(ctx, "batch dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Wait 等待所有 worker 退出
func (d *BatchDispatcher) Wait() {
	d.wg.Wait()
}

// Submit 提交批次并返回批次号
func (d *BatchDispatcher) Submit(cred domain.Credential, rows []map[string]any) (string, error) {
	batch := Batch{
		ID:          uuid.NewString(),
		Credential:  cred,
		Rows:        rows,
		SubmittedAt: time.Now(),
	}

	d.mu.Lock()
	d.store(&BatchReport{
		BatchID:     batch.ID,
		State:       BatchPending,
		SubmittedAt: batch.SubmittedAt,
		Total:       len(rows),
		Rows:        []RowOutcome{},
	})
	d.mu.Unlock()

	select {
	case d.queue <- batch:
		d.count("accepted")
		return batch.ID, nil
	default:
		d.mu.Lock()
		d.forget(batch.ID)
		d.mu.Unlock()
		d.count("rejected")
		return "", domain.ErrQueueFull
	}
}

// Report 查询批次报告副本
func (d *BatchDispatcher) Report(batchID string) (*BatchReport, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.reports[batchID]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

func (d *BatchDispatcher) work(ctx context.Context, n int) {
	defer d.wg.Done()
	for {
		select {
		case batch := <-d.queue:
			d.process(ctx, batch)
		case <-ctx.Done():
			d.logger.Info("batch worker stopped", "worker", n, "pending", len(d.queue))
			return
		}
	}
}

func (d *BatchDispatcher) process(ctx context.Context, batch Batch) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "batch processing panicked", "batch_id", batch.ID, "panic", r)
		}
	}()

	local := d.ingestor.newRunningReport(batch)
	d.update(batch.ID, func(r *BatchReport) {
		r.State = BatchRunning
		r.StartedAt = local.StartedAt
	})

	d.ingestor.run(ctx, batch, local, func(o RowOutcome) {
		d.update(batch.ID, func(r *BatchReport) { r.add(o) })
	})

	d.update(batch.ID, func(r *BatchReport) {
		r.State = BatchFinished
		r.FinishedAt = local.FinishedAt
	})
	d.count("completed")
}

func (d *BatchDispatcher) update(batchID string, fn func(*BatchReport)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.reports[batchID]; ok {
		fn(r)
	}
}

// store 保存报告并按 history 淘汰最早的已完成报告，调用方持有写锁
func (d *BatchDispatcher) store(r *BatchReport) {
	d.reports[r.BatchID] = r
	d.order = append(d.order, r.BatchID)

	for len(d.order) > d.history {
		evicted := false
		for idx, id := range d.order {
			if rep, ok := d.reports[id]; ok && rep.State == BatchFinished {
				delete(d.reports, id)
				d.order = append(d.order[:idx], d.order[idx+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// forget 移除未入队的报告，调用方持有写锁
func (d *BatchDispatcher) forget(batchID string) {
	delete(d.reports, batchID)
	for idx, id := range d.order {
		if id == batchID {
			d.order = append(d.order[:idx], d.order[idx+1:]...)
			return
		}
	}
}

func (d *BatchDispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	}
}
