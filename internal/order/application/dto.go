package application

import (
	"time"

	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

// Batch 一次批量下单提交
type Batch struct {
	ID          string
	Credential  domain.Credential
	Rows        []map[string]any
	SubmittedAt time.Time
}

// RowStatus 单行处理结果
type RowStatus string

const (
	RowPlaced  RowStatus = "placed"
	RowFailed  RowStatus = "failed"
	RowSkipped RowStatus = "skipped"
)

// BatchState 批次状态
type BatchState string

const (
	BatchPending  BatchState = "pending"
	BatchRunning  BatchState = "running"
	BatchFinished BatchState = "finished"
)

// RowOutcome 单行结果，Row 从 1 开始
type RowOutcome struct {
	Row     int       `json:"row"`
	OrderID string    `json:"order_id,omitempty"`
	Status  RowStatus `json:"status"`
	Reason  string    `json:"reason,omitempty"`
}

// BatchReport 批次报告
type BatchReport struct {
	BatchID     string       `json:"batch_id"`
	State       BatchState   `json:"state"`
	SubmittedAt time.Time    `json:"submitted_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Total       int          `json:"total"`
	Placed      int          `json:"placed"`
	Failed      int          `json:"failed"`
	Skipped     int          `json:"skipped"`
	Rows        []RowOutcome `json:"rows"`
}

func (r *BatchReport) add(o RowOutcome) {
	r.Rows = append(r.Rows, o)
	switch o.Status {
	case RowPlaced:
		r.Placed++
	case RowFailed:
		r.Failed++
	case RowSkipped:
		r.Skipped++
	}
}

func (r *BatchReport) clone() *BatchReport {
	cp := *r
	cp.Rows = append([]RowOutcome(nil), r.Rows...)
	return &cp
}

// OrdersView 订单查询结果
type OrdersView struct {
	Orders     []*domain.OrderRecord   `json:"orders"`
	StopLosses []*domain.StopLossWatch `json:"stop_losses"`
	Counts     domain.StoreCounts      `json:"counts"`
}

// Summary 汇总计数
type Summary struct {
	domain.StoreCounts
	Instruments int `json:"instruments"`
}
