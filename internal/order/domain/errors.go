package domain

import "errors"

var (
	// ErrResolution 无法确定合约编号
	ErrResolution = errors.New("instrument could not be resolved")
	// ErrTransport 与券商通信失败
	ErrTransport = errors.New("broker transport failure")
	// ErrBrokerRejection 券商拒绝或返回非成功状态
	ErrBrokerRejection = errors.New("broker rejected request")
	// ErrMalformedRow 行数据格式错误
	ErrMalformedRow = errors.New("malformed order row")

	ErrOrderExists   = errors.New("order already exists")
	ErrOrderNotFound = errors.New("order not found")
	ErrWatchExists   = errors.New("stop-loss watch already exists")
	// ErrWatchRetired 监控已被消费，不可重新加入
	ErrWatchRetired = errors.New("stop-loss watch already retired")

	// ErrQueueFull 批量队列已满
	ErrQueueFull = errors.New("ingestion queue is full")
)
