// Package metrics 提供 Prometheus 指标集合与暴露端点
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/orderbridge/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 下单结果
	OrdersPlacedTotal prometheus.Counter
	OrdersFailedTotal prometheus.Counter
	// 被跳过的行，按原因区分（resolution / malformed / store）
	RowsSkippedTotal *prometheus.CounterVec
	// 批次
	BatchesTotal *prometheus.CounterVec

	// 行情查询
	PriceLookupsTotal        prometheus.Counter
	PriceLookupFailuresTotal prometheus.Counter

	// 止损
	StopLossWatches          prometheus.Gauge
	LiquidationsTotal        prometheus.Counter
	LiquidationFailuresTotal prometheus.Counter
	MonitorPassDuration      prometheus.Histogram
	MonitorPassesSkipped     prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		OrdersPlacedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the broker",
		}),
		OrdersFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "orders_failed_total",
			Help:      "Orders rejected by the broker or lost in transport",
		}),
		RowsSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "rows_skipped_total",
			Help:      "Ingested rows skipped before placement",
		}, []string{"reason"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "batches_total",
			Help:      "Order batches by outcome",
		}, []string{"outcome"}),

		PriceLookupsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "price_lookups_total",
			Help:      "Last-traded-price requests issued",
		}),
		PriceLookupFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "price_lookup_failures_total",
			Help:      "Last-traded-price requests that returned no price",
		}),

		StopLossWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "stop_loss_watches",
			Help:      "Active stop-loss watches",
		}),
		LiquidationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "liquidations_total",
			Help:      "Stop-loss liquidations placed",
		}),
		LiquidationFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "liquidation_failures_total",
			Help:      "Stop-loss liquidations that failed and will be retried",
		}),
		MonitorPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "monitor_pass_duration_seconds",
			Help:      "Stop-loss monitor pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		MonitorPassesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "monitor_passes_skipped_total",
			Help:      "Monitor passes skipped because another pass held the lock",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersPlacedTotal,
		m.OrdersFailedTotal,
		m.RowsSkippedTotal,
		m.BatchesTotal,
		m.PriceLookupsTotal,
		m.PriceLookupFailuresTotal,
		m.StopLossWatches,
		m.LiquidationsTotal,
		m.LiquidationFailuresTotal,
		m.MonitorPassDuration,
		m.MonitorPassesSkipped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}
	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// NewServer 创建 Prometheus HTTP 服务器，由调用方负责启动与关闭
func NewServer(port int, path string, gatherer prometheus.Gatherer) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
