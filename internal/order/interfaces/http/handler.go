package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/orderbridge/internal/order/application"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/response"
)

// BatchSubmitter 批量下单入口，由 application.BatchDispatcher 实现
type BatchSubmitter interface {
	Submit(cred domain.Credential, rows []map[string]any) (string, error)
	Report(batchID string) (*application.BatchReport, bool)
}

// OrderHandler HTTP 处理器
// 负责批量提交与订单、止损监控的查询
type OrderHandler struct {
	query   *application.OrderQueryService
	batches BatchSubmitter
}

// NewOrderHandler 创建 HTTP 处理器实例
func NewOrderHandler(query *application.OrderQueryService, batches BatchSubmitter) *OrderHandler {
	return &OrderHandler{query: query, batches: batches}
}

// RegisterRoutes 注册路由，submitGuards 仅作用于批次提交（如限流）
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup, submitGuards ...gin.HandlerFunc) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/summary", h.Summary)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.GET("/stop-losses", h.ListStopLosses)
		api.POST("/batches", append(submitGuards, h.SubmitBatch)...)
		api.GET("/batches/:id", h.GetBatch)
	}
}

// SubmitBatchRequest 批量下单请求
type SubmitBatchRequest struct {
	AccessToken string           `json:"access_token"`
	Rows        []map[string]any `json:"rows"`
}

// Health 健康检查
func (h *OrderHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Summary 汇总计数
func (h *OrderHandler) Summary(c *gin.Context) {
	response.Success(c, h.query.Summary(c.Request.Context()))
}

// ListOrders 订单与止损监控
func (h *OrderHandler) ListOrders(c *gin.Context) {
	response.Success(c, h.query.ListOrders(c.Request.Context()))
}

// GetOrder 获取订单详情
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id := c.Param("id")
	order, err := h.query.GetOrder(c.Request.Context(), id)
	if errors.Is(err, domain.ErrOrderNotFound) {
		response.ErrorWithStatus(c, http.StatusNotFound, "order not found", id)
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to get order", "order_id", id, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, order)
}

// ListStopLosses 当前止损监控
func (h *OrderHandler) ListStopLosses(c *gin.Context) {
	watches := h.query.ListStopLosses(c.Request.Context())
	response.Success(c, gin.H{
		"total":       len(watches),
		"stop_losses": watches,
	})
}

// SubmitBatch 提交批量下单，异步处理
func (h *OrderHandler) SubmitBatch(c *gin.Context) {
	var req SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "access_token is required", "")
		return
	}
	if len(req.Rows) == 0 {
		response.ErrorWithStatus(c, http.StatusBadRequest, "rows must not be empty", "")
		return
	}

	batchID, err := h.batches.Submit(domain.Credential(token), req.Rows)
	if errors.Is(err, domain.ErrQueueFull) {
		logger.Warn(c.Request.Context(), "Batch rejected, ingestion queue full", "rows", len(req.Rows))
		response.ErrorWithStatus(c, http.StatusTooManyRequests, "ingestion queue is full, retry later", "")
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "Failed to submit batch", "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}

	logger.Info(c.Request.Context(), "Batch accepted", "batch_id", batchID, "rows", len(req.Rows))
	response.SuccessWithStatus(c, http.StatusAccepted, gin.H{"batch_id": batchID})
}

// GetBatch 查询批次报告
func (h *OrderHandler) GetBatch(c *gin.Context) {
	id := c.Param("id")
	report, ok := h.batches.Report(id)
	if !ok {
		response.ErrorWithStatus(c, http.StatusNotFound, "batch not found", id)
		return
	}
	response.Success(c, report)
}
