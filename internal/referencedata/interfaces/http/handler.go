package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/orderbridge/internal/referencedata/application"
	"github.com/wyfcoding/orderbridge/internal/referencedata/domain"
	"github.com/wyfcoding/orderbridge/pkg/response"
)

// InstrumentHandler 合约映射查询接口
type InstrumentHandler struct {
	registry *application.Registry
}

// NewInstrumentHandler 创建 HTTP 处理器实例
func NewInstrumentHandler(registry *application.Registry) *InstrumentHandler {
	return &InstrumentHandler{registry: registry}
}

// RegisterRoutes 注册路由
func (h *InstrumentHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/v1/instruments", h.ListInstruments)
}

// ListInstruments 列出已加载的映射，?q= 按代码前缀过滤
func (h *InstrumentHandler) ListInstruments(c *gin.Context) {
	prefix := domain.NormalizeSymbol(c.Query("q"))
	all := h.registry.List()

	items := all
	if prefix != "" {
		items = make([]domain.Instrument, 0)
		for _, inst := range all {
			if strings.HasPrefix(inst.Symbol, prefix) {
				items = append(items, inst)
			}
		}
	}

	response.Success(c, gin.H{
		"total":       len(items),
		"instruments": items,
	})
}
