// Package response 统一 HTTP 响应结构
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body 统一响应体
type Body struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Success 返回 200 与数据
func Success(c *gin.Context, data any) {
	SuccessWithStatus(c, http.StatusOK, data)
}

// SuccessWithStatus 返回指定状态码与数据（如 202 Accepted）
func SuccessWithStatus(c *gin.Context, status int, data any) {
	c.JSON(status, Body{Code: 0, Message: "ok", Data: data})
}

// ErrorWithStatus 返回错误
func ErrorWithStatus(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, Body{Code: status, Message: message, Detail: detail})
}
