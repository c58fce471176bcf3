package handler

import (
	"errors"

	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Catalog    *CatalogHandler
	Design     *DesignHandler
	Generation *GenerationHandler
	Revision   *RevisionHandler
	BOM        *BOMHandler
	SSE        *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub) *Handlers {
	return &Handlers{
		Catalog:    NewCatalogHandler(svc.Catalog),
		Design:     NewDesignHandler(svc.Design),
		Generation: NewGenerationHandler(svc.Generation, svc.Dispatcher),
		Revision:   NewRevisionHandler(svc.Revision),
		BOM:        NewBOMHandler(svc.BOM),
		SSE:        NewSSEHandler(hub),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Accepted 异步任务已受理
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(202, Response{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 带数据的错误响应（如校验失败时返回完整结果）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 资源冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// respondError 服务层错误映射为响应码
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDesignNotFound),
		errors.Is(err, service.ErrPieceTypeNotFound),
		errors.Is(err, service.ErrRevisionNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, repository.ErrConflict):
		Conflict(c, err.Error())
	case errors.Is(err, repository.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidInput):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetUserName 从上下文获取用户名，未认证时为空
func GetUserName(c *gin.Context) string {
	if name, ok := c.Get("user_name"); ok {
		if s, ok := name.(string); ok && s != "" {
			return s
		}
	}
	return GetUserID(c)
}
