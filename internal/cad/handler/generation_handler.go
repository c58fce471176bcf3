package handler

import (
	"errors"

	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/gin-gonic/gin"
)

// GenerationHandler 生成与异步任务
type GenerationHandler struct {
	svc        *service.GenerationService
	dispatcher *service.Dispatcher
}

func NewGenerationHandler(svc *service.GenerationService, dispatcher *service.Dispatcher) *GenerationHandler {
	return &GenerationHandler{svc: svc, dispatcher: dispatcher}
}

type generateBody struct {
	Parameters  map[string]any `json:"parameters" binding:"required"`
	Description string         `json:"description"`
}

// Generate POST /designs/:id/generate[?async=1]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req := &service.GenerationRequest{
		DesignID:    c.Param("id"),
		Parameters:  body.Parameters,
		Description: body.Description,
		GeneratedBy: GetUserName(c),
	}

	if async := c.Query("async"); async == "1" || async == "true" {
		job, err := h.dispatcher.Submit(req)
		if errors.Is(err, service.ErrDispatcherClosed) {
			Error(c, 50300, "服务正在关闭")
			return
		}
		if err != nil {
			InternalError(c, err.Error())
			return
		}
		Accepted(c, job)
		return
	}

	resp, err := h.svc.Generate(c.Request.Context(), req)
	if err != nil {
		InternalError(c, "生成失败: "+err.Error())
		return
	}
	switch err := resp.Err(); {
	case err == nil:
		Created(c, resp)
	case errors.Is(err, service.ErrValidationFailed):
		ErrorWithData(c, 42200, "参数校验未通过", resp)
	case errors.Is(err, service.ErrDesignNotFound), errors.Is(err, service.ErrPieceTypeNotFound):
		ErrorWithData(c, 40400, err.Error(), resp)
	case errors.Is(err, service.ErrGenerationFailed):
		// 修订已创建，响应中带修订号
		ErrorWithData(c, 50200, "生成引擎失败", resp)
	default:
		ErrorWithData(c, 50000, err.Error(), resp)
	}
}

// GetJob GET /generation-jobs/:id
func (h *GenerationHandler) GetJob(c *gin.Context) {
	job, ok := h.dispatcher.Get(c.Param("id"))
	if !ok {
		NotFound(c, "任务不存在或已过期")
		return
	}
	Success(c, job)
}

// EngineStatus GET /engine
func (h *GenerationHandler) EngineStatus(c *gin.Context) {
	eng := h.svc.Engine()
	Success(c, gin.H{
		"name":      eng.Name(),
		"available": eng.Available(),
	})
}
