package handler

import (
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/gin-gonic/gin"
)

// CatalogHandler 零件类型与参数目录
type CatalogHandler struct {
	svc *service.CatalogService
}

func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// ListPieceTypes GET /piece-types?discipline=
func (h *CatalogHandler) ListPieceTypes(c *gin.Context) {
	types, err := h.svc.ListPieceTypes(c.Request.Context(), c.Query("discipline"))
	if err != nil {
		InternalError(c, "获取零件类型失败: "+err.Error())
		return
	}
	Success(c, types)
}

// GetPieceType GET /piece-types/:code
func (h *CatalogHandler) GetPieceType(c *gin.Context) {
	detail, err := h.svc.GetPieceType(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, detail)
}

// Disciplines GET /catalog/disciplines
func (h *CatalogHandler) Disciplines(c *gin.Context) {
	disciplines, err := h.svc.Disciplines()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	version, _ := h.svc.Version()
	Success(c, gin.H{"catalog_version": version, "disciplines": disciplines})
}

// Validate POST /validate
// 校验失败仍返回 200，结果中 is_valid=false
func (h *CatalogHandler) Validate(c *gin.Context) {
	var req service.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.svc.Validate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, result)
}

// Reload POST /catalog/reload
func (h *CatalogHandler) Reload(c *gin.Context) {
	if err := h.svc.Reload(); err != nil {
		ErrorWithData(c, 42200, "目录重载失败，保留原目录", gin.H{"error": err.Error()})
		return
	}
	version, _ := h.svc.Version()
	Success(c, gin.H{"catalog_version": version})
}
