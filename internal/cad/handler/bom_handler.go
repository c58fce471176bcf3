package handler

import (
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/gin-gonic/gin"
)

type BOMHandler struct {
	svc *service.BOMService
}

func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Get GET /revisions/:id/bom
func (h *BOMHandler) Get(c *gin.Context) {
	bom, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, bom)
}

// Build POST /revisions/:id/bom
func (h *BOMHandler) Build(c *gin.Context) {
	bom, err := h.svc.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, bom)
}

// Export POST /revisions/:id/bom/export
// 返回更新后的修订（含 bom_xlsx_path）
func (h *BOMHandler) Export(c *gin.Context) {
	rev, err := h.svc.ExportXLSX(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, rev)
}
