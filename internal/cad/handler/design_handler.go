package handler

import (
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/gin-gonic/gin"
)

type DesignHandler struct {
	svc *service.DesignService
}

func NewDesignHandler(svc *service.DesignService) *DesignHandler {
	return &DesignHandler{svc: svc}
}

// List GET /designs?piece_type=
func (h *DesignHandler) List(c *gin.Context) {
	designs, err := h.svc.List(c.Request.Context(), c.Query("piece_type"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, designs)
}

// Create POST /designs
func (h *DesignHandler) Create(c *gin.Context) {
	var req service.CreateDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	design, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, design)
}

// Get GET /designs/:id
func (h *DesignHandler) Get(c *gin.Context) {
	design, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, design)
}

// Update PUT /designs/:id
func (h *DesignHandler) Update(c *gin.Context) {
	var req service.UpdateDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	design, err := h.svc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, design)
}

// Delete DELETE /designs/:id
func (h *DesignHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}
