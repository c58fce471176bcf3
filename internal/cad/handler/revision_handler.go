package handler

import (
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/gin-gonic/gin"
)

// RevisionHandler 修订与 ECO
type RevisionHandler struct {
	svc *service.RevisionService
}

func NewRevisionHandler(svc *service.RevisionService) *RevisionHandler {
	return &RevisionHandler{svc: svc}
}

// List GET /designs/:id/revisions
func (h *RevisionHandler) List(c *gin.Context) {
	revs, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, revs)
}

// Latest GET /designs/:id/revisions/latest
func (h *RevisionHandler) Latest(c *gin.Context) {
	rev, err := h.svc.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, rev)
}

// Get GET /revisions/:id
func (h *RevisionHandler) Get(c *gin.Context) {
	rev, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, rev)
}

// SetECOStatus PUT /revisions/:id/eco
func (h *RevisionHandler) SetECOStatus(c *gin.Context) {
	var req service.ECOStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	rev, err := h.svc.SetECOStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, rev)
}

// Issue POST /revisions/:id/issue
func (h *RevisionHandler) Issue(c *gin.Context) {
	var req service.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	rev, err := h.svc.Issue(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, rev)
}

// Obsolete POST /revisions/:id/obsolete
func (h *RevisionHandler) Obsolete(c *gin.Context) {
	var req service.ObsoleteRequest
	// 请求体可选
	_ = c.ShouldBindJSON(&req)
	rev, err := h.svc.Obsolete(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, rev)
}

// Delta GET /revisions/:id/delta?to=
func (h *RevisionHandler) Delta(c *gin.Context) {
	to := c.Query("to")
	if to == "" {
		BadRequest(c, "缺少参数 to")
		return
	}
	delta, err := h.svc.ParameterDelta(c.Request.Context(), c.Param("id"), to)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, delta)
}
