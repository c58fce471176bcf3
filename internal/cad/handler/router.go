package handler

import (
	"net/http"

	"github.com/bitfantasy/paramcad/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteOptions 路由选项
type RouteOptions struct {
	JWTSecret string              // 为空时不启用认证
	Gatherer  prometheus.Gatherer // 为空时不注册 /metrics
	Version   string
}

// ECOApproverRole 发布/作废修订所需角色
const ECOApproverRole = "eco_approver"

// RegisterRoutes 注册全部路由
func RegisterRoutes(r *gin.Engine, h *Handlers, opts RouteOptions) {
	// 健康检查
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": opts.Version})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	v1 := r.Group("/api/v1")
	if opts.JWTSecret != "" {
		v1.Use(middleware.JWTAuth(opts.JWTSecret))
	}
	{
		// 目录
		v1.GET("/piece-types", h.Catalog.ListPieceTypes)
		v1.GET("/piece-types/:code", h.Catalog.GetPieceType)
		v1.GET("/catalog/disciplines", h.Catalog.Disciplines)
		v1.POST("/catalog/reload", middleware.RequireRole("admin"), h.Catalog.Reload)
		v1.POST("/validate", h.Catalog.Validate)

		// 设计
		designs := v1.Group("/designs")
		{
			designs.GET("", h.Design.List)
			designs.POST("", h.Design.Create)
			designs.GET("/:id", h.Design.Get)
			designs.PUT("/:id", h.Design.Update)
			designs.DELETE("/:id", h.Design.Delete)
			designs.POST("/:id/generate", h.Generation.Generate)
			designs.GET("/:id/revisions", h.Revision.List)
			designs.GET("/:id/revisions/latest", h.Revision.Latest)
		}

		// 修订
		revisions := v1.Group("/revisions")
		{
			revisions.GET("/:id", h.Revision.Get)
			revisions.GET("/:id/delta", h.Revision.Delta)
			revisions.PUT("/:id/eco", h.Revision.SetECOStatus)
			revisions.POST("/:id/issue", middleware.RequireRole(ECOApproverRole), h.Revision.Issue)
			revisions.POST("/:id/obsolete", middleware.RequireRole(ECOApproverRole), h.Revision.Obsolete)
			revisions.GET("/:id/bom", h.BOM.Get)
			revisions.POST("/:id/bom", h.BOM.Build)
			revisions.POST("/:id/bom/export", h.BOM.Export)
		}

		v1.GET("/generation-jobs/:id", h.Generation.GetJob)
		v1.GET("/engine", h.Generation.EngineStatus)
		v1.GET("/events", h.SSE.Stream)
	}
}
