package http

import "github.com/gin-gonic/gin"

// Register registers the infographic routes
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/generate", h.Generate)
	rg.POST("/assets/refresh", h.RefreshAssets)

	rg.POST("/export/zip", h.ExportZip)
	rg.POST("/export/pdf", h.ExportPDF)
	rg.POST("/export/slides", h.ExportSlides)

	rg.GET("/projects", h.ListProjects)
	rg.GET("/projects/:id", h.GetProject)

	rg.GET("/sessions", h.ListSessions)
	rg.GET("/sessions/:id", h.GetSession)
	rg.DELETE("/sessions/:id", h.DeleteSession)
}
