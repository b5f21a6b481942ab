package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mauripsale/infographic-agent-pro/internal/auth"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

func (h *Handler) ExportZip(c *gin.Context) {
	owner, body, script, ok := h.exportInput(c)
	if !ok {
		return
	}
	res, err := h.exporter.Zip(c.Request.Context(), owner, body.ProjectID, script)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportPDF(c *gin.Context) {
	owner, body, script, ok := h.exportInput(c)
	if !ok {
		return
	}
	res, err := h.exporter.PDF(c.Request.Context(), owner, body.ProjectID, script)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ExportSlides creates a Google Slides deck with the caller's Google token.
func (h *Handler) ExportSlides(c *gin.Context) {
	owner, body, script, ok := h.exportInput(c)
	if !ok {
		return
	}
	token := body.GoogleAccessToken
	if token == "" {
		token = c.GetHeader("X-Google-Access-Token")
	}
	res, err := h.slides.Export(c.Request.Context(), owner, token, body.Title, script)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// exportInput authenticates and resolves the script to export, loading it
// from the project when the body carries none.
func (h *Handler) exportInput(c *gin.Context) (string, ExportRequest, *domain.Script, bool) {
	var body ExportRequest
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", body, nil, false
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return "", body, nil, false
	}

	script := body.Script
	if script == nil {
		if body.ProjectID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "script or project_id is required"})
			return "", body, nil, false
		}
		project, err := h.orch.GetProject(c.Request.Context(), owner, body.ProjectID)
		if err != nil {
			writeError(c, err)
			return "", body, nil, false
		}
		script = project.Script
		if body.Title == "" {
			body.Title = project.Query
		}
	}
	if body.ProjectID == "" {
		body.ProjectID = "adhoc"
	}
	return owner, body, script, true
}
