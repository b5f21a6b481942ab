package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mauripsale/infographic-agent-pro/internal/auth"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/export"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/generation"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/service"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/stream"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// ClientFactory builds a generation client for one provider key.
type ClientFactory interface {
	ForKey(ctx context.Context, apiKey string) (*generation.Client, error)
}

// Handler handles HTTP requests for infographic generation
type Handler struct {
	orch       *service.Orchestrator
	clients    ClientFactory
	exporter   *export.Exporter
	slides     *export.SlidesExporter
	defaultKey string
}

// New creates a new Handler. defaultKey is used when the caller sends no
// X-API-Key header.
func New(orch *service.Orchestrator, clients ClientFactory, exporter *export.Exporter, slides *export.SlidesExporter, defaultKey string) *Handler {
	return &Handler{
		orch:       orch,
		clients:    clients,
		exporter:   exporter,
		slides:     slides,
		defaultKey: defaultKey,
	}
}

// Generate runs one phase and streams progress as NDJSON.
func (h *Handler) Generate(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req := body.toService(owner)
	if err := req.Validate(); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		apiKey = h.defaultKey
	}
	gen, err := h.clients.ForKey(ctx, apiKey)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering
	c.Status(http.StatusOK)

	em := stream.NewEmitter(ctx, c.Writer)
	if err := h.orch.Run(ctx, gen, req, em); err != nil {
		observability.LoggerFromContext(ctx).Warn("generation request ended with error",
			slog.String("phase", req.Phase),
			slog.String("category", string(domain.CategoryOf(err))),
			slog.Any("error", err),
		)
	}
}

// RefreshAssets mints fresh image URLs for a script.
func (h *Handler) RefreshAssets(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var body RefreshRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	script, err := h.orch.RefreshAssets(c.Request.Context(), owner, body.Script)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ScriptResponse{Script: script})
}

// ListSessions lists the caller's sessions
func (h *Handler) ListSessions(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	sessions, next, err := h.orch.ListSessions(c.Request.Context(), owner, pageSize, c.Query("page_token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionListResponse{Sessions: sessions, NextPageToken: next})
}

// GetSession returns a session with its events
func (h *Handler) GetSession(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	session, err := h.orch.GetSession(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// DeleteSession deletes a session
func (h *Handler) DeleteSession(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.orch.DeleteSession(c.Request.Context(), owner, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListProjects lists the caller's projects
func (h *Handler) ListProjects(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	projects, err := h.orch.ListProjects(c.Request.Context(), owner, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProjectListResponse{Projects: projects})
}

// GetProject returns one project
func (h *Handler) GetProject(c *gin.Context) {
	owner := auth.UserFirebaseUID(c)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	project, err := h.orch.GetProject(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	category := domain.CategoryOf(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrProjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case category == domain.CategoryValidation, category == domain.CategorySemantic:
		status = http.StatusBadRequest
	case category == domain.CategoryAuth:
		status = http.StatusUnauthorized
	case category == domain.CategoryPersistence:
		status = http.StatusServiceUnavailable
	case category == domain.CategoryTransient:
		status = http.StatusBadGateway
	}

	if status >= 500 {
		observability.LoggerFromContext(c.Request.Context()).Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error(), "category": category})
}
