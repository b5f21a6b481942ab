package http

import (
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/scriptgen"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/service"
)

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Phase       string         `json:"phase" binding:"required"`
	Query       string         `json:"query"`
	ProjectID   string         `json:"project_id"`
	SessionID   string         `json:"session_id"`
	Script      *domain.Script `json:"script"`
	SlideIDs    []string       `json:"slide_ids"`
	TextModel   string         `json:"text_model"`
	ImageModel  string         `json:"image_model"`
	AspectRatio string         `json:"aspect_ratio"`
	SlideCount  int            `json:"slide_count"`
	DetailLevel string         `json:"detail_level"`
	Style       string         `json:"style"`
}

func (r GenerateRequest) toService(owner string) service.Request {
	return service.Request{
		Phase:       r.Phase,
		Owner:       owner,
		Query:       r.Query,
		ProjectID:   r.ProjectID,
		SessionID:   r.SessionID,
		Script:      r.Script,
		SlideIDs:    r.SlideIDs,
		TextModel:   r.TextModel,
		ImageModel:  r.ImageModel,
		AspectRatio: r.AspectRatio,
		Plan: scriptgen.PlanOptions{
			SlideCount:  r.SlideCount,
			DetailLevel: r.DetailLevel,
			Style:       r.Style,
			AspectRatio: r.AspectRatio,
		},
	}
}

type RefreshRequest struct {
	Script *domain.Script `json:"script" binding:"required"`
}

type ScriptResponse struct {
	Script *domain.Script `json:"script"`
}

// ExportRequest carries either a script or the project to read it from.
type ExportRequest struct {
	ProjectID         string         `json:"project_id"`
	Script            *domain.Script `json:"script"`
	Title             string         `json:"title"`
	GoogleAccessToken string         `json:"google_access_token"`
}

type SessionListResponse struct {
	Sessions      []*domain.Session `json:"sessions"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type ProjectListResponse struct {
	Projects []*domain.Project `json:"projects"`
}
