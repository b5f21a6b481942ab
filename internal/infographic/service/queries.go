package service

import (
	"context"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// GetSession returns a session with its events.
func (o *Orchestrator) GetSession(ctx context.Context, owner, id string) (*domain.Session, error) {
	return o.sessions.Get(ctx, owner, id)
}

// ListSessions pages through the owner's sessions.
func (o *Orchestrator) ListSessions(ctx context.Context, owner string, pageSize int, pageToken string) ([]*domain.Session, string, error) {
	return o.sessions.List(ctx, owner, pageSize, pageToken)
}

// DeleteSession removes a session. Its project is kept.
func (o *Orchestrator) DeleteSession(ctx context.Context, owner, id string) error {
	return o.sessions.Delete(ctx, owner, id)
}

func (o *Orchestrator) GetProject(ctx context.Context, owner, id string) (*domain.Project, error) {
	return o.projects.Get(ctx, owner, id)
}

func (o *Orchestrator) ListProjects(ctx context.Context, owner string, limit int) ([]*domain.Project, error) {
	return o.projects.List(ctx, owner, limit)
}
