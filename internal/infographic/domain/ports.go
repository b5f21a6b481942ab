package domain

import (
	"context"
	"io"
	"time"
)

// SessionStore persists sessions. Every read and write is scoped to an owner.
type SessionStore interface {
	Create(ctx context.Context, owner, sessionID string, state map[string]any) (*Session, error)
	Get(ctx context.Context, owner, sessionID string) (*Session, error)
	UpdateState(ctx context.Context, owner, sessionID string, state map[string]any) (*Session, error)
	Delete(ctx context.Context, owner, sessionID string) error
	List(ctx context.Context, owner string, pageSize int, pageToken string) ([]*Session, string, error)
	AppendEvent(ctx context.Context, session *Session, event Event) (Event, error)
}

// ProjectStore persists project records.
type ProjectStore interface {
	Upsert(ctx context.Context, p *Project) error
	Get(ctx context.Context, owner, id string) (*Project, error)
	SaveScript(ctx context.Context, owner, id string, script *Script, status ProjectStatus) error
	List(ctx context.Context, owner string, limit int) ([]*Project, error)
	MarkStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// ArtifactStore stores binary outputs and mints expiring URLs for them.
type ArtifactStore interface {
	Put(ctx context.Context, data []byte, logicalPath, contentType string) (Asset, error)
	Refresh(ctx context.Context, stablePath string) (string, error)
	Get(ctx context.Context, stablePath string) (io.ReadCloser, error)
}

// GenerationClient talks to the generative model. Implementations are
// request-scoped: credentials are bound at construction time.
type GenerationClient interface {
	GenerateText(ctx context.Context, prompt, model string) (string, error)
	GenerateImage(ctx context.Context, prompt, aspectRatio, model string) ([]byte, error)
}
