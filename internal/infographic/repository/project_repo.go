package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// ProjectSchema creates the projects table.
const ProjectSchema = `
CREATE TABLE IF NOT EXISTS infographic_projects (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	script     JSONB,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_infographic_projects_owner
	ON infographic_projects (owner_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_infographic_projects_status
	ON infographic_projects (status, updated_at);
`

// ProjectRepository handles PostgreSQL operations for projects
type ProjectRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.ProjectStore = (*ProjectRepository)(nil)

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db, now: time.Now}
}

// EnsureSchema creates the table and indexes if they do not exist.
func (r *ProjectRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ProjectSchema); err != nil {
		return fmt.Errorf("failed to create projects schema: %w", err)
	}
	return nil
}

// Upsert creates the project or updates its query, status and script. A
// project owned by someone else is never touched.
func (r *ProjectRepository) Upsert(ctx context.Context, p *domain.Project) error {
	scriptJSON, err := marshalScript(p.Script)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO infographic_projects (id, owner_id, query, script, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			query      = EXCLUDED.query,
			script     = COALESCE(EXCLUDED.script, infographic_projects.script),
			status     = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE infographic_projects.owner_id = EXCLUDED.owner_id
	`, p.ID, p.Owner, p.Query, scriptJSON, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Wrap(domain.CategoryPersistence, "failed to upsert project", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Wrap(domain.CategoryPersistence, "failed to upsert project", err)
	}
	if n == 0 {
		return domain.ErrPermissionDenied
	}
	return nil
}

// Get retrieves a project by ID.
func (r *ProjectRepository) Get(ctx context.Context, owner, id string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, query, script, status, created_at, updated_at
		FROM infographic_projects
		WHERE id = $1
	`, id)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	if p.Owner != owner {
		return nil, domain.ErrPermissionDenied
	}
	return p, nil
}

// SaveScript stores the script and status of an existing project.
func (r *ProjectRepository) SaveScript(ctx context.Context, owner, id string, script *domain.Script, status domain.ProjectStatus) error {
	scriptJSON, err := marshalScript(script)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE infographic_projects
		SET script = COALESCE($3, script), status = $4, updated_at = $5
		WHERE id = $1 AND owner_id = $2
	`, id, owner, scriptJSON, string(status), r.now().UTC())
	if err != nil {
		return domain.Wrap(domain.CategoryPersistence, "failed to save project script", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Wrap(domain.CategoryPersistence, "failed to save project script", err)
	}
	if n == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// List returns the owner's most recently updated projects.
func (r *ProjectRepository) List(ctx context.Context, owner string, limit int) ([]*domain.Project, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, query, script, status, created_at, updated_at
		FROM infographic_projects
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, domain.Wrap(domain.CategoryPersistence, "failed to query projects", err)
	}
	defer rows.Close()

	projects := []*domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// MarkStale fails projects stuck in pending since before olderThan.
func (r *ProjectRepository) MarkStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE infographic_projects
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`, string(domain.ProjectFailed), r.now().UTC(), string(domain.ProjectPending), olderThan)
	if err != nil {
		return 0, domain.Wrap(domain.CategoryPersistence, "failed to mark stale projects", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p          domain.Project
		scriptJSON []byte
		status     string
	)
	if err := row.Scan(&p.ID, &p.Owner, &p.Query, &scriptJSON, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, domain.Wrap(domain.CategoryPersistence, "failed to scan project", err)
	}
	p.Status = domain.ProjectStatus(status)

	if len(scriptJSON) > 0 {
		var s domain.Script
		if err := json.Unmarshal(scriptJSON, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project script: %w", err)
		}
		p.Script = &s
	}
	return &p, nil
}

func marshalScript(s *domain.Script) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal script: %w", err)
	}
	return b, nil
}
