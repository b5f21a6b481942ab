package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

var projectColumns = []string{"id", "owner_id", "query", "script", "status", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*ProjectRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewProjectRepository(db)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo, mock
}

// jsonArg matches a marshalled script carrying the wanted slide id.
type jsonArg struct{ want string }

func (a jsonArg) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var s domain.Script
	if err := json.Unmarshal(b, &s); err != nil || len(s.Slides) == 0 {
		return false
	}
	return s.Slides[0].ID == a.want
}

func TestProjectUpsert(t *testing.T) {
	t.Run("inserts or updates owned project", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		p := &domain.Project{ID: "p1", Owner: "u1", Query: "composting", Status: domain.ProjectPending}

		mock.ExpectExec("INSERT INTO infographic_projects").
			WithArgs("p1", "u1", "composting", sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Upsert(context.Background(), p))
		assert.False(t, p.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("script is stored as json", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		p := &domain.Project{
			ID: "p1", Owner: "u1", Status: domain.ProjectScriptReady,
			Script: &domain.Script{Slides: []domain.Slide{{ID: "a"}}},
		}

		mock.ExpectExec("INSERT INTO infographic_projects").
			WithArgs("p1", "u1", "", jsonArg{want: "a"}, "script_ready", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Upsert(context.Background(), p))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign project is rejected", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("INSERT INTO infographic_projects").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Upsert(context.Background(), &domain.Project{ID: "p1", Owner: "intruder", Status: domain.ProjectPending})
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})

	t.Run("database down", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("INSERT INTO infographic_projects").WillReturnError(errors.New("connection refused"))

		err := repo.Upsert(context.Background(), &domain.Project{ID: "p1", Owner: "u1", Status: domain.ProjectPending})
		assert.Equal(t, domain.CategoryPersistence, domain.CategoryOf(err))
	})
}

func TestProjectGet(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rows := sqlmock.NewRows(projectColumns).
			AddRow("p1", "u1", "q", []byte(`{"slides":[{"id":"a","title":"A"}]}`), "script_ready", created, created)
		mock.ExpectQuery("SELECT (.+) FROM infographic_projects").WithArgs("p1").WillReturnRows(rows)

		p, err := repo.Get(context.Background(), "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, domain.ProjectScriptReady, p.Status)
		require.NotNil(t, p.Script)
		assert.Equal(t, "A", p.Script.Slides[0].Title)
	})

	t.Run("without script", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rows := sqlmock.NewRows(projectColumns).AddRow("p1", "u1", "q", nil, "pending", created, created)
		mock.ExpectQuery("SELECT (.+) FROM infographic_projects").WithArgs("p1").WillReturnRows(rows)

		p, err := repo.Get(context.Background(), "u1", "p1")
		require.NoError(t, err)
		assert.Nil(t, p.Script)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM infographic_projects").WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := repo.Get(context.Background(), "u1", "nope")
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("other owner", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		rows := sqlmock.NewRows(projectColumns).AddRow("p1", "u1", "q", nil, "pending", created, created)
		mock.ExpectQuery("SELECT (.+) FROM infographic_projects").WithArgs("p1").WillReturnRows(rows)

		_, err := repo.Get(context.Background(), "u2", "p1")
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})
}

func TestProjectSaveScript(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE infographic_projects").
			WithArgs("p1", "u1", sqlmock.AnyArg(), "completed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveScript(context.Background(), "u1", "p1", &domain.Script{}, domain.ProjectCompleted)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing project", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE infographic_projects").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveScript(context.Background(), "u1", "p1", nil, domain.ProjectFailed)
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})
}

func TestProjectList(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()
	rows := sqlmock.NewRows(projectColumns).
		AddRow("p2", "u1", "b", nil, "pending", now, now).
		AddRow("p1", "u1", "a", nil, "completed", now, now)
	mock.ExpectQuery(`SELECT (.+) FROM infographic_projects\s+WHERE owner_id`).
		WithArgs("u1", defaultPageSize).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID)
	assert.Equal(t, domain.ProjectCompleted, list[1].Status)
}

func TestProjectMarkStale(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE infographic_projects").
		WithArgs("failed", sqlmock.AnyArg(), "pending", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS infographic_projects").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
