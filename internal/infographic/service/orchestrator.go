package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/executor"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/scriptgen"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/stream"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// Request phases as sent by clients.
const (
	PhaseScript   = "script"
	PhaseGraphics = "graphics"
)

const surfaceID = "infographic"

// Request is one streaming generation request. Models travel with the
// request; empty values select the configured defaults.
type Request struct {
	Phase       string
	Owner       string
	Query       string
	ProjectID   string
	SessionID   string
	Script      *domain.Script
	SlideIDs    []string
	TextModel   string
	ImageModel  string
	AspectRatio string
	Plan        scriptgen.PlanOptions
}

// Validate checks the request before any stream is opened.
func (r Request) Validate() error {
	switch r.Phase {
	case PhaseScript:
		if strings.TrimSpace(r.Query) == "" && r.SessionID == "" && r.ProjectID == "" {
			return domain.Wrap(domain.CategoryValidation, "validate request", errors.New("query is required"))
		}
	case PhaseGraphics:
		if r.Script == nil && r.SessionID == "" && r.ProjectID == "" {
			return domain.Wrap(domain.CategoryValidation, "validate request", domain.ErrNoScript)
		}
	default:
		return domain.Wrap(domain.CategoryValidation, "validate request", fmt.Errorf("%w: %q", domain.ErrInvalidPhase, r.Phase))
	}
	if r.Owner == "" {
		return domain.Wrap(domain.CategoryAuth, "validate request", domain.ErrPermissionDenied)
	}
	return nil
}

// Orchestrator drives the planning and rendering phases of a session. The
// goroutine calling Run is the only one that mutates the script or writes to
// the emitter.
type Orchestrator struct {
	sessions    domain.SessionStore
	projects    domain.ProjectStore
	artifacts   domain.ArtifactStore
	concurrency int
	newID       func() string
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(sessions domain.SessionStore, projects domain.ProjectStore, artifacts domain.ArtifactStore, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = executor.DefaultConcurrency
	}
	return &Orchestrator{
		sessions:    sessions,
		projects:    projects,
		artifacts:   artifacts,
		concurrency: concurrency,
		newID:       uuid.NewString,
	}
}

// Run executes one request phase and streams its progress to em. Failures
// that end the phase are reported on the stream and returned. A rendering
// batch in which some slides failed is not an error.
func (o *Orchestrator) Run(ctx context.Context, gen domain.GenerationClient, req Request, em *stream.Emitter) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.ProjectID == "" {
		req.ProjectID = o.newID()
	}
	if req.SessionID == "" {
		req.SessionID = req.ProjectID
	}

	phase := domain.PhasePlanning
	if req.Phase == PhaseGraphics {
		phase = domain.PhaseRendering
	}
	if err := em.Emit(stream.SurfaceInit{
		SurfaceID: surfaceID,
		Phase:     phase,
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
	}); err != nil {
		return err
	}

	// Writes must land even if the caller goes away mid-phase.
	pctx := context.WithoutCancel(ctx)

	session, err := o.resumeOrCreate(pctx, req)
	if err != nil {
		o.logFailure(ctx, em, "could not open session", err)
		return err
	}

	if req.Phase == PhaseScript {
		return o.plan(ctx, pctx, gen, req, session, em)
	}
	return o.render(ctx, pctx, gen, req, session, em)
}

// resumeOrCreate loads the session or creates it on first use.
func (o *Orchestrator) resumeOrCreate(ctx context.Context, req Request) (*domain.Session, error) {
	session, err := o.sessions.Get(ctx, req.Owner, req.SessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	session, err = o.sessions.Create(ctx, req.Owner, req.SessionID, map[string]any{
		domain.StateKeyPhase:     string(domain.PhaseInit),
		domain.StateKeyProjectID: req.ProjectID,
	})
	if errors.Is(err, domain.ErrSessionExists) {
		// lost a creation race with another request for the same id
		return o.sessions.Get(ctx, req.Owner, req.SessionID)
	}
	return session, err
}

// setPhase persists phase and, when non-nil, script into the session state.
// A nil value in extra removes that key.
func (o *Orchestrator) setPhase(ctx context.Context, session *domain.Session, phase domain.Phase, script *domain.Script, extra map[string]any) error {
	state := domain.CopyState(session.State)
	state[domain.StateKeyPhase] = string(phase)
	if script != nil {
		m, err := domain.ScriptToState(script)
		if err != nil {
			return err
		}
		state[domain.StateKeyScript] = m
	}
	for k, v := range extra {
		if v == nil {
			delete(state, k)
			continue
		}
		state[k] = v
	}

	updated, err := o.sessions.UpdateState(ctx, session.Owner, session.ID, state)
	if err != nil {
		return err
	}
	session.State = updated.State
	session.LastUpdateTime = updated.LastUpdateTime
	return nil
}

// saveProject stores the script on the project, creating the project record
// when the client started from a script it planned elsewhere.
func (o *Orchestrator) saveProject(ctx context.Context, owner, projectID, query string, script *domain.Script, status domain.ProjectStatus) error {
	err := o.projects.SaveScript(ctx, owner, projectID, script, status)
	if !errors.Is(err, domain.ErrProjectNotFound) {
		return err
	}
	return o.projects.Upsert(ctx, &domain.Project{
		ID:     projectID,
		Owner:  owner,
		Query:  query,
		Script: script,
		Status: status,
	})
}

func (o *Orchestrator) appendEvent(ctx context.Context, session *domain.Session, author string, phase domain.Phase, text string) {
	_, err := o.sessions.AppendEvent(ctx, session, domain.Event{
		Author:    author,
		Phase:     phase,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to append session event",
			slog.String("session_id", session.ID),
			slog.String("author", author),
			slog.Any("error", err),
		)
	}
}

// logFailure reports a fatal error on the stream with its category.
func (o *Orchestrator) logFailure(ctx context.Context, em *stream.Emitter, msg string, err error) {
	category := domain.CategoryOf(err)
	observability.LoggerFromContext(ctx).Error(msg,
		slog.String("category", string(category)),
		slog.Any("error", err),
	)
	emit(ctx, em, stream.Log{Message: fmt.Sprintf("%s: %v", msg, err), Category: category})
}

// emit writes ev, tolerating a caller that already went away.
func emit(ctx context.Context, em *stream.Emitter, ev stream.Event) {
	if err := em.Emit(ev); err != nil && !errors.Is(err, stream.ErrDisconnected) {
		observability.LoggerFromContext(ctx).Error("failed to emit event", slog.Any("error", err))
	}
}

func queryOf(state map[string]any) string {
	q, _ := state[domain.StateKeyQuery].(string)
	return q
}
