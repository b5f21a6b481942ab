package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/scriptgen"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/stream"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// plan runs the planning phase. ctx is the caller's context; pctx outlives
// it and carries every provider call and store write.
func (o *Orchestrator) plan(ctx, pctx context.Context, gen domain.GenerationClient, req Request, session *domain.Session, em *stream.Emitter) error {
	logger := observability.LoggerFromContext(ctx).With(
		slog.String("session_id", session.ID),
		slog.String("project_id", req.ProjectID),
	)

	query := strings.TrimSpace(req.Query)
	stored, hasScript, err := domain.ScriptFromState(session.State)
	if err != nil {
		logger.Warn("stored script is unreadable, planning again", slog.Any("error", err))
		hasScript = false
	}

	// A planned session asked to plan the same thing again resumes instead.
	if hasScript && resumable(domain.PhaseOf(session.State)) && (query == "" || query == queryOf(session.State)) {
		logger.Info("script already planned, resuming", slog.String("phase", string(domain.PhaseOf(session.State))))
		emit(ctx, em, stream.Log{Message: "Resuming previously planned script"})
		emit(ctx, em, stream.DataModelUpdate{Value: stream.DataModel{Script: stored, ProjectID: req.ProjectID}})
		return nil
	}
	if query == "" {
		err := domain.Wrap(domain.CategoryValidation, "plan", errors.New("query is required"))
		o.logFailure(ctx, em, "planning failed", err)
		return err
	}

	// The previous script belongs to another plan and must not outlive it.
	if err := o.setPhase(pctx, session, domain.PhasePlanning, nil, map[string]any{
		domain.StateKeyProjectID: req.ProjectID,
		domain.StateKeyQuery:     query,
		domain.StateKeyScript:    nil,
	}); err != nil {
		o.logFailure(ctx, em, "planning failed", err)
		return err
	}
	if err := o.projects.Upsert(pctx, &domain.Project{
		ID:     req.ProjectID,
		Owner:  req.Owner,
		Query:  query,
		Status: domain.ProjectPending,
	}); err != nil {
		o.logFailure(ctx, em, "planning failed", err)
		return err
	}
	o.appendEvent(pctx, session, domain.AuthorUser, domain.PhasePlanning, query)

	emit(ctx, em, stream.Log{Message: "Planning slides..."})

	opts := req.Plan
	if opts.AspectRatio == "" {
		opts.AspectRatio = req.AspectRatio
	}
	text, err := gen.GenerateText(pctx, scriptgen.PlanningPrompt(query, opts), req.TextModel)
	if err != nil {
		return o.failPlanning(ctx, pctx, req, session, em, err)
	}

	script, err := scriptgen.ParseScript(text)
	if err != nil {
		logger.Warn("model output had no usable script", slog.Int("output_len", len(text)))
		return o.failPlanning(ctx, pctx, req, session, em, domain.Wrap(domain.CategorySemantic, "extract script", err))
	}
	if script.GlobalSettings.AspectRatio == "" {
		script.GlobalSettings.AspectRatio = opts.AspectRatio
	}
	if script.GlobalSettings.Style == "" {
		script.GlobalSettings.Style = opts.Style
	}
	script = scriptgen.Enrich(script)

	if err := o.projects.SaveScript(pctx, req.Owner, req.ProjectID, script, domain.ProjectScriptReady); err != nil {
		o.logFailure(ctx, em, "planning failed", err)
		return err
	}
	if err := o.setPhase(pctx, session, domain.PhaseScriptReady, script, nil); err != nil {
		o.logFailure(ctx, em, "planning failed", err)
		return err
	}
	o.appendEvent(pctx, session, domain.AuthorPlanner, domain.PhaseScriptReady,
		fmt.Sprintf("Planned %d slides", len(script.Slides)))

	logger.Info("script ready", slog.Int("slides", len(script.Slides)))
	emit(ctx, em, stream.Log{Message: fmt.Sprintf("Script ready with %d slides", len(script.Slides))})
	emit(ctx, em, stream.DataModelUpdate{Value: stream.DataModel{Script: script, ProjectID: req.ProjectID}})
	return nil
}

// resumable reports whether a stored script from phase is a finished plan.
func resumable(phase domain.Phase) bool {
	switch phase {
	case domain.PhaseScriptReady, domain.PhaseRendering, domain.PhaseCompleted:
		return true
	}
	return false
}

// failPlanning records the failed phase and reports cause. Planning is not
// retried here; the caller resubmits.
func (o *Orchestrator) failPlanning(ctx, pctx context.Context, req Request, session *domain.Session, em *stream.Emitter, cause error) error {
	logger := observability.LoggerFromContext(ctx)

	if err := o.setPhase(pctx, session, domain.PhaseFailed, nil, nil); err != nil {
		logger.Warn("failed to record failed phase", slog.String("session_id", session.ID), slog.Any("error", err))
	}
	if err := o.projects.SaveScript(pctx, req.Owner, req.ProjectID, nil, domain.ProjectFailed); err != nil {
		logger.Warn("failed to mark project failed", slog.String("project_id", req.ProjectID), slog.Any("error", err))
	}
	o.appendEvent(pctx, session, domain.AuthorPlanner, domain.PhaseFailed, cause.Error())

	o.logFailure(ctx, em, "planning failed", cause)
	return cause
}
