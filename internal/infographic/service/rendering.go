package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/artifacts"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/executor"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/scriptgen"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/stream"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// batchResult counts the outcome of one rendering batch.
type batchResult struct {
	succeeded int
	failed    int
	skipped   int
	lastErr   error
}

func (r batchResult) summary() string {
	return fmt.Sprintf("%d succeeded, %d failed", r.succeeded, r.failed)
}

// render runs the rendering phase over the slides that need an image.
func (o *Orchestrator) render(ctx, pctx context.Context, gen domain.GenerationClient, req Request, session *domain.Session, em *stream.Emitter) error {
	logger := observability.LoggerFromContext(ctx).With(
		slog.String("session_id", session.ID),
		slog.String("project_id", req.ProjectID),
	)

	script, err := o.renderScript(ctx, req, session)
	if err != nil {
		o.logFailure(ctx, em, "rendering failed", err)
		return err
	}
	if req.AspectRatio != "" {
		script.GlobalSettings.AspectRatio = req.AspectRatio
	}

	targets := o.targets(ctx, script, req.SlideIDs, em)
	if len(targets) == 0 {
		if err := o.finish(pctx, req, session, script, domain.PhaseCompleted, domain.ProjectCompleted); err != nil {
			o.logFailure(ctx, em, "rendering failed", err)
			return err
		}
		emit(ctx, em, stream.DataModelUpdate{Value: stream.DataModel{Script: script, ProjectID: req.ProjectID}})
		emit(ctx, em, stream.Log{Message: "All slides already rendered"})
		return nil
	}

	for _, i := range targets {
		script.Slides[i].Status = domain.SlideWaiting
		script.Slides[i].Error = ""
	}
	if err := o.setPhase(pctx, session, domain.PhaseRendering, script, map[string]any{
		domain.StateKeyProjectID: req.ProjectID,
	}); err != nil {
		o.logFailure(ctx, em, "rendering failed", err)
		return err
	}
	for _, i := range targets {
		emit(ctx, em, stream.ComponentUpdate{Target: script.Slides[i].ID, Payload: stream.ComponentState{Status: domain.SlideWaiting}})
	}
	emit(ctx, em, stream.Log{Message: fmt.Sprintf("Rendering %d slides", len(targets))})

	res, persistErr := o.runBatch(ctx, pctx, gen, req, session, script, targets, em)
	logger.Info("rendering batch finished",
		slog.Int("succeeded", res.succeeded),
		slog.Int("failed", res.failed),
		slog.Int("skipped", res.skipped),
	)

	if persistErr != nil {
		o.logFailure(ctx, em, "rendering aborted", persistErr)
		return persistErr
	}

	if res.skipped > 0 {
		// Caller left before every slide was dispatched. The session stays in
		// rendering so a later request picks up the slides without an image.
		if err := o.saveProject(pctx, req.Owner, req.ProjectID, queryOf(session.State), script, domain.ProjectScriptReady); err != nil {
			logger.Warn("failed to save interrupted render", slog.Any("error", err))
		}
		o.appendEvent(pctx, session, domain.AuthorRenderer, domain.PhaseRendering,
			fmt.Sprintf("Rendering interrupted: %s, %d not started", res.summary(), res.skipped))
		emit(ctx, em, stream.Log{Message: fmt.Sprintf("Rendering interrupted: %s, %d not started", res.summary(), res.skipped)})
		return nil
	}

	phase, status := domain.PhaseCompleted, domain.ProjectCompleted
	msg := fmt.Sprintf("Rendering completed: all %d slides succeeded", res.succeeded)
	var category domain.Category
	switch {
	case res.succeeded == 0 && res.failed > 0:
		phase, status = domain.PhaseFailed, domain.ProjectFailed
		msg = fmt.Sprintf("Rendering failed: all %d slides failed", res.failed)
		category = domain.CategoryOf(res.lastErr)
	case res.failed > 0:
		msg = fmt.Sprintf("Rendering completed with %d failures: %s", res.failed, res.summary())
		category = domain.CategoryPartial
	}

	if err := o.finish(pctx, req, session, script, phase, status); err != nil {
		o.logFailure(ctx, em, "rendering failed", err)
		return err
	}
	o.appendEvent(pctx, session, domain.AuthorRenderer, phase, msg)
	emit(ctx, em, stream.Log{Message: msg, Category: category})
	return nil
}

// renderScript picks the script to render. The session copy is the durable
// source of truth and wins over whatever the client sent.
func (o *Orchestrator) renderScript(ctx context.Context, req Request, session *domain.Session) (*domain.Script, error) {
	stored, ok, err := domain.ScriptFromState(session.State)
	if err != nil {
		return nil, domain.Wrap(domain.CategoryValidation, "load script", err)
	}
	if ok {
		return scriptgen.Enrich(stored), nil
	}
	if req.Script == nil || len(req.Script.Slides) == 0 {
		return nil, domain.Wrap(domain.CategoryValidation, "load script", domain.ErrNoScript)
	}

	script := scriptgen.Enrich(req.Script)
	for i := range script.Slides {
		slide := &script.Slides[i]
		if slide.ImagePath == "" || artifacts.OwnedBy(req.Owner, slide.ImagePath) {
			continue
		}
		// Foreign images are dropped so the slide renders again under the caller.
		observability.LoggerFromContext(ctx).Warn("foreign image path cleared",
			slog.String("slide_id", slide.ID), slog.String("path", slide.ImagePath))
		slide.ImagePath = ""
		slide.ImageURL = ""
		slide.Status = ""
		slide.Error = ""
	}
	return script, nil
}

// targets returns the indexes of the slides to render: the requested ids, or
// every slide without a stored image.
func (o *Orchestrator) targets(ctx context.Context, script *domain.Script, slideIDs []string, em *stream.Emitter) []int {
	var out []int
	if len(slideIDs) == 0 {
		for i := range script.Slides {
			if script.Slides[i].ImagePath == "" {
				out = append(out, i)
			}
		}
		return out
	}

	seen := make(map[int]bool, len(slideIDs))
	for _, id := range slideIDs {
		i := script.SlideIndex(id)
		if i < 0 {
			emit(ctx, em, stream.Log{Message: fmt.Sprintf("Unknown slide %q ignored", id), Category: domain.CategoryValidation})
			continue
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

// runBatch renders the target slides with the executor and applies results
// as they arrive. A failed session write stops further dispatch.
func (o *Orchestrator) runBatch(ctx, pctx context.Context, gen domain.GenerationClient, req Request, session *domain.Session, script *domain.Script, targets []int, em *stream.Emitter) (batchResult, error) {
	logger := observability.LoggerFromContext(ctx)
	aspect := script.AspectRatio()

	tasks := make([]executor.Task[domain.Asset], len(targets))
	for n, i := range targets {
		slide := script.Slides[i]
		tasks[n] = func(tctx context.Context) (domain.Asset, error) {
			img, err := gen.GenerateImage(tctx, slide.ImagePrompt, aspect, req.ImageModel)
			if err != nil {
				return domain.Asset{}, err
			}
			return o.artifacts.Put(tctx, img, artifacts.SlideImagePath(req.Owner, req.ProjectID, slide.ID), "image/png")
		}
	}

	dispatchCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var (
		res        batchResult
		persistErr error
	)
	for u := range executor.Run(dispatchCtx, o.concurrency, tasks) {
		slide := &script.Slides[targets[u.Index]]

		switch u.Kind {
		case executor.Dispatched:
			slide.Status = domain.SlideGenerating
			emit(ctx, em, stream.ComponentUpdate{Target: slide.ID, Payload: stream.ComponentState{Status: domain.SlideGenerating}})
			continue

		case executor.Skipped:
			res.skipped++
			continue

		case executor.Completed:
			if u.Err != nil {
				res.failed++
				res.lastErr = u.Err
				slide.Status = domain.SlideError
				slide.Error = u.Err.Error()
				logger.Warn("slide rendering failed",
					slog.String("slide_id", slide.ID),
					slog.String("category", string(domain.CategoryOf(u.Err))),
					slog.Any("error", u.Err),
				)
				emit(ctx, em, stream.ComponentUpdate{Target: slide.ID, Payload: stream.ComponentState{Status: domain.SlideError, Error: slide.Error}})
			} else {
				res.succeeded++
				slide.Status = domain.SlideSuccess
				slide.Error = ""
				slide.ImageURL = u.Value.AccessURL
				slide.ImagePath = u.Value.StablePath
				emit(ctx, em, stream.ComponentUpdate{Target: slide.ID, Payload: stream.ComponentState{Status: domain.SlideSuccess, ImageURL: slide.ImageURL}})
			}
		}

		if persistErr == nil {
			if err := o.setPhase(pctx, session, domain.PhaseRendering, script, nil); err != nil {
				persistErr = err
				logger.Error("session store unavailable, stopping dispatch",
					slog.String("session_id", session.ID),
					slog.Any("error", err),
				)
				stop(err)
			}
		}
		emit(ctx, em, stream.DataModelUpdate{Value: stream.DataModel{Script: script, ProjectID: req.ProjectID}})
	}

	if persistErr != nil && errors.Is(context.Cause(dispatchCtx), persistErr) {
		// Slides skipped because of the store failure are not an interruption.
		res.skipped = 0
	}
	return res, persistErr
}

// finish records the terminal phase on the session and the project.
func (o *Orchestrator) finish(ctx context.Context, req Request, session *domain.Session, script *domain.Script, phase domain.Phase, status domain.ProjectStatus) error {
	if err := o.saveProject(ctx, req.Owner, req.ProjectID, queryOf(session.State), script, status); err != nil {
		return err
	}
	return o.setPhase(ctx, session, phase, script, nil)
}
