package service

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/artifacts"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// RefreshAssets returns a copy of script whose image URLs are freshly minted
// from the stable paths. Slides whose object no longer exists lose their URL
// and report the error on the slide. Every path must lie under owner's
// prefix.
func (o *Orchestrator) RefreshAssets(ctx context.Context, owner string, script *domain.Script) (*domain.Script, error) {
	if script == nil {
		return nil, domain.Wrap(domain.CategoryValidation, "refresh assets", domain.ErrNoScript)
	}
	if err := artifacts.CheckOwned(owner, script); err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx)

	out := script.Clone()
	refreshed := 0
	for i := range out.Slides {
		slide := &out.Slides[i]
		if slide.ImagePath == "" {
			continue
		}

		url, err := o.artifacts.Refresh(ctx, slide.ImagePath)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("asset missing on refresh", slog.String("slide_id", slide.ID), slog.String("path", slide.ImagePath))
			slide.ImageURL = ""
			slide.Status = domain.SlideError
			slide.Error = "image no longer exists"
			continue
		}
		if err != nil {
			return nil, err
		}
		slide.ImageURL = url
		refreshed++
	}

	logger.Debug("assets refreshed", slog.Int("count", refreshed))
	return out, nil
}
