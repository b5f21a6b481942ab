package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/artifacts"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

const presentationURL = "https://docs.google.com/presentation/d/%s/edit"

// Slide size of a default 16:9 deck, in EMU.
const (
	deckWidthEMU  = 9144000
	deckHeightEMU = 5143500
)

// SlidesExporter creates a Google Slides deck in the caller's Drive using
// their OAuth access token.
type SlidesExporter struct {
	artifacts domain.ArtifactStore
	opts      []option.ClientOption
}

// NewSlidesExporter returns a SlidesExporter. Extra client options are
// appended to the per-request token source.
func NewSlidesExporter(store domain.ArtifactStore, opts ...option.ClientOption) *SlidesExporter {
	return &SlidesExporter{artifacts: store, opts: opts}
}

// Export creates the deck and returns its edit URL. Images are inserted from
// freshly minted access URLs so Google can fetch them. A slide whose object
// is gone gets a title page instead.
func (e *SlidesExporter) Export(ctx context.Context, owner, accessToken, title string, script *domain.Script) (Result, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Result{}, domain.Wrap(domain.CategoryAuth, "export slides", domain.ErrMissingCredential)
	}
	if script == nil || len(script.Slides) == 0 {
		return Result{}, domain.Wrap(domain.CategoryValidation, "export slides", domain.ErrNoScript)
	}
	if err := artifacts.CheckOwned(owner, script); err != nil {
		return Result{}, err
	}

	pages := make([]deckPage, 0, len(script.Slides))
	for _, s := range script.Slides {
		page := deckPage{id: s.ID, title: s.Title}
		if s.ImagePath != "" {
			url, err := e.artifacts.Refresh(ctx, s.ImagePath)
			if errors.Is(err, os.ErrNotExist) {
				observability.LoggerFromContext(ctx).Warn("export slides: slide image missing",
					slog.String("slide_id", s.ID), slog.String("path", s.ImagePath))
				pages = append(pages, page)
				continue
			}
			if err != nil {
				return Result{}, err
			}
			page.imageURL = url
		}
		pages = append(pages, page)
	}

	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}, e.opts...)
	svc, err := slides.NewService(ctx, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create slides client: %w", err)
	}

	if title == "" {
		title = "Infographic"
	}
	deck, err := svc.Presentations.Create(&slides.Presentation{Title: title}).Context(ctx).Do()
	if err != nil {
		return Result{}, domain.Wrap(domain.CategoryTransient, "create presentation", err)
	}

	_, err = svc.Presentations.BatchUpdate(deck.PresentationId, &slides.BatchUpdatePresentationRequest{
		Requests: buildSlideRequests(pages),
	}).Context(ctx).Do()
	if err != nil {
		return Result{}, domain.Wrap(domain.CategoryTransient, "fill presentation", err)
	}

	return Result{URL: fmt.Sprintf(presentationURL, deck.PresentationId)}, nil
}

type deckPage struct {
	id       string
	title    string
	imageURL string
}

// buildSlideRequests adds one blank slide per page holding either the full
// bleed image or, without one, a title text box.
func buildSlideRequests(pages []deckPage) []*slides.Request {
	reqs := make([]*slides.Request, 0, 2*len(pages))
	for i, p := range pages {
		pageID := fmt.Sprintf("page_%d", i+1)
		reqs = append(reqs, &slides.Request{
			CreateSlide: &slides.CreateSlideRequest{
				ObjectId:             pageID,
				InsertionIndex:       int64(i),
				SlideLayoutReference: &slides.LayoutReference{PredefinedLayout: "BLANK"},
			},
		})

		props := &slides.PageElementProperties{
			PageObjectId: pageID,
			Size: &slides.Size{
				Width:  &slides.Dimension{Magnitude: deckWidthEMU, Unit: "EMU"},
				Height: &slides.Dimension{Magnitude: deckHeightEMU, Unit: "EMU"},
			},
			Transform: &slides.AffineTransform{ScaleX: 1, ScaleY: 1, Unit: "EMU"},
		}

		if p.imageURL != "" {
			reqs = append(reqs, &slides.Request{
				CreateImage: &slides.CreateImageRequest{
					ObjectId:          pageID + "_image",
					Url:               p.imageURL,
					ElementProperties: props,
				},
			})
			continue
		}

		boxID := pageID + "_title"
		text := p.title
		if text == "" {
			text = p.id
		}
		reqs = append(reqs,
			&slides.Request{
				CreateShape: &slides.CreateShapeRequest{
					ObjectId:          boxID,
					ShapeType:         "TEXT_BOX",
					ElementProperties: props,
				},
			},
			&slides.Request{
				InsertText: &slides.InsertTextRequest{ObjectId: boxID, Text: text},
			},
		)
	}
	return reqs
}
