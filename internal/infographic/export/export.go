// Package export bundles a rendered script into downloadable formats. All
// exporters read images through their stable paths, never through access
// URLs that may have expired.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-pdf/fpdf"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/artifacts"
	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
	"github.com/mauripsale/infographic-agent-pro/internal/observability"
)

// ErrNothingToExport is returned when no slide has a rendered image.
var ErrNothingToExport = errors.New("no rendered slides to export")

// Result is a stored export.
type Result struct {
	URL  string `json:"url"`
	Path string `json:"path,omitempty"`
}

// Exporter writes ZIP and PDF bundles to the artifact store.
type Exporter struct {
	artifacts domain.ArtifactStore
}

func NewExporter(store domain.ArtifactStore) *Exporter {
	return &Exporter{artifacts: store}
}

type slideImage struct {
	slide domain.Slide
	data  []byte
}

// load reads every rendered slide image. Slides whose object is gone are
// skipped with a warning.
func (e *Exporter) load(ctx context.Context, owner string, script *domain.Script) ([]slideImage, error) {
	if script == nil || len(script.Slides) == 0 {
		return nil, domain.Wrap(domain.CategoryValidation, "export", domain.ErrNoScript)
	}
	if err := artifacts.CheckOwned(owner, script); err != nil {
		return nil, err
	}

	var out []slideImage
	for _, s := range script.Slides {
		if s.ImagePath == "" {
			out = append(out, slideImage{slide: s})
			continue
		}
		rc, err := e.artifacts.Get(ctx, s.ImagePath)
		if errors.Is(err, os.ErrNotExist) {
			observability.LoggerFromContext(ctx).Warn("export: slide image missing",
				slog.String("slide_id", s.ID), slog.String("path", s.ImagePath))
			out = append(out, slideImage{slide: s})
			continue
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read slide image %s: %w", s.ID, err)
		}
		out = append(out, slideImage{slide: s, data: data})
	}
	return out, nil
}

func hasImages(images []slideImage) bool {
	for _, img := range images {
		if len(img.data) > 0 {
			return true
		}
	}
	return false
}

// Zip stores an archive with one PNG per rendered slide plus the script.
func (e *Exporter) Zip(ctx context.Context, owner, projectID string, script *domain.Script) (Result, error) {
	images, err := e.load(ctx, owner, script)
	if err != nil {
		return Result{}, err
	}
	if !hasImages(images) {
		return Result{}, domain.Wrap(domain.CategoryValidation, "export zip", ErrNothingToExport)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, img := range images {
		if len(img.data) == 0 {
			continue
		}
		w, err := zw.Create(fmt.Sprintf("%02d_%s.png", i+1, img.slide.ID))
		if err != nil {
			return Result{}, fmt.Errorf("failed to add slide to zip: %w", err)
		}
		if _, err := w.Write(img.data); err != nil {
			return Result{}, fmt.Errorf("failed to add slide to zip: %w", err)
		}
	}

	w, err := zw.Create("script.json")
	if err != nil {
		return Result{}, fmt.Errorf("failed to add script to zip: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(script); err != nil {
		return Result{}, fmt.Errorf("failed to add script to zip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to finish zip: %w", err)
	}

	return e.store(ctx, buf.Bytes(), artifacts.ExportPath(owner, projectID, "zip"), "application/zip")
}

// PDF stores a landscape document with one page per slide. Slides without
// an image get a text page.
func (e *Exporter) PDF(ctx context.Context, owner, projectID string, script *domain.Script) (Result, error) {
	images, err := e.load(ctx, owner, script)
	if err != nil {
		return Result{}, err
	}
	if !hasImages(images) {
		return Result{}, domain.Wrap(domain.CategoryValidation, "export pdf", ErrNothingToExport)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(false, 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := pdf.GetPageSize()

	for i, img := range images {
		pdf.AddPage()
		if len(img.data) == 0 {
			pdf.SetFont("Helvetica", "B", 24)
			pdf.MultiCell(0, 12, tr(img.slide.Title), "", "L", false)
			pdf.Ln(4)
			pdf.SetFont("Helvetica", "", 14)
			pdf.MultiCell(0, 7, tr(img.slide.Description), "", "L", false)
			continue
		}

		name := fmt.Sprintf("slide-%d", i)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.data))
		if pdf.Err() {
			return Result{}, fmt.Errorf("failed to add slide %s to pdf: %w", img.slide.ID, pdf.Error())
		}

		// fit inside the margins, centered
		maxW, maxH := pageW-20, pageH-20
		w, h := maxW, maxW*info.Height()/info.Width()
		if h > maxH {
			h = maxH
			w = maxH * info.Width() / info.Height()
		}
		pdf.ImageOptions(name, (pageW-w)/2, (pageH-h)/2, w, h, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Result{}, fmt.Errorf("failed to render pdf: %w", err)
	}
	return e.store(ctx, buf.Bytes(), artifacts.ExportPath(owner, projectID, "pdf"), "application/pdf")
}

func (e *Exporter) store(ctx context.Context, data []byte, path, contentType string) (Result, error) {
	asset, err := e.artifacts.Put(ctx, data, path, contentType)
	if err != nil {
		return Result{}, err
	}
	return Result{URL: asset.AccessURL, Path: asset.StablePath}, nil
}
