package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(ctx context.Context, data []byte, path, contentType string) (domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = data
	m.types[path] = contentType
	return domain.Asset{AccessURL: "https://cdn.test/" + path, StablePath: path}, nil
}

func (m *memStore) Refresh(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return "", os.ErrNotExist
	}
	return "https://cdn.test/" + path + "?fresh=1", nil
}

func (m *memStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func renderedScript(t *testing.T, store *memStore) *domain.Script {
	t.Helper()
	s := &domain.Script{Slides: []domain.Slide{
		{ID: "s1", Title: "Intro", ImagePath: "users/u1/projects/p1/slides/s1.png"},
		{ID: "s2", Title: "Failed one", Description: "no image"},
		{ID: "s3", Title: "Compost", ImagePath: "users/u1/projects/p1/slides/s3.png"},
	}}
	store.objects[s.Slides[0].ImagePath] = testPNG(t, 16, 9)
	store.objects[s.Slides[2].ImagePath] = testPNG(t, 9, 16)
	return s
}

func TestZip(t *testing.T) {
	store := newMemStore()
	exp := NewExporter(store)
	script := renderedScript(t, store)

	res, err := exp.Zip(context.Background(), "u1", "p1", script)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Path, "users/u1/projects/p1/exports/"))
	assert.True(t, strings.HasSuffix(res.Path, ".zip"))
	assert.Equal(t, "application/zip", store.types[res.Path])

	data := store.objects[res.Path]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"01_s1.png", "03_s3.png", "script.json"}, names)

	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	defer rc.Close()
	var got domain.Script
	require.NoError(t, json.NewDecoder(rc).Decode(&got))
	assert.Len(t, got.Slides, 3)
}

func TestZipNothingRendered(t *testing.T) {
	exp := NewExporter(newMemStore())
	_, err := exp.Zip(context.Background(), "u1", "p1", &domain.Script{Slides: []domain.Slide{{ID: "a"}}})
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.Equal(t, domain.CategoryValidation, domain.CategoryOf(err))

	_, err = exp.Zip(context.Background(), "u1", "p1", nil)
	assert.ErrorIs(t, err, domain.ErrNoScript)
}

func TestZipSkipsMissingObject(t *testing.T) {
	store := newMemStore()
	script := renderedScript(t, store)
	delete(store.objects, script.Slides[0].ImagePath)

	res, err := NewExporter(store).Zip(context.Background(), "u1", "p1", script)
	require.NoError(t, err)
	data := store.objects[res.Path]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)
}

func TestPDF(t *testing.T) {
	store := newMemStore()
	script := renderedScript(t, store)
	script.Slides[1].Title = "Café résumé"

	res, err := NewExporter(store).PDF(context.Background(), "u1", "p1", script)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Path, ".pdf"))
	assert.Equal(t, "application/pdf", store.types[res.Path])

	data := store.objects[res.Path]
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Equal(t, 3, bytes.Count(data, []byte("/Type /Page\n")))
}

func TestBuildSlideRequests(t *testing.T) {
	reqs := buildSlideRequests([]deckPage{
		{id: "s1", title: "Intro", imageURL: "https://cdn.test/a.png"},
		{id: "s2"},
	})
	require.Len(t, reqs, 5)

	assert.Equal(t, "page_1", reqs[0].CreateSlide.ObjectId)
	assert.Equal(t, "https://cdn.test/a.png", reqs[1].CreateImage.Url)
	assert.Equal(t, "page_1", reqs[1].CreateImage.ElementProperties.PageObjectId)

	assert.Equal(t, int64(1), reqs[2].CreateSlide.InsertionIndex)
	assert.Equal(t, "TEXT_BOX", reqs[3].CreateShape.ShapeType)
	assert.Equal(t, "s2", reqs[4].InsertText.Text)
}

type slidesBatch struct {
	Requests []map[string]json.RawMessage `json:"requests"`
}

func newSlidesServer(t *testing.T, batch *slidesBatch) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/presentations":
			fmt.Fprint(w, `{"presentationId":"deck123"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/presentations/deck123:batchUpdate":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(batch))
			fmt.Fprint(w, `{"presentationId":"deck123"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSlidesExport(t *testing.T) {
	store := newMemStore()
	script := renderedScript(t, store)

	var batch slidesBatch
	srv := newSlidesServer(t, &batch)
	exp := NewSlidesExporter(store, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	res, err := exp.Export(context.Background(), "u1", "token", "Composting", script)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.google.com/presentation/d/deck123/edit", res.URL)
	assert.Len(t, batch.Requests, 7)
}

func TestSlidesExportMissingObjectGetsTextPage(t *testing.T) {
	store := newMemStore()
	script := renderedScript(t, store)
	delete(store.objects, script.Slides[0].ImagePath)

	var batch slidesBatch
	srv := newSlidesServer(t, &batch)
	exp := NewSlidesExporter(store, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	_, err := exp.Export(context.Background(), "u1", "token", "Composting", script)
	require.NoError(t, err)

	// page 1 is now a title box, slide 3 keeps its image
	require.Len(t, batch.Requests, 8)
	assert.Contains(t, string(batch.Requests[1]["createShape"]), "TEXT_BOX")
	assert.Contains(t, string(batch.Requests[2]["insertText"]), "Intro")
	assert.Contains(t, string(batch.Requests[7]["createImage"]), "s3.png")
}

func TestSlidesExportNeedsToken(t *testing.T) {
	_, err := NewSlidesExporter(newMemStore()).Export(context.Background(), "u1", " ", "t", &domain.Script{})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Equal(t, domain.CategoryAuth, domain.CategoryOf(err))
}

func TestExportRejectsForeignPaths(t *testing.T) {
	store := newMemStore()
	script := renderedScript(t, store)
	victim := "users/u2/projects/p9/slides/secret.png"
	store.objects[victim] = testPNG(t, 4, 4)
	script.Slides[1].ImagePath = victim

	exp := NewExporter(store)
	_, err := exp.Zip(context.Background(), "u1", "p1", script)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = exp.PDF(context.Background(), "u1", "p1", script)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	var batch slidesBatch
	srv := newSlidesServer(t, &batch)
	_, err = NewSlidesExporter(store, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client())).
		Export(context.Background(), "u1", "token", "t", script)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Empty(t, batch.Requests)

	for path := range store.objects {
		assert.False(t, strings.Contains(path, "/exports/"), "no export stored: %s", path)
	}
}
