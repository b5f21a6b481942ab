package artifacts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// mockS3 is a thread-safe in-memory S3 backend.
type mockS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string

	putErr  error
	headErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.contentTypes[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

// fakePresigner returns a URL embedding the key and a counter so that each
// mint is distinguishable.
type fakePresigner struct {
	mu      sync.Mutex
	n       int
	expires time.Duration
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	p.expires = opts.Expires
	u := url.URL{Scheme: "https", Host: *in.Bucket + ".s3.test", Path: "/" + *in.Key, RawQuery: "sig=" + strconv.Itoa(p.n)}
	return &v4.PresignedHTTPRequest{URL: u.String(), Method: "GET"}, nil
}

func newTestStore(t *testing.T, prefix string) (*S3Store, *mockS3, *fakePresigner) {
	t.Helper()
	mock := newMockS3()
	signer := &fakePresigner{}
	return NewS3Store(mock, signer, "bucket", prefix, 30*time.Minute), mock, signer
}

func TestPutReturnsStableAndAccessRefs(t *testing.T) {
	store, mock, signer := newTestStore(t, "")

	asset, err := store.Put(context.Background(), []byte("png"), "users/u/projects/p/slides/a.png", "image/png")
	require.NoError(t, err)

	assert.Equal(t, "users/u/projects/p/slides/a.png", asset.StablePath)
	assert.Contains(t, asset.AccessURL, "/users/u/projects/p/slides/a.png")
	assert.Equal(t, []byte("png"), mock.objects["users/u/projects/p/slides/a.png"])
	assert.Equal(t, "image/png", mock.contentTypes["users/u/projects/p/slides/a.png"])
	assert.Equal(t, 30*time.Minute, signer.expires)
}

func TestRefreshMintsNewURL(t *testing.T) {
	store, _, _ := newTestStore(t, "")
	ctx := context.Background()

	asset, err := store.Put(ctx, []byte("x"), "a.png", "image/png")
	require.NoError(t, err)

	fresh, err := store.Refresh(ctx, asset.StablePath)
	require.NoError(t, err)
	assert.NotEqual(t, asset.AccessURL, fresh)
	assert.Contains(t, fresh, "/a.png")
}

func TestRefreshMissingObject(t *testing.T) {
	store, _, _ := newTestStore(t, "")
	_, err := store.Refresh(context.Background(), "missing.png")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRefreshBackendError(t *testing.T) {
	store, mock, _ := newTestStore(t, "")
	mock.headErr = &apiError{code: "AccessDenied", msg: "denied"}

	_, err := store.Refresh(context.Background(), "a.png")
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, domain.CategoryPersistence, domain.CategoryOf(err))
}

func TestPutBackendError(t *testing.T) {
	store, mock, _ := newTestStore(t, "")
	mock.putErr = errors.New("connection reset")

	_, err := store.Put(context.Background(), []byte("x"), "a.png", "")
	assert.Equal(t, domain.CategoryPersistence, domain.CategoryOf(err))
}

func TestPutEmptyPath(t *testing.T) {
	store, _, _ := newTestStore(t, "")
	_, err := store.Put(context.Background(), []byte("x"), "", "")
	assert.Error(t, err)
}

func TestGetRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t, "assets")
	ctx := context.Background()

	_, err := store.Put(ctx, []byte("hello"), "/a/b.png", "")
	require.NoError(t, err)

	rc, err := store.Get(ctx, "/a/b.png")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Get(ctx, "nope.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestKeyPrefix(t *testing.T) {
	store, mock, _ := newTestStore(t, "/tenant/")
	_, err := store.Put(context.Background(), []byte("x"), "a.png", "")
	require.NoError(t, err)
	_, ok := mock.objects["tenant/a.png"]
	assert.True(t, ok)
}

func TestPaths(t *testing.T) {
	p := SlideImagePath("u1", "p1", "slide_2")
	assert.True(t, strings.HasPrefix(p, "users/u1/projects/p1/slides/slide_2-"))
	assert.True(t, strings.HasSuffix(p, ".png"))
	assert.NotEqual(t, p, SlideImagePath("u1", "p1", "slide_2"))

	e := ExportPath("u1", "p1", "zip")
	assert.True(t, strings.HasPrefix(e, "users/u1/projects/p1/exports/"))
	assert.True(t, strings.HasSuffix(e, ".zip"))
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, isS3NotFound(errNoSuchKey))
	assert.True(t, isS3NotFound(errNotFound))
	assert.False(t, isS3NotFound(&apiError{code: "AccessDenied"}))
	assert.False(t, isS3NotFound(errors.New("plain")))
}
