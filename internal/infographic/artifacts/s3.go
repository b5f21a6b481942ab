// Package artifacts stores generated images and exports in an S3-compatible
// bucket and hands out expiring URLs for them.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// S3Client abstracts the S3 API operations used by S3Store.
// The *s3.Client type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner mints expiring GET URLs. *s3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store implements domain.ArtifactStore.
//
// Stable paths are the logical paths given to Put; they map to object keys
// under an optional prefix and never expire. Access URLs are presigned and
// valid for ttl.
type S3Store struct {
	client S3Client
	signer Presigner
	bucket string
	prefix string
	ttl    time.Duration
}

var _ domain.ArtifactStore = (*S3Store)(nil)

func NewS3Store(client S3Client, signer Presigner, bucket, prefix string, ttl time.Duration) *S3Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Store{
		client: client,
		signer: signer,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		ttl:    ttl,
	}
}

func (s *S3Store) key(path string) string {
	path = strings.TrimLeft(path, "/")
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Put uploads data and returns both references to it.
func (s *S3Store) Put(ctx context.Context, data []byte, logicalPath, contentType string) (domain.Asset, error) {
	if logicalPath == "" {
		return domain.Asset{}, fmt.Errorf("storage: empty path")
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(logicalPath)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return domain.Asset{}, domain.Wrap(domain.CategoryPersistence, "storage put", err)
	}

	url, err := s.presign(ctx, logicalPath)
	if err != nil {
		return domain.Asset{}, err
	}
	return domain.Asset{AccessURL: url, StablePath: logicalPath}, nil
}

// Refresh mints a new access URL for an existing object.
func (s *S3Store) Refresh(ctx context.Context, stablePath string) (string, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(stablePath)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return "", fmt.Errorf("storage: refresh %s: %w", stablePath, os.ErrNotExist)
		}
		return "", domain.Wrap(domain.CategoryPersistence, "storage refresh", err)
	}
	return s.presign(ctx, stablePath)
}

// Get opens the object for reading.
// Returns an error wrapping os.ErrNotExist if the key does not exist.
func (s *S3Store) Get(ctx context.Context, stablePath string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(stablePath)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("storage: read %s: %w", stablePath, os.ErrNotExist)
		}
		return nil, domain.Wrap(domain.CategoryPersistence, "storage get", err)
	}
	return out.Body, nil
}

func (s *S3Store) presign(ctx context.Context, path string) (string, error) {
	req, err := s.signer.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", domain.Wrap(domain.CategoryPersistence, "storage presign", err)
	}
	return req.URL, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
