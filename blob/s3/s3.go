// Package s3 implements blob.Store on top of Amazon S3, extending the
// teacher's existing aws-sdk-go-v2/smithy-go dependency (brought in for the
// Bedrock model adapter) to also cover object storage rather than
// introducing a new cloud SDK for this one concern.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/PIP-Team-3/paper2notebook/blob"
)

// Client mirrors the subset of the AWS S3 client used by the adapter, so
// callers can pass either the real client or a mock in tests.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner mirrors the subset of *s3.PresignClient the adapter needs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*smithyhttp.PresignedHTTPRequest, error)
}

// Options configures the S3-backed blob store.
type Options struct {
	Client    Client
	Presigner Presigner
	Bucket    string
}

// Store implements blob.Store on top of S3.
type Store struct {
	client    Client
	presigner Presigner
	bucket    string
}

// New builds a Store from the provided S3 client and presigner.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("s3 client is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Store{client: opts.Client, presigner: opts.Presigner, bucket: opts.Bucket}, nil
}

var _ blob.Store = (*Store)(nil)

func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put %q: %w", path, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3 get %q: %w", path, os404{})
		}
		return nil, fmt.Errorf("s3 get %q: %w", path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %q: %w", path, err)
	}
	return data, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %q: %w", path, err)
	}
	return true, nil
}

// SignedURL returns a presigned GET URL valid for ttl, clamped to
// blob.MaxSignedURLTTL.
func (s *Store) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if s.presigner == nil {
		return "", errors.New("s3 store: presigner not configured")
	}
	if ttl <= 0 {
		ttl = blob.DefaultSignedURLTTL
	}
	if ttl > blob.MaxSignedURLTTL {
		ttl = blob.MaxSignedURLTTL
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("s3 presign %q: %w", path, err)
	}
	return req.URL, nil
}

// os404 is a sentinel wrapped error so callers can errors.As without
// importing the s3/types package for a simple not-found check.
type os404 struct{}

func (os404) Error() string { return "object not found" }
