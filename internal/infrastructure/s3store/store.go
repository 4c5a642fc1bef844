// Package s3store implements [domain.ObjectStore] on S3. Keys resolve
// within the configured sync bucket; FetchURL additionally accepts full
// s3://bucket/key URLs for rollout packages hosted in other buckets.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/edgeshift/edgeshift-poc/edge-agent/internal/domain"
)

// Store implements [domain.ObjectStore] backed by one S3 bucket.
type Store struct {
	Client *s3.Client
	Bucket string
}

func (s *Store) Put(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.Bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.Bucket, key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, s.Bucket, key)
}

func (s *Store) FetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, bucket, key)
}

func (s *Store) get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("object s3://%s/%s: %w", bucket, key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// parseURL splits an s3://bucket/key URL.
func parseURL(rawURL string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(rawURL, scheme) {
		return "", "", fmt.Errorf("%w: unsupported object URL %q", domain.ErrInvalidArgument, rawURL)
	}
	rest := strings.TrimPrefix(rawURL, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed object URL %q", domain.ErrInvalidArgument, rawURL)
	}
	return parts[0], parts[1], nil
}
