// Package blobstore wraps the object storage the pipeline reads inputs from
// and writes packaged output into. Jobs reference objects by URI; this
// package resolves those URIs and answers existence questions, nothing more.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/p-dutta/transcoder/internal/apperrors"
)

type objectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store is an S3-backed blob store.
type Store struct {
	client objectAPI
	log    *logrus.Logger
}

func NewStore(ctx context.Context, region string, log *logrus.Logger) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load blob store config: %w", err)
	}
	return &Store{client: s3.NewFromConfig(cfg), log: log}, nil
}

// SplitURI breaks a storage URI into bucket and object path. Accepted forms
// are "s3://bucket/path" and "https://host/bucket/path".
func SplitURI(uri string) (bucket, path string, err error) {
	var rest string
	switch {
	case strings.HasPrefix(uri, "s3://"):
		rest = strings.TrimPrefix(uri, "s3://")
	case strings.HasPrefix(uri, "https://"):
		trimmed := strings.TrimPrefix(uri, "https://")
		// Drop the host segment; the bucket follows it.
		parts := strings.SplitN(trimmed, "/", 2)
		if len(parts) < 2 {
			return "", "", apperrors.New(404, apperrors.CodeNotFound, "invalid storage URI")
		}
		rest = parts[1]
	default:
		return "", "", apperrors.New(404, apperrors.CodeNotFound, "invalid storage URI scheme")
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.New(404, apperrors.CodeNotFound, "invalid storage URI")
	}
	return parts[0], parts[1], nil
}

// ObjectPath returns the bucketless path of a storage URI, used to derive
// CDN-facing URLs. Invalid URIs map to an empty path.
func ObjectPath(uri string) string {
	_, path, err := SplitURI(uri)
	if err != nil {
		return ""
	}
	return path
}

// Exists reports whether the object referenced by uri is present.
func (s *Store) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, path, err := SplitURI(uri)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, apperrors.Wrap(500, apperrors.CodeInternal, "blob store lookup failed", err)
	}
	return true, nil
}

// EnsureOutputLocation writes a zero-byte marker at the output path so the
// engine has a destination prefix to write under, and returns the canonical
// s3 URI for it. The caller-supplied path is kept verbatim; duplicate
// output locations are not rejected at this layer.
func (s *Store) EnsureOutputLocation(ctx context.Context, uri string) (string, error) {
	bucket, path, err := SplitURI(uri)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return "", apperrors.Wrap(500, apperrors.CodeInternal, "failed to prepare output location", err)
	}
	canonical := fmt.Sprintf("s3://%s/%s", bucket, path)
	s.log.WithField("output_uri", canonical).Info("output location prepared")
	return canonical, nil
}
