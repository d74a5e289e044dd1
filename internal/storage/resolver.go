// Package storage resolves submitted image references into URLs a model
// provider can fetch.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kiranshivaraju/greeneye/internal/config"
)

const defaultPresignTTL = 15 * time.Minute

// ErrUnresolvable is returned for object-storage references when no bucket is configured.
var ErrUnresolvable = errors.New("image reference is not an http(s) URL and no object storage is configured")

// Presigner is the subset of *s3.PresignClient used by the resolver.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Resolver passes http(s) URLs through unchanged and presigns object keys.
// References of the form s3://bucket/key use their own bucket; bare keys use
// the configured default bucket.
type Resolver struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
}

// NewResolver creates a Resolver. A nil presigner accepts only http(s) URLs.
func NewResolver(presigner Presigner, bucket string, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &Resolver{presigner: presigner, bucket: bucket, ttl: ttl}
}

// NewS3Resolver builds a Resolver backed by the default AWS credential chain.
// With an empty bucket no AWS configuration is loaded.
func NewS3Resolver(ctx context.Context, cfg config.StorageConfig) (*Resolver, error) {
	if cfg.Bucket == "" {
		return NewResolver(nil, "", cfg.PresignTTL), nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return NewResolver(s3.NewPresignClient(client), cfg.Bucket, cfg.PresignTTL), nil
}

// Resolve returns a URL for ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if isHTTPURL(ref) {
		return ref, nil
	}

	bucket, key, err := r.locate(ref)
	if err != nil {
		return "", err
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", fmt.Errorf("presign s3 object bucket=%s key=%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

func (r *Resolver) locate(ref string) (bucket, key string, err error) {
	if r.presigner == nil {
		return "", "", ErrUnresolvable
	}

	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		key = strings.TrimLeft(key, "/")
		if bucket == "" || key == "" {
			return "", "", fmt.Errorf("malformed s3 reference %q", ref)
		}
		return bucket, key, nil
	}

	if r.bucket == "" {
		return "", "", ErrUnresolvable
	}
	key = strings.TrimLeft(ref, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty object key")
	}
	return r.bucket, key, nil
}

func isHTTPURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
