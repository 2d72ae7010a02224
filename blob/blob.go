// Package blob implements the Blob Store Adapter (C1): an S3-compatible
// object store reached through the AWS SDK, generalized from the
// teacher's MinIO/LakeFS/Hetzner storage helpers in storage/s3aws.go into
// a single typed Store with put/get/delete/presign.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"kbengine.dev/common"
)

// sharedHTTPClient pools connections across every Store, grounded on
// storage/s3aws.go's package-level sharedHTTPClient.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Store implements C1's put/get/delete/presign contract against an
// S3-compatible endpoint. Keys are path-like and content-addressed where
// possible (spec section 4.1): docs/{checksum}/raw, pages/{version_id}/
// {page}/image.png.
type Store struct {
	client       *s3.Client
	presignClient *s3.PresignClient
	region       string
}

// Config configures a Store; fields mirror config.BlobConfig so callers
// can pass that struct's values directly at wiring time.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// New constructs a Store, loading AWS SDK config with static credentials
// and an optional custom endpoint (for MinIO-compatible deployments),
// grounded on storage/s3aws.go's config.LoadDefaultConfig +
// s3.NewFromConfig pattern, with retry.NewStandard wired for exponential
// backoff per spec section 4.1's "retried with exponential backoff".
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), 5)
		}),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.HTTPClient = sharedHTTPClient
	})

	return &Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		region:        cfg.Region,
	}, nil
}

// Put uploads bytes to bucket/key and returns the resulting ETag. Per spec
// section 4.1, a single PutObject call is atomic per object and a
// subsequent Get reflects it (read-your-writes, guaranteed by S3-compatible
// backends for non-multipart uploads).
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", common.Transient("put object", err)
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return etag, nil
}

// Get retrieves the bytes stored at bucket/key.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, common.Transient("get object", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

// Delete removes bucket/key. Deletes are idempotent per spec section 4.1:
// deleting an already-absent key is not an error.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return common.Transient("delete object", err)
	}
	return nil
}

// Presign returns a time-limited GET URL for bucket/key.
func (s *Store) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

// EnsureBucket creates bucket if it doesn't already exist, grounded on
// storage/s3aws.go's HeadBucket-then-CreateBucket pattern.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// Key helpers implementing the content-addressed layout from spec section
// 4.1.
func RawDocumentKey(checksum string) string {
	return fmt.Sprintf("docs/%s/raw", checksum)
}

func PageImageKey(versionID string, pageNumber int) string {
	return fmt.Sprintf("pages/%s/%d/image.png", versionID, pageNumber)
}

func PageOCRKey(versionID string, pageNumber int) string {
	return fmt.Sprintf("pages/%s/%d/ocr.json", versionID, pageNumber)
}
