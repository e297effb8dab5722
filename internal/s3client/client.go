// Package s3client publishes run artifacts to an S3-compatible bucket
// (Tigris, MinIO, AWS). Tests run against gofakes3 via TestClient.
package s3client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned when a requested artifact does not exist.
var ErrObjectNotFound = errors.New("s3client: object not found")

// artifactCacheControl marks uploads as immutable. A re-run under the same
// key overwrites the object, so clients still revalidate after a day.
const artifactCacheControl = "public, max-age=86400"

// Config holds the connection settings for the artifact bucket.
type Config struct {
	// Endpoint overrides the S3 endpoint, e.g. "https://fly.storage.tigris.dev".
	// Empty uses AWS.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL is the base under which uploaded keys are publicly readable.
	PublicURL string
	// UsePathStyle is needed for gofakes3 and MinIO.
	UsePathStyle bool
	// MaxAttempts bounds SDK retries per request. Zero keeps the SDK default.
	MaxAttempts int
}

// Client reads and writes artifacts under an optional key prefix.
type Client struct {
	api       *s3.Client
	bucket    string
	prefix    string
	publicURL string
}

// New builds a client from static credentials when given, falling back to
// the SDK's default credential chain.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("s3client: bucket name is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3client: load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewFromS3Client(api, cfg.BucketName, cfg.PublicURL), nil
}

// NewFromS3Client wraps an already configured SDK client.
func NewFromS3Client(api *s3.Client, bucket, publicURL string) *Client {
	return &Client{api: api, bucket: bucket, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// WithPrefix returns a copy whose keys live under prefix, e.g. a run id.
func (c *Client) WithPrefix(prefix string) *Client {
	clone := *c
	clone.prefix = strings.Trim(path.Join(c.prefix, strings.Trim(prefix, "/")), "/")
	return &clone
}

// BucketName returns the configured bucket.
func (c *Client) BucketName() string { return c.bucket }

func (c *Client) key(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if c.prefix == "" {
		return rel
	}
	return c.prefix + "/" + rel
}

// CheckBucket verifies the bucket exists and the credentials can reach it.
func (c *Client) CheckBucket(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3client: bucket %q unreachable: %w", c.bucket, err)
	}
	return nil
}

// Upload stores data at rel as a public-read object and returns its public URL.
func (c *Client) Upload(ctx context.Context, rel string, data []byte, contentType string) (string, error) {
	k := c.key(rel)
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(k),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(artifactCacheControl),
		ACL:          types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3client: upload %q: %w", k, err)
	}
	return c.URL(rel), nil
}

// Download returns the bytes stored at rel, or ErrObjectNotFound.
func (c *Client) Download(ctx context.Context, rel string) ([]byte, error) {
	k := c.key(rel)
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(k)})
	if err != nil {
		var noKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3client: download %q: %w", k, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3client: read %q: %w", k, err)
	}
	return data, nil
}

// Keys lists every key under sub relative to the client's prefix.
func (c *Client) Keys(ctx context.Context, sub string) ([]string, error) {
	scope := c.key(sub)
	var keys []string
	pages := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(scope),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3client: list %q: %w", scope, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if c.prefix != "" {
				k = strings.TrimPrefix(k, c.prefix+"/")
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Remove deletes rel. Removing a missing key is not an error.
func (c *Client) Remove(ctx context.Context, rel string) error {
	k := c.key(rel)
	if _, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(c.bucket), Key: aws.String(k)}); err != nil {
		return fmt.Errorf("s3client: remove %q: %w", k, err)
	}
	return nil
}

// URL is the public URL of rel.
func (c *Client) URL(rel string) string {
	return c.publicURL + "/" + c.key(rel)
}
