package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/uiverify/internal/s3client"
)

// FileSink writes artifacts below a local directory.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink rooted at dir. The directory is created lazily.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir is the sink's root directory.
func (s *FileSink) Dir() string { return s.dir }

func (s *FileSink) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("artifact: key %q escapes the artifact directory", key)
	}
	dest := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("artifact: create directory: %w", err)
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("artifact: write %s: %w", dest, err)
	}
	return dest, nil
}

// S3Sink uploads artifacts to an S3-compatible bucket and returns public URLs.
type S3Sink struct {
	client *s3client.Client
}

func NewS3Sink(client *s3client.Client) *S3Sink {
	return &S3Sink{client: client}
}

func (s *S3Sink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return s.client.Upload(ctx, key, data, contentType)
}

// MultiSink writes to every sink in order and returns the last location.
// The first failure stops the write.
type MultiSink []Sink

func (m MultiSink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	var loc string
	for _, s := range m {
		l, err := s.Put(ctx, key, data, contentType)
		if err != nil {
			return "", err
		}
		loc = l
	}
	return loc, nil
}
