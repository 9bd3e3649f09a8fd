// Package s3 writes monitored files as objects to an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/unkn0wn-root/cassync"
)

type Config struct {
	Endpoint  string // host[:port], no scheme
	Region    string // "" => looked up per bucket
	Bucket    string
	Prefix    string // object key prefix, e.g. "autosave/"
	AccessKey string
	SecretKey string
	Secure    bool
	PathStyle bool // required by most self-hosted stores
}

// Writer puts one object per file id.
type Writer struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ cassync.FileWriter = (*Writer)(nil)

func New(cfg Config) (*Writer, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 writer: endpoint and bucket are required")
	}
	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 writer: %w", err)
	}
	return &Writer{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectName maps a file id to its object key.
func (w *Writer) ObjectName(id string) string {
	return path.Join(w.prefix, strings.TrimPrefix(id, "/"))
}

func (w *Writer) WriteFile(ctx context.Context, f cassync.File) error {
	meta := map[string]string{"name": f.Name}
	if f.ThreadID != "" {
		meta["thread-id"] = f.ThreadID
	}
	_, err := w.client.PutObject(ctx, w.bucket, w.ObjectName(f.ID),
		strings.NewReader(f.Contents), int64(len(f.Contents)),
		minio.PutObjectOptions{
			ContentType:  "text/plain; charset=utf-8",
			UserMetadata: meta,
		})
	if err != nil {
		return fmt.Errorf("put %s: %w", f.ID, err)
	}
	return nil
}
