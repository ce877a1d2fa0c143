// Package artifacts publishes a finished report directory to S3-compatible
// object storage.
package artifacts

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
)

// uploadConcurrency bounds parallel object uploads.
const uploadConcurrency = 4

// ObjectStore is the subset of *minio.Client the publisher uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads report files under <prefix>/<analysis id>/.
type Publisher struct {
	store  ObjectStore
	bucket string
	prefix string
	logger *zap.Logger
}

// New connects to the storage endpoint described by cfg.
func New(cfg config.StorageConfig, logger *zap.Logger) (*Publisher, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewWithStore(mc, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithStore creates a publisher over an existing object store.
func NewWithStore(store ObjectStore, bucket, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("artifacts"),
	}
}

// ObjectKey maps a file path relative to the report directory to its key.
func (p *Publisher) ObjectKey(analysisID, rel string) string {
	return path.Join(p.prefix, analysisID, filepath.ToSlash(rel))
}

// Publish uploads every regular file under dir and returns the object keys
// in lexical order. The bucket is created when missing.
func (p *Publisher) Publish(ctx context.Context, dir, analysisID string) ([]string, error) {
	if analysisID == "" {
		return nil, fmt.Errorf("analysis id is required")
	}
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list report directory: %w", err)
	}

	keys := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, file := range files {
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", file, err)
		}
		key := p.ObjectKey(analysisID, rel)
		keys[i] = key
		g.Go(func() error {
			info, err := p.store.FPutObject(gctx, p.bucket, key, file, minio.PutObjectOptions{
				ContentType: ContentType(file),
			})
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", rel, err)
			}
			p.logger.Debug("Uploaded report file", zap.String("key", key), zap.Int64("size", info.Size))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(keys)
	p.logger.Info("Published report",
		zap.String("bucket", p.bucket),
		zap.String("analysis_id", analysisID),
		zap.Int("objects", len(keys)),
	)
	return keys, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.store.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", p.bucket, err)
	}
	p.logger.Info("Created bucket", zap.String("bucket", p.bucket))
	return nil
}

// ContentType returns the MIME type stored with a report file.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	case ".sarif":
		return "application/sarif+json"
	default:
		return "application/octet-stream"
	}
}
