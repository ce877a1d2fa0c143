package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	minio "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
)

// MockObjectStore mocks the ObjectStore interface.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucket, opts).Error(0)
}

func (m *MockObjectStore) FPutObject(ctx context.Context, bucket, key, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucket, key, filePath, opts)
	info, _ := args.Get(0).(minio.UploadInfo)
	return info, args.Error(1)
}

func reportDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tables"), 0o755))
	for name, body := range map[string]string{
		"SUMMARY.md":                  "# Security Analysis Summary\n",
		"security_scores.csv":         "task_id\n",
		"tables/domain_prompttype.md": "# Domain\n",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestPublish(t *testing.T) {
	defer goleak.VerifyNone(t)
	dir := reportDir(t)
	store := new(MockObjectStore)

	store.On("BucketExists", mock.Anything, "studies").Return(false, nil)
	store.On("MakeBucket", mock.Anything, "studies", minio.MakeBucketOptions{}).Return(nil)
	store.On("FPutObject", mock.Anything, "studies", "runs/a1/SUMMARY.md", filepath.Join(dir, "SUMMARY.md"),
		minio.PutObjectOptions{ContentType: "text/markdown; charset=utf-8"}).Return(minio.UploadInfo{Size: 28}, nil)
	store.On("FPutObject", mock.Anything, "studies", "runs/a1/security_scores.csv", filepath.Join(dir, "security_scores.csv"),
		minio.PutObjectOptions{ContentType: "text/csv"}).Return(minio.UploadInfo{Size: 8}, nil)
	store.On("FPutObject", mock.Anything, "studies", "runs/a1/tables/domain_prompttype.md", filepath.Join(dir, "tables", "domain_prompttype.md"),
		minio.PutObjectOptions{ContentType: "text/markdown; charset=utf-8"}).Return(minio.UploadInfo{Size: 9}, nil)

	p := NewWithStore(store, "studies", "/runs/", zap.NewNop())
	keys, err := p.Publish(context.Background(), dir, "a1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"runs/a1/SUMMARY.md",
		"runs/a1/security_scores.csv",
		"runs/a1/tables/domain_prompttype.md",
	}, keys)
	store.AssertExpectations(t)
}

func TestPublish_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing analysis id", func(t *testing.T) {
		_, err := NewWithStore(new(MockObjectStore), "b", "", zap.NewNop()).Publish(ctx, t.TempDir(), "")
		assert.ErrorContains(t, err, "analysis id is required")
	})

	t.Run("bucket check fails", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("BucketExists", mock.Anything, "b").Return(false, errors.New("access denied"))

		_, err := NewWithStore(store, "b", "", zap.NewNop()).Publish(ctx, t.TempDir(), "a1")
		assert.ErrorContains(t, err, "failed to check bucket b: access denied")
	})

	t.Run("upload fails", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		store := new(MockObjectStore)
		store.On("BucketExists", mock.Anything, "b").Return(true, nil)
		store.On("FPutObject", mock.Anything, "b", mock.Anything, mock.Anything, mock.Anything).
			Return(minio.UploadInfo{}, errors.New("connection refused"))

		_, err := NewWithStore(store, "b", "", zap.NewNop()).Publish(ctx, reportDir(t), "a1")
		assert.ErrorContains(t, err, "connection refused")
		store.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing directory", func(t *testing.T) {
		store := new(MockObjectStore)
		store.On("BucketExists", mock.Anything, "b").Return(true, nil)

		_, err := NewWithStore(store, "b", "", zap.NewNop()).Publish(ctx, filepath.Join(t.TempDir(), "gone"), "a1")
		assert.ErrorContains(t, err, "failed to list report directory")
	})
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a1/SUMMARY.md", NewWithStore(nil, "b", "", zap.NewNop()).ObjectKey("a1", "SUMMARY.md"))
	assert.Equal(t, "analysis/a1/tables/x.csv", NewWithStore(nil, "b", "analysis", zap.NewNop()).ObjectKey("a1", filepath.Join("tables", "x.csv")))
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"STATISTICS.csv":   "text/csv",
		"SUMMARY.md":       "text/markdown; charset=utf-8",
		"tables_data.json": "application/json",
		"findings.sarif":   "application/sarif+json",
		"REPORT.JSON":      "application/json",
		"notes.txt":        "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, ContentType(name), name)
	}
}

func TestNew(t *testing.T) {
	p, err := New(config.StorageConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "studies"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "studies", p.bucket)

	_, err = New(config.StorageConfig{Endpoint: "localhost:9000/bucket/path"}, zap.NewNop())
	assert.Error(t, err)
}
