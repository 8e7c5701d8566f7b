package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/pagepipe/internal/config"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := PageKey("job-1", 3, ".pdf")
	assert.Equal(t, "jobs/job-1/pages/0003.pdf", key)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	payload := []byte("%PDF-1.7 page three")
	require.NoError(t, s.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/pdf"))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := ReadAll(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = s.Upload(context.Background(), "../outside", bytes.NewReader(nil), 0, "text/plain")
	assert.Error(t, err)
}

func TestLocalStorageDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	keys := []string{
		SourceKey("job-1", "doc.pdf"),
		PageKey("job-1", 1, ".pdf"),
		PageKey("job-1", 2, ".pdf"),
		PageKey("job-10", 1, ".pdf"),
	}
	for _, key := range keys {
		require.NoError(t, s.Upload(ctx, key, bytes.NewReader([]byte("x")), 1, "application/pdf"))
	}

	require.NoError(t, s.DeletePrefix(ctx, JobPrefix("job-1")))
	for _, key := range keys[:3] {
		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	ok, err := s.Exists(ctx, keys[3])
	require.NoError(t, err)
	assert.True(t, ok)

	// Deleting an absent prefix is not an error; deleting the root is.
	require.NoError(t, s.DeletePrefix(ctx, JobPrefix("job-1")))
	assert.Error(t, s.DeletePrefix(ctx, ""))
}

func TestSourceKeyStripsDirectories(t *testing.T) {
	assert.Equal(t, "jobs/j/source/report.pdf", SourceKey("j", "/tmp/uploads/report.pdf"))
}

func TestNewStorageDefaultsToLocal(t *testing.T) {
	root := t.TempDir()
	s, err := NewStorage(context.Background(), config.StorageConfig{LocalRoot: root})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(root, "jobs/a")), s.GetURL("jobs/a"))

	_, err = NewStorage(context.Background(), config.StorageConfig{Type: "local"})
	assert.Error(t, err)
}

func TestDetectStorageType(t *testing.T) {
	testCases := []struct {
		endpoint string
		want     StorageType
	}{
		{"abc.r2.cloudflarestorage.com", StorageTypeR2},
		{"s3.us-east-1.amazonaws.com", StorageTypeS3},
		{"localhost:9000", StorageTypeS3Compatible},
	}
	for _, tc := range testCases {
		t.Run(tc.endpoint, func(t *testing.T) {
			assert.Equal(t, tc.want, detectStorageType(tc.endpoint))
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "minio:9000", normalizeEndpoint("http://minio:9000/"))
	assert.Equal(t, "bucket.example.com", normalizeEndpoint("https://bucket.example.com/path/x"))
}

func TestResolveRegion(t *testing.T) {
	assert.Equal(t, "eu-west-1", resolveRegion("eu-west-1", StorageTypeR2))
	assert.Equal(t, "auto", resolveRegion("", StorageTypeR2))
	assert.Equal(t, "us-east-1", resolveRegion("", StorageTypeS3Compatible))
}

func TestS3StorageURLs(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{Endpoint: "http://minio:9000/", Bucket: "pages", AccessKey: "a", SecretKey: "b"}

	s, err := NewS3Storage(ctx, cfg, StorageTypeS3Compatible)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/pages/jobs/j/pages/0001.pdf", s.GetURL(PageKey("j", 1, ".pdf")))

	cfg.PublicURL = "https://cdn.example.com/"
	s, err = NewS3Storage(ctx, cfg, StorageTypeS3Compatible)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/jobs/j/source/a.pdf", s.GetURL(SourceKey("j", "a.pdf")))

	_, err = NewS3Storage(ctx, config.StorageConfig{Endpoint: "minio:9000"}, StorageTypeS3Compatible)
	assert.Error(t, err)
}
