package storage

import (
	"context"
	"fmt"
	"io"
	"path"
)

// ObjectStorage stores rendered page inputs and uploaded source documents.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// DeletePrefix deletes every object under prefix
	DeletePrefix(ctx context.Context, prefix string) error
}

// JobPrefix is the key prefix shared by every object of a job.
func JobPrefix(jobID string) string {
	return path.Join("jobs", jobID) + "/"
}

// SourceKey is the object key of a job's uploaded document.
func SourceKey(jobID, fileName string) string {
	return path.Join("jobs", jobID, "source", path.Base(fileName))
}

// PageKey is the object key of one rendered page input.
func PageKey(jobID string, pageNumber int, ext string) string {
	return path.Join("jobs", jobID, "pages", fmt.Sprintf("%04d%s", pageNumber, ext))
}

// ReadAll downloads an object fully into memory.
func ReadAll(ctx context.Context, s ObjectStorage, key string) ([]byte, error) {
	rc, err := s.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}
