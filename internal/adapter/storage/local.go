package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/sqlship/internal/domain"
)

// LocalStorage mirrors the object store layout on disk as
// {basePath}/{bucket}/{key}. Useful for development without S3.
type LocalStorage struct {
	basePath string
}

var _ domain.Uploader = (*LocalStorage)(nil)

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Upload(ctx context.Context, localPath, bucket, key string) error {
	destPath, err := l.GetPath(bucket, key)
	if err != nil {
		return err
	}

	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create dest directory: %w", err)
	}

	// Write beside the target and rename so readers never see a partial object.
	tmpPath := destPath + ".part"
	dest, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := dest.ReadFrom(source); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close dest: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish object: %w", err)
	}

	return nil
}

// GetPath resolves bucket and key to a path under the base directory.
// Keys that would escape the bucket are rejected.
func (l *LocalStorage) GetPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name: %q", bucket)
	}

	bucketDir := filepath.Join(l.basePath, bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(key))
	if key == "" || !strings.HasPrefix(p, bucketDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return p, nil
}
