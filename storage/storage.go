package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage keeps exported document artifacts
type Storage interface {
	// Upload stores data under a key derived from fileID and filename and returns the key
	Upload(ctx context.Context, fileID uuid.UUID, filename string, data io.Reader) (string, error)

	// Download opens a stored artifact
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a stored artifact; deleting a missing key is not an error
	Delete(ctx context.Context, storagePath string) error

	// Locate returns a location the client can download the artifact from
	Locate(ctx context.Context, storagePath string) (string, error)
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType
	LocalPath    string
	S3Bucket     string
	S3Region     string
	AWSAccessKey string
	AWSSecretKey string
	PresignTTL   time.Duration
}

// NewStorage creates the backend selected by cfg.Type
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case StorageTypeS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// objectKey shards artifacts by the first byte of their id
func objectKey(fileID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	base = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "..", "_").Replace(base)
	id := fileID.String()
	return fmt.Sprintf("exports/%s/%s_%s%s", id[:2], id, base, strings.ToLower(ext))
}

// ContentType maps an artifact filename to its MIME type
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
