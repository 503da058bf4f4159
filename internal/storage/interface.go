package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists at a key
var ErrNotFound = errors.New("object not found")

// Metadata describes a stored object
type Metadata struct {
	ContentType string            `json:"contentType,omitempty"`
	JobID       string            `json:"jobId,omitempty"`
	CreatedAt   time.Time         `json:"createdAt,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// Storage archives delivery records.
// Implementations are the local filesystem and S3-compatible object storage.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object at the given key
	Delete(ctx context.Context, key string) error

	// List returns all keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)
