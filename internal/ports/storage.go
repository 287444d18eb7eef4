package ports

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the key the object can be read back with.
	ObjectKey string
	Size      int64
}

// ObjectInfo describes a stored object returned by ListObjects.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

// StorageProvider is the remote object store shared by the coordinator and
// the render nodes. Keys are slash separated and scoped by session id.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// ListObjects returns every object whose key starts with prefix, sorted by key.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Commit makes previous writes visible to other readers of the store.
	Commit(ctx context.Context) error
}
