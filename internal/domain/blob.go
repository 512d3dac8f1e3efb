package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is the listing metadata of one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader fetches and lists objects by key prefix.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// BlobDeleter removes objects.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// SnapshotArchiver stores and restores token list snapshots.
type SnapshotArchiver interface {
	Archive(ctx context.Context, list TokenList) error
	Latest(ctx context.Context) (TokenList, error)
}
