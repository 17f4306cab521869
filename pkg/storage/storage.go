package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("stored file not found")

// FileStore persists uploaded result files under generated keys.
type FileStore interface {
	// Put writes r under key. A failed write leaves nothing behind.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
