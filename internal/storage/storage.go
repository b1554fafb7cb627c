// Package storage defines where published files live.
// The local implementation keeps them on a filesystem tree; the MinIO
// implementation works with any S3-compatible provider (MinIO, AWS S3).
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("storage: object not found")

// Storage is the interface for publishing, retrieving and removing files.
// Keys are slash-separated, e.g. "i/cat.png".
type Storage interface {
	// Place moves the spooled file at tmpPath to key, replacing any existing object.
	Place(ctx context.Context, key, tmpPath string) error
	// Remove deletes the object at key.
	Remove(ctx context.Context, key string) error
	// Open returns the object's content and modification time.
	Open(ctx context.Context, key string) (io.ReadSeekCloser, time.Time, error)
}
