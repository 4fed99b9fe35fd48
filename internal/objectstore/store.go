// Package objectstore uploads report images and returns their public URLs.
package objectstore

import (
	"context"
	"errors"
	"io"
)

var ErrDisabled = errors.New("object store not configured")

// Store saves a blob under key and returns a durable download URL.
type Store interface {
	Put(ctx context.Context, key string, data io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

var (
	_ Store = (*FTPStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
