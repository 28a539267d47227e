package blob

import (
	"context"
	"io"
)

// Store persists raw upload bytes under a caller-generated key and hands back
// a locator the bytes can later be fetched from.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
