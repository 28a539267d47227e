package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps blobs on the local filesystem. Files land under dir and are
// served back by the HTTP layer from the /files route, so the locator is
// baseURL + /files/ + key.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	const op = "blob.NewLocal"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	const op = "blob.Local.Put"
	if err := os.WriteFile(filepath.Join(l.dir, key), data, 0644); err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	return l.baseURL + "/files/" + key, nil
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = "blob.Local.Get"
	f, err := os.Open(filepath.Join(l.dir, key))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return f, nil
}
