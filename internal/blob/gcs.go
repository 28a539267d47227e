package blob

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCS stores blobs in a Google Cloud Storage bucket. Credentials come from
// the usual GOOGLE_APPLICATION_CREDENTIALS lookup.
type GCS struct {
	client *storage.Client
	bucket string
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	const op = "blob.NewGCS"
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	const op = "blob.GCS.Put"
	wc := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return "", fmt.Errorf("%s: %v", op, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("%s: %v", op, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key), nil
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = "blob.GCS.Get"
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return rc, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
