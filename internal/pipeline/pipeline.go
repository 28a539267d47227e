// Package pipeline implements the ingest path for a resize request: validate
// the upload, store the bytes, enqueue the task, record the tracking row.
// Side effects are strictly ordered store -> enqueue -> record and nothing is
// rolled back on a later step's failure; orphans are logged for out-of-band
// reconciliation instead.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"resizeq/internal/models"
)

// BlobStore is the slice of the blob client the pipeline needs.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// TaskQueue hands a resize task to the worker, at-least-once.
type TaskQueue interface {
	Publish(ctx context.Context, task models.ResizeTask) error
}

// JobStore records the tracking row for an accepted upload.
type JobStore interface {
	InsertJob(ctx context.Context, job *models.Job) error
}

// Upload is one inbound submission. Width and Height are kept in their wire
// form and validated here, not upstream.
type Upload struct {
	Data         []byte
	OriginalName string
	ContentType  string
	Width        string
	Height       string
}

type Result struct {
	Key     string
	Locator string
}

type Pipeline struct {
	blobs   BlobStore
	queue   TaskQueue
	jobs    JobStore
	maxSize int64
	log     zerolog.Logger
}

func New(blobs BlobStore, queue TaskQueue, jobs JobStore, maxSize int64, log zerolog.Logger) *Pipeline {
	return &Pipeline{blobs: blobs, queue: queue, jobs: jobs, maxSize: maxSize, log: log}
}

// Submit runs the ingest sequence for one upload. Validation failures happen
// before any external call; each later step aborts the sequence, and steps
// already completed are left in place.
func (p *Pipeline) Submit(ctx context.Context, up Upload) (*Result, error) {
	width, height, err := parseDimensions(up.Width, up.Height)
	if err != nil {
		return nil, err
	}
	if len(up.Data) == 0 {
		return nil, invalid("image file is empty")
	}
	if p.maxSize > 0 && int64(len(up.Data)) > p.maxSize {
		return nil, invalid("image exceeds the %d byte limit", p.maxSize)
	}

	key := newKey(time.Now(), up.OriginalName)

	locator, err := p.blobs.Put(ctx, key, up.ContentType, up.Data)
	if err != nil {
		p.log.Error().Err(err).Str("key", key).Str("completed_steps", "none").
			Msg("blob write failed")
		return nil, &Error{Kind: KindStorage, Step: "store", Err: err}
	}

	task := models.ResizeTask{Key: key, Locator: locator, Width: width, Height: height}
	if err := p.queue.Publish(ctx, task); err != nil {
		p.log.Error().Err(err).Str("key", key).Str("completed_steps", "store").
			Msg("enqueue failed, stored blob is orphaned")
		return nil, &Error{Kind: KindQueue, Step: "enqueue", Err: err}
	}

	job := &models.Job{Key: key, URL: locator, Width: width, Height: height, Status: models.StatusPending}
	if err := p.jobs.InsertJob(ctx, job); err != nil {
		p.log.Error().Err(err).Str("key", key).Str("completed_steps", "store,enqueue").
			Msg("job insert failed, queued task has no tracking row")
		return nil, &Error{Kind: KindPersistence, Step: "record", Err: err}
	}

	p.log.Info().Str("key", key).Int("width", width).Int("height", height).
		Msg("upload accepted")
	return &Result{Key: key, Locator: locator}, nil
}

func parseDimensions(width, height string) (int, int, error) {
	w, err := parsePositive("width", width)
	if err != nil {
		return 0, 0, err
	}
	h, err := parsePositive("height", height)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func parsePositive(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid("%s is required", field)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, invalid("%s must be a positive integer", field)
	}
	return n, nil
}

// newKey derives a storage key from the submission time and the original
// filename's extension. The uuid suffix keeps keys distinct even when two
// requests land in the same nanosecond.
func newKey(t time.Time, originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	return fmt.Sprintf("%d-%s%s", t.UnixNano(), uuid.New().String(), ext)
}
