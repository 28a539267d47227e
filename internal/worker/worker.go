// Package worker consumes resize tasks from the work queue and performs them.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"resizeq/internal/blob"
	"resizeq/internal/models"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// JobStore is the status-transition slice of the metadata store. The from
// guard makes transitions idempotent under redelivery.
type JobStore interface {
	SetStatus(ctx context.Context, key string, from, to models.Status) (bool, error)
}

type Worker struct {
	reader MessageReader
	blobs  blob.Store
	jobs   JobStore
	log    zerolog.Logger
}

func New(reader MessageReader, blobs blob.Store, jobs JobStore, log zerolog.Logger) *Worker {
	return &Worker{reader: reader, blobs: blobs, jobs: jobs, log: log}
}

// Run reads tasks until ctx is cancelled. Individual task failures are logged
// and never stop the loop.
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("read queue message")
			continue
		}

		var task models.ResizeTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			w.log.Error().Err(err).Msg("undecodable queue message dropped")
			continue
		}

		if err := w.Process(ctx, task); err != nil {
			w.log.Error().Err(err).Str("key", task.Key).Msg("resize task failed")
		}
	}
}

// Process performs one resize: claim the job, fetch the original, resize,
// store the result, mark done. Any failure after the claim marks the job
// failed. A task whose row is not in pending state is skipped, which covers
// both redelivered messages and the window where the row does not exist yet.
func (w *Worker) Process(ctx context.Context, task models.ResizeTask) error {
	const op = "worker.Process"

	claimed, err := w.jobs.SetStatus(ctx, task.Key, models.StatusPending, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	if !claimed {
		return nil
	}

	rc, err := w.blobs.Get(ctx, task.Key)
	if err != nil {
		return w.fail(ctx, task.Key, fmt.Errorf("%s: %v", op, err))
	}
	src, err := imaging.Decode(rc)
	rc.Close()
	if err != nil {
		return w.fail(ctx, task.Key, fmt.Errorf("%s: decode: %v", op, err))
	}

	resized := imaging.Resize(src, task.Width, task.Height, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		return w.fail(ctx, task.Key, fmt.Errorf("%s: encode: %v", op, err))
	}

	if _, err := w.blobs.Put(ctx, "resized-"+task.Key, "image/jpeg", buf.Bytes()); err != nil {
		return w.fail(ctx, task.Key, fmt.Errorf("%s: store result: %v", op, err))
	}

	if _, err := w.jobs.SetStatus(ctx, task.Key, models.StatusProcessing, models.StatusDone); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	w.log.Info().Str("key", task.Key).Int("width", task.Width).Int("height", task.Height).
		Msg("resize complete")
	return nil
}

func (w *Worker) fail(ctx context.Context, key string, err error) error {
	if _, serr := w.jobs.SetStatus(ctx, key, models.StatusProcessing, models.StatusFailed); serr != nil {
		w.log.Error().Err(serr).Str("key", key).Msg("could not mark job failed")
	}
	return err
}
