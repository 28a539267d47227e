package models

import "time"

// Status tracks a job through its lifecycle. The ingest pipeline only ever
// writes pending; the worker owns every later transition.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Job is one row in the jobs table: a single accepted resize request.
type Job struct {
	Key       string    `json:"filename" db:"key"`
	URL       string    `json:"url" db:"url"`
	Width     int       `json:"width" db:"width"`
	Height    int       `json:"height" db:"height"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResizeTask is the queue payload handed to the worker. Key doubles as the
// storage key and the jobs primary key, so the worker can correlate the
// message back to its row.
type ResizeTask struct {
	Key     string `json:"key"`
	Locator string `json:"locator"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}
