package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"resizeq/internal/models"
	"resizeq/internal/pipeline"
	"resizeq/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeBlobs) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return "http://blobs.test/files/" + key, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []models.ResizeTask
	err   error
}

func (f *fakeQueue) Publish(_ context.Context, task models.ResizeTask) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

// fakeJobs backs both the pipeline's insert and the read side of the HTTP
// layer, mirroring the store contract: newest first, at most limit rows.
type fakeJobs struct {
	mu      sync.Mutex
	rows    []models.Job
	n       int
	insErr  error
	listErr error
}

func (f *fakeJobs) InsertJob(_ context.Context, job *models.Job) error {
	if f.insErr != nil {
		return f.insErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	job.CreatedAt = time.Unix(1700000000, 0).Add(time.Duration(f.n) * time.Millisecond)
	f.rows = append(f.rows, *job)
	return nil
}

func (f *fakeJobs) ListRecent(_ context.Context, limit int) ([]models.Job, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.Job(nil), f.rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobs) GetJob(_ context.Context, key string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].Key == key {
			job := f.rows[i]
			return &job, nil
		}
	}
	return nil, fmt.Errorf("storage.GetJob: %w", storage.ErrNotFound)
}

func newTestServer() (*Server, *fakeBlobs, *fakeQueue, *fakeJobs) {
	cfg := &models.Config{
		StorageBackend: "gcs",
		MaxUploadBytes: 5 << 20,
		ListingLimit:   10,
	}
	blobs := &fakeBlobs{}
	queue := &fakeQueue{}
	jobs := &fakeJobs{}
	pipe := pipeline.New(blobs, queue, jobs, cfg.MaxUploadBytes, zerolog.Nop())
	return NewServer(cfg, pipe, jobs, zerolog.Nop()), blobs, queue, jobs
}

func uploadRequest(t *testing.T, fileBytes []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if fileBytes != nil {
		part, err := w.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(fileBytes); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadThenList(t *testing.T) {
	s, _, _, _ := newTestServer()

	req := uploadRequest(t, bytes.Repeat([]byte{0xAB}, 10*1024),
		map[string]string{"width": "800", "height": "600"})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
		FileURL string `json:"fileUrl"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.FileURL == "" || resp.Message == "" {
		t.Fatalf("expected message and fileUrl, got %+v", resp)
	}
	if !strings.HasPrefix(resp.FileURL, "http://blobs.test/files/") {
		t.Fatalf("unexpected fileUrl %q", resp.FileURL)
	}

	listRec := httptest.NewRecorder()
	s.router.ServeHTTP(listRec, httptest.NewRequest("GET", "/images", nil))
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from listing, got %d", listRec.Code)
	}
	var listed []models.Job
	if err := json.Unmarshal(listRec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 job, got %d", len(listed))
	}
	first := listed[0]
	if first.Width != 800 || first.Height != 600 || first.Status != models.StatusPending {
		t.Fatalf("unexpected listed job %+v", first)
	}
	if first.URL != resp.FileURL {
		t.Fatalf("listed url %q does not match fileUrl %q", first.URL, resp.FileURL)
	}
}

func TestUploadMissingFile(t *testing.T) {
	s, blobs, queue, jobs := newTestServer()

	req := uploadRequest(t, nil, map[string]string{"width": "800", "height": "600"})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected error body, got %v", resp)
	}
	if len(blobs.objects) != 0 || len(queue.tasks) != 0 || len(jobs.rows) != 0 {
		t.Fatal("expected zero side effects for a rejected upload")
	}
}

func TestUploadInvalidDimensions(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
	}{
		{"missing width", map[string]string{"height": "600"}},
		{"missing height", map[string]string{"width": "800"}},
		{"non-numeric", map[string]string{"width": "abc", "height": "600"}},
		{"zero", map[string]string{"width": "0", "height": "600"}},
		{"negative", map[string]string{"width": "800", "height": "-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, blobs, queue, jobs := newTestServer()
			req := uploadRequest(t, []byte("image bytes"), tc.fields)
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(blobs.objects) != 0 || len(queue.tasks) != 0 || len(jobs.rows) != 0 {
				t.Fatal("expected zero side effects for a rejected upload")
			}
		})
	}
}

func TestUploadQueueFailure(t *testing.T) {
	s, blobs, queue, jobs := newTestServer()
	queue.err = fmt.Errorf("broker down")

	req := uploadRequest(t, []byte("image bytes"), map[string]string{"width": "800", "height": "600"})
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["kind"] != "queue" {
		t.Fatalf("expected queue kind, got %v", resp)
	}
	if len(blobs.objects) != 1 {
		t.Fatalf("expected stored blob to remain, got %d objects", len(blobs.objects))
	}
	if len(jobs.rows) != 0 {
		t.Fatalf("expected no job row, got %d", len(jobs.rows))
	}

	// The server keeps serving unrelated requests after a failure.
	queue.err = nil
	req = uploadRequest(t, []byte("image bytes"), map[string]string{"width": "800", "height": "600"})
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after recovery, got %d", rec.Code)
	}
}

func TestListReturnsLimitNewestFirst(t *testing.T) {
	s, _, _, jobs := newTestServer()

	for i := 0; i < 15; i++ {
		job := models.Job{
			Key:    fmt.Sprintf("key-%02d", i),
			URL:    fmt.Sprintf("http://blobs.test/files/key-%02d", i),
			Width:  100 + i,
			Height: 200 + i,
			Status: models.StatusPending,
		}
		if err := jobs.InsertJob(context.Background(), &job); err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/images", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var listed []models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listed) != 10 {
		t.Fatalf("expected exactly 10 jobs, got %d", len(listed))
	}
	if listed[0].Key != "key-14" {
		t.Fatalf("expected newest job first, got %q", listed[0].Key)
	}
	for i := 1; i < len(listed); i++ {
		if !listed[i].CreatedAt.Before(listed[i-1].CreatedAt) {
			t.Fatalf("listing not in strictly decreasing created_at order at index %d", i)
		}
	}
}

func TestListFailure(t *testing.T) {
	s, _, _, jobs := newTestServer()
	jobs.listErr = fmt.Errorf("connection refused")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/images", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected error body, got %v", resp)
	}
}

func TestGetImage(t *testing.T) {
	s, _, _, jobs := newTestServer()
	job := models.Job{Key: "known.png", URL: "http://blobs.test/files/known.png",
		Width: 10, Height: 20, Status: models.StatusPending}
	if err := jobs.InsertJob(context.Background(), &job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/image/known.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if got.Key != "known.png" || got.Status != models.StatusPending {
		t.Fatalf("unexpected job %+v", got)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/image/unknown.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
