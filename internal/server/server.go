package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"resizeq/internal/models"
	"resizeq/internal/pipeline"
	"resizeq/internal/storage"
)

// JobReader is the read-only slice of the metadata store the HTTP layer uses.
type JobReader interface {
	ListRecent(ctx context.Context, limit int) ([]models.Job, error)
	GetJob(ctx context.Context, key string) (*models.Job, error)
}

type Server struct {
	cfg    *models.Config
	router *gin.Engine
	pipe   *pipeline.Pipeline
	jobs   JobReader
	log    zerolog.Logger
}

func NewServer(cfg *models.Config, pipe *pipeline.Pipeline, jobs JobReader, log zerolog.Logger) *Server {
	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Static("/web", "./web")
	if cfg.StorageBackend == "local" {
		r.Static("/files", cfg.StoragePath)
	}

	s := &Server{cfg: cfg, router: r, pipe: pipe, jobs: jobs, log: log}

	r.POST("/upload", s.handleUpload)
	r.GET("/images", s.handleListImages)
	r.GET("/image/:key", s.handleGetImage)
	r.GET("/", func(c *gin.Context) {
		c.File("./web/index.html")
	})

	return s
}

func (s *Server) Start() error {
	return s.router.Run(s.cfg.ServerAddr)
}

func (s *Server) handleUpload(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		s.log.Error().Err(err).Msg("open multipart file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer src.Close()

	// Read one byte past the cap so the pipeline can reject oversize uploads.
	data, err := io.ReadAll(io.LimitReader(src, s.cfg.MaxUploadBytes+1))
	if err != nil {
		s.log.Error().Err(err).Msg("read multipart file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}

	res, err := s.pipe.Submit(c.Request.Context(), pipeline.Upload{
		Data:         data,
		OriginalName: file.Filename,
		ContentType:  file.Header.Get("Content-Type"),
		Width:        c.PostForm("width"),
		Height:       c.PostForm("height"),
	})
	if err != nil {
		s.respondSubmitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "file stored and queued for resizing",
		"fileUrl": res.Locator,
	})
}

// respondSubmitError maps pipeline error kinds to status codes. Validation
// messages are safe for clients; everything else gets a generic body plus the
// machine-readable kind, with detail kept in the pipeline's own logs.
func (s *Server) respondSubmitError(c *gin.Context, err error) {
	var pe *pipeline.Error
	if errors.As(err, &pe) && pe.Kind == pipeline.KindValidation {
		c.JSON(http.StatusBadRequest, gin.H{"error": pe.Err.Error()})
		return
	}
	kind := pipeline.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed", "kind": string(kind)})
}

func (s *Server) handleListImages(c *gin.Context) {
	jobs, err := s.jobs.ListRecent(c.Request.Context(), s.cfg.ListingLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("listing query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list images"})
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) handleGetImage(c *gin.Context) {
	job, err := s.jobs.GetJob(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown image"})
			return
		}
		s.log.Error().Err(err).Str("key", c.Param("key")).Msg("job lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load image"})
		return
	}
	c.JSON(http.StatusOK, job)
}
