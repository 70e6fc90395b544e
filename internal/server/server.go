package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jo-hoe/imagecaptioner/internal/caption"
	"github.com/jo-hoe/imagecaptioner/internal/common"
	"github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/jobs"
	"github.com/jo-hoe/imagecaptioner/internal/llm"
	"github.com/jo-hoe/imagecaptioner/internal/storage"
	"github.com/jo-hoe/imagecaptioner/internal/util"
)

// Captioner produces a caption for an image stored on disk.
type Captioner interface {
	Generate(ctx context.Context, imagePath, declaredMime string) (string, error)
}

type Service struct {
	Log       *slog.Logger
	Cfg       *config.Config
	Store     jobs.Store
	Cleanup   *jobs.CleanupQueue
	Uploader  *storage.Uploader
	Captioner Captioner
}

type captionResponse struct {
	Caption string `json:"caption"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(loggingMiddleware(svc.logger()), recoveryMiddleware(svc.logger()))
	r.Use(cors.New(corsConfig(svc.Cfg.Server.AllowedOrigin)))

	r.GET(common.PathHealthz, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(common.PathCaption, svc.limitBody, svc.handleCreateCaption)
	r.GET(common.PathRequests+"/:id", svc.handleGetRequest)

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func corsConfig(origin string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = []string{origin}
	cfg.AllowCredentials = true
	return cfg
}

func (svc *Service) logger() *slog.Logger {
	// Discard logger when none is set.
	if svc.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return svc.Log
}

func (svc *Service) limitBody(c *gin.Context) {
	if max := safeInt64(svc.Cfg.Server.BodyLimit); max > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
	}
	c.Next()
}

func (svc *Service) handleCreateCaption(c *gin.Context) {
	log := svc.logger()

	fileHeader, err := c.FormFile(common.FormFieldImage)
	if form := c.Request.MultipartForm; form != nil {
		defer func() { _ = form.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("upload rejected", "reason", "body too large", "limit", svc.Cfg.Server.BodyLimit.String())
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: common.ErrMsgBodyTooLarge})
			return
		}
		log.Debug("no image part", "err", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: common.ErrMsgNoImage})
		return
	}

	img, cleanup, err := svc.Uploader.SaveMultipartImage(fileHeader)
	if err != nil {
		log.Error("store upload", "err", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: common.ErrMsgCaptionFailed})
		return
	}

	job := jobs.Job{
		ID:               util.NewID(),
		ImagePath:        img.Path,
		MimeType:         img.DeclaredMimeType,
		OriginalFilename: img.OriginalFilename,
		SizeBytes:        img.SizeBytes,
		Stage:            jobs.StageReceiving,
		CreatedAt:        time.Now().UTC(),
	}
	jobLog := log.With("job_id", job.ID)

	// Deletion is attempted on every path from here on and never delays or alters the response.
	defer svc.Cleanup.Schedule(jobs.WorkItem{JobID: job.ID, Path: img.Path, Cleanup: cleanup})

	svc.record(jobLog, "persist job", svc.Store.CreateJob(&job))
	jobLog.Info("image captioning started", "mime", img.DeclaredMimeType, "bytes", img.SizeBytes)

	started := time.Now().UTC()
	svc.record(jobLog, "update stage", svc.Store.UpdateStage(job.ID, jobs.StageGenerating, &started))

	text, err := svc.Captioner.Generate(c.Request.Context(), img.Path, img.DeclaredMimeType)
	if err != nil {
		jobLog.Error("caption generation error", "kind", failureKind(err), "err", err, "duration", time.Since(started))
		svc.record(jobLog, "save error", svc.Store.SaveError(job.ID, err.Error(), time.Now().UTC()))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: common.ErrMsgCaptionFailed})
		return
	}

	svc.record(jobLog, "save result", svc.Store.SaveResult(job.ID, time.Now().UTC()))
	jobLog.Info("caption generated", "duration", time.Since(started))
	c.JSON(http.StatusOK, captionResponse{Caption: text})
}

func (svc *Service) handleGetRequest(c *gin.Context) {
	job, err := svc.Store.GetJob(c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: common.ErrMsgRequestNotFound})
			return
		}
		svc.logger().Error("load job", "job_id", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: common.ErrMsgInternal})
		return
	}
	c.JSON(http.StatusOK, jobToOut(job))
}

// record logs bookkeeping failures; they never change the request outcome.
func (svc *Service) record(log *slog.Logger, op string, err error) {
	if err != nil {
		log.Warn("request log", "op", op, "err", err)
	}
}

func failureKind(err error) string {
	var se *llm.StatusError
	switch {
	case errors.As(err, &se):
		return se.Kind()
	case errors.Is(err, caption.ErrIO):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, caption.ErrRemoteAPI):
		return "remote"
	default:
		return "unknown"
	}
}

func jobToOut(job *jobs.Job) gin.H {
	var errVal any
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		errVal = common.ErrMsgCaptionFailed
	}
	return gin.H{
		"job_id":            job.ID,
		"stage":             string(job.Stage),
		"mime_type":         job.MimeType,
		"original_filename": job.OriginalFilename,
		"size_bytes":        job.SizeBytes,
		"created_at":        job.CreatedAt,
		"started_at":        job.StartedAt,
		"completed_at":      job.CompletedAt,
		"error":             errVal,
	}
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"remote", c.Request.RemoteAddr)
	}
}

func recoveryMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered", "path", c.Request.URL.Path, "panic", rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: common.ErrMsgInternal})
			}
		}()
		c.Next()
	}
}
