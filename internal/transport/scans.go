package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/config"
	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/service"
	"github.com/anime-shed/meter-reader-go/internal/textfilter"
	"github.com/anime-shed/meter-reader-go/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// parseFilter accepts a FilterConfig document or the name of a preset as a
// JSON string. An empty value means the service default.
func parseFilter(raw json.RawMessage) (*textfilter.Config, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var name string
		if err := json.Unmarshal([]byte(trimmed), &name); err != nil {
			return nil, apperrors.NewValidationError("invalid filter preset", err)
		}
		preset, ok := textfilter.Presets[name]
		if !ok {
			return nil, apperrors.NewValidationError("unknown filter preset", nil).WithContext("preset", name)
		}
		cfg := preset()
		return &cfg, nil
	}
	cfg, err := textfilter.ParseConfig(json.RawMessage(trimmed))
	if err != nil {
		return nil, apperrors.NewValidationError("invalid filter config", err)
	}
	return &cfg, nil
}

// readUpload decodes the "image" form field
func readUpload(c *gin.Context, deps Dependencies) (*frame.Frame, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, apperrors.NewValidationError("image form field is required", err)
	}
	file, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read uploaded image", err)
	}
	defer file.Close()
	return deps.Frames.FromUpload(file)
}

func captureScan(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		wait, _ := strconv.ParseBool(c.Query("wait"))
		timeout := cfg.RequestTimeout
		if wait {
			timeout = max(timeout, cfg.CaptureTimeout)
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
			"wait":       wait,
		}).Info("Processing capture request")

		req, err := buildCaptureRequest(ctx, c, deps)
		if err != nil {
			respondAppError(c, "invalid capture request", err)
			return
		}

		job, err := deps.Scans.StartCapture(ctx, req)
		if err != nil {
			respondAppError(c, "capture not started", err)
			return
		}

		if !wait {
			c.JSON(http.StatusAccepted, job.Status())
			return
		}

		status := job.Wait(ctx)
		switch {
		case !status.Done():
			c.JSON(http.StatusAccepted, status)
		case status.State == models.JobCompleted:
			c.JSON(http.StatusOK, status)
		default:
			respondAppError(c, "capture "+status.State, job.Err())
		}
	}
}

func buildCaptureRequest(ctx context.Context, c *gin.Context, deps Dependencies) (service.CaptureRequest, error) {
	var req service.CaptureRequest

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		f, err := readUpload(c, deps)
		if err != nil {
			return req, err
		}
		filter, err := parseFilter(json.RawMessage(c.PostForm("filter")))
		if err != nil {
			return req, err
		}
		req.Frame = f
		req.Source = models.SourceUpload
		req.Expected = c.PostForm("expected")
		req.Filter = filter
		return req, nil
	}

	var body models.CaptureSourceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			return req, apperrors.NewValidationError("invalid request format", err)
		}
	}
	if c.Query("source") == models.SourceLive {
		body.Live = true
	}

	f, source, err := deps.Frames.Resolve(ctx, body)
	if err != nil {
		return req, err
	}
	filter, err := parseFilter(body.Filter)
	if err != nil {
		return req, err
	}
	req.Frame = f
	req.Source = source
	req.Expected = body.Expected
	req.Filter = filter
	return req, nil
}

func currentJob(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := deps.Scans.CurrentJob()
		if !ok {
			respondAppError(c, "no capture job", apperrors.NewNotFoundError("no capture has been started", nil))
			return
		}
		c.JSON(http.StatusOK, job.Status())
	}
}

func cancelJob(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Scans.Cancel(); err != nil {
			respondAppError(c, "cancel failed", err)
			return
		}
		job, _ := deps.Scans.CurrentJob()
		c.JSON(http.StatusAccepted, job.Status())
	}
}

func scanText(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.TextScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		filter, err := parseFilter(req.Filter)
		if err != nil {
			respondAppError(c, "invalid filter", err)
			return
		}

		result, err := deps.Scans.ExtractFromText(ctx, req.Text, filter)
		if err != nil {
			respondAppError(c, "text scan failed", err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func submitManual(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		var req models.ManualScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		record, err := deps.Scans.SubmitManual(ctx, req)
		if err != nil {
			respondAppError(c, "manual reading rejected", err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func listScans(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		records, err := deps.Scans.History(ctx)
		if err != nil {
			respondAppError(c, "failed to list scans", err)
			return
		}
		if records == nil {
			records = []models.ScanRecord{}
		}
		c.JSON(http.StatusOK, gin.H{
			"scans": records,
			"count": len(records),
			"time":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func getScan(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		record, err := deps.Scans.Get(ctx, c.Param("id"))
		if err != nil {
			respondAppError(c, "failed to get scan", err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}
