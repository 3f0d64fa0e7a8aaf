package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/config"
	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/extractor"
	"github.com/anime-shed/meter-reader-go/internal/hub"
	"github.com/anime-shed/meter-reader-go/internal/livefeed"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/observer"
	"github.com/anime-shed/meter-reader-go/internal/preprocess"
	"github.com/anime-shed/meter-reader-go/internal/quality"
	"github.com/anime-shed/meter-reader-go/internal/service"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/anime-shed/meter-reader-go/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dependencies are the components the routes call into. Monitor, Feed and
// Hub may be nil, which disables the live routes.
type Dependencies struct {
	Scans        service.ScanService
	Frames       *service.FrameResolver
	Reports      *services.QualityReportService
	Preprocessor preprocess.Preprocessor
	Extractor    *extractor.Extractor
	Metrics      *observer.MetricsObserver
	Publisher    observer.Subject
	Monitor      *quality.Monitor
	Feed         *livefeed.Feed
	Hub          *hub.Hub
	// BaseContext outlives requests; the monitor runs under it
	BaseContext context.Context
}

func NewHandler(deps Dependencies, cfg *config.Config) http.Handler {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.POST("/quality", assessQuality(deps))
	r.POST("/preprocess", preprocessImage(deps))
	r.POST("/filter", filterText())
	r.POST("/extract", extractValue(deps))
	r.GET("/metrics", metrics(deps))

	scans := r.Group("/scans")
	{
		scans.POST("/capture", captureScan(deps, cfg))
		scans.GET("/jobs/current", currentJob(deps))
		scans.DELETE("/jobs/current", cancelJob(deps))
		scans.POST("/text", scanText(deps, cfg))
		scans.POST("/manual", submitManual(deps, cfg))
		scans.GET("", listScans(deps, cfg))
		scans.GET("/:id", getScan(deps, cfg))
	}

	if deps.Monitor != nil {
		r.GET("/monitor", monitorStatus(deps))
		r.POST("/monitor/start", startMonitor(deps))
		r.POST("/monitor/stop", stopMonitor(deps))
	}
	if deps.Feed != nil {
		r.GET("/ws/camera", cameraSocket(deps, cfg))
	}
	if deps.Hub != nil {
		r.GET("/ws/events", func(c *gin.Context) {
			deps.Hub.ServeWS(c.Writer, c.Request)
		})
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError answers with the status code carried by err
func respondAppError(c *gin.Context, message string, err error) {
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	fields := logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}
	entry := logger.WithError(err).WithFields(fields)
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request failed")
	}

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		resp.Type = string(appErr.Type)
		resp.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		resp.Context = appErr.Context
		if resp.Error == "" {
			resp.Error = string(appErr.Type)
		}
	}
	c.AbortWithStatusJSON(code, resp)
}
