package transport

import (
	"bytes"
	"net/http"
	"strings"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/extractor"
	"github.com/anime-shed/meter-reader-go/internal/textfilter"
	"github.com/anime-shed/meter-reader-go/pkg/models"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

func assessQuality(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := readUpload(c, deps)
		if err != nil {
			respondAppError(c, "invalid image", err)
			return
		}
		report, err := deps.Reports.Report(f)
		if err != nil {
			respondAppError(c, "quality assessment failed", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func preprocessImage(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := readUpload(c, deps)
		if err != nil {
			respondAppError(c, "invalid image", err)
			return
		}
		gray, err := deps.Preprocessor.Process(f)
		if err != nil {
			respondAppError(c, "preprocessing failed", err)
			return
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, gray, imaging.PNG); err != nil {
			respondAppError(c, "failed to encode image", apperrors.NewInternalError("png encode", err))
			return
		}
		c.Data(http.StatusOK, "image/png", buf.Bytes())
	}
}

type filterResponse struct {
	textfilter.Result
	InvalidPatterns []string `json:"invalid_patterns,omitempty"`
}

func filterText() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FilterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}
		cfg, err := parseFilter(req.Config)
		if err != nil {
			respondAppError(c, "invalid filter", err)
			return
		}
		if cfg == nil {
			def := textfilter.DefaultConfig()
			cfg = &def
		}

		engine, errs := cfg.Compile()
		resp := filterResponse{Result: engine.Filter(req.Text)}
		for _, e := range errs {
			if appErr, ok := apperrors.AsAppError(e); ok {
				resp.InvalidPatterns = append(resp.InvalidPatterns, appErr.Context["pattern"])
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func extractValue(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		x := deps.Extractor
		if strings.TrimSpace(req.Label) != "" {
			field := extractor.Field{Name: "custom", Label: req.Label, Unit: req.Unit}
			if field.Unit == "" {
				field.Unit = x.Field().Unit
			}
			custom, err := extractor.New(field)
			if err != nil {
				respondAppError(c, "invalid field", apperrors.NewValidationError(err.Error(), err))
				return
			}
			x = custom
		}

		value, ok := x.Extract(req.Text)
		if !ok {
			respondAppError(c, "extraction failed", apperrors.NewNoValueFoundError(x.Field().Label, req.Text, ""))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"field": x.Field(),
			"value": value,
		})
	}
}

func metrics(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := gin.H{}
		if deps.Metrics != nil {
			for k, v := range deps.Metrics.GetMetrics() {
				out[k] = v
			}
		}
		if deps.Hub != nil {
			out["event_viewers"] = deps.Hub.GetClientCount()
		}
		c.JSON(http.StatusOK, out)
	}
}
