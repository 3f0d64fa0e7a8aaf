// Package tesseract adapts gosseract to the recognizer contract.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/recognizer"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// tessClient is the subset of *gosseract.Client the engine drives.
type tessClient interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetWhitelist(whitelist string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

var _ recognizer.Recognizer = (*Engine)(nil)

// Options configures the engine
type Options struct {
	Language  string
	Whitelist string
	Timeout   time.Duration
}

// DefaultOptions returns English with the meter whitelist and a 20s
// per-call timeout.
func DefaultOptions() Options {
	return Options{
		Language:  "eng",
		Whitelist: recognizer.DefaultWhitelist,
		Timeout:   20 * time.Second,
	}
}

// Engine owns a single gosseract client. Calls are serialized on
// it; the client is created on Init or the first Recognize and released by
// Close.
type Engine struct {
	opts          Options
	clientFactory func() tessClient
	log           *logrus.Entry

	mu     sync.Mutex
	client tessClient
	closed bool
}

// New constructs a Tesseract-backed recognizer.
func New(opts Options) *Engine {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Whitelist == "" {
		opts.Whitelist = recognizer.DefaultWhitelist
	}
	return &Engine{
		opts:          opts,
		clientFactory: func() tessClient { return gosseract.NewClient() },
		log:           logger.Component("recognizer"),
	}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewCancelledError("recognizer init cancelled", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.ensureClient()
	return err
}

// ensureClient must be called with mu held.
func (e *Engine) ensureClient() (tessClient, error) {
	if e.closed {
		return nil, apperrors.NewRecognizerUnavailableError("recognizer is closed", nil)
	}
	if e.client != nil {
		return e.client, nil
	}
	c := e.clientFactory()
	if err := c.SetLanguage(e.opts.Language); err != nil {
		_ = c.Close()
		return nil, apperrors.NewRecognizerUnavailableError("failed to set recognizer language", err)
	}
	e.client = c
	e.log.WithField("language", e.opts.Language).Info("Tesseract client initialized")
	return c, nil
}

type recognizeOutcome struct {
	result models.RecognitionResult
	err    error
}

// Recognize runs one attempt. The call is bounded by the engine timeout;
// a timed-out call keeps the client busy until tesseract returns, and the
// next call waits for it.
func (e *Engine) Recognize(ctx context.Context, req recognizer.Request) (models.RecognitionResult, error) {
	if req.Image == nil || req.Image.Rect.Empty() {
		return models.RecognitionResult{}, apperrors.NewValidationError("recognition image is empty", nil)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, req.Image); err != nil {
		return models.RecognitionResult{}, apperrors.NewProcessingError("failed to encode recognition image", err)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	done := make(chan recognizeOutcome, 1)
	go func() {
		res, err := e.recognize(buf.Bytes(), req)
		done <- recognizeOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.RecognitionResult{}, apperrors.NewRecognizerTimeoutError(
				fmt.Sprintf("recognizer did not answer within %s", e.opts.Timeout), ctx.Err())
		}
		return models.RecognitionResult{}, apperrors.NewCancelledError("recognition cancelled", ctx.Err())
	}
}

func (e *Engine) recognize(data []byte, req recognizer.Request) (models.RecognitionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.ensureClient()
	if err != nil {
		return models.RecognitionResult{}, err
	}

	whitelist := req.CharacterWhitelist
	if whitelist == "" {
		whitelist = e.opts.Whitelist
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return models.RecognitionResult{}, apperrors.NewRecognizerUnavailableError("failed to load image into recognizer", err)
	}
	if err := c.SetWhitelist(whitelist); err != nil {
		return models.RecognitionResult{}, apperrors.NewRecognizerUnavailableError("failed to set whitelist", err)
	}
	if err := c.SetPageSegMode(pageSegMode(req.Mode)); err != nil {
		return models.RecognitionResult{}, apperrors.NewRecognizerUnavailableError("failed to set segmentation mode", err)
	}

	text, err := c.Text()
	if err != nil {
		return models.RecognitionResult{}, apperrors.NewRecognizerUnavailableError("recognition failed", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		// text is still usable without per-character detail
		e.log.WithError(err).Warn("Failed to read symbol boxes")
		boxes = nil
	}

	result := buildResult(text, boxes)
	e.log.WithFields(logrus.Fields{
		"mode":       req.Mode.String(),
		"characters": len(result.PerCharacter),
		"confidence": result.Confidence,
	}).Debug("Recognition finished")
	return result, nil
}

// Close releases the client. Further calls fail with recognizer_unavailable.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	e.log.Info("Tesseract client closed")
	return err
}

func pageSegMode(m recognizer.SegmentationMode) gosseract.PageSegMode {
	if m == recognizer.SingleLine {
		return gosseract.PSM_SINGLE_LINE
	}
	return gosseract.PSM_SINGLE_WORD
}

// buildResult converts symbol boxes to per-character results. Overall
// confidence is the mean character confidence, 0 when there are none.
func buildResult(text string, boxes []gosseract.BoundingBox) models.RecognitionResult {
	result := models.RecognitionResult{RawText: strings.TrimSpace(text)}
	var sum float64
	for _, b := range boxes {
		char := strings.TrimSpace(b.Word)
		if char == "" {
			continue
		}
		conf := clampUnit(b.Confidence / 100.0)
		sum += conf
		result.PerCharacter = append(result.PerCharacter, models.CharacterResult{
			Char:       char,
			Confidence: conf,
			BBox: models.BoundingBox{
				X0: b.Box.Min.X,
				Y0: b.Box.Min.Y,
				X1: b.Box.Max.X,
				Y1: b.Box.Max.Y,
			},
		})
	}
	if n := len(result.PerCharacter); n > 0 {
		result.Confidence = sum / float64(n)
	}
	return result
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
