package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/extractor"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/observer"
	"github.com/anime-shed/meter-reader-go/internal/quality"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/internal/strategy"
	"github.com/anime-shed/meter-reader-go/internal/textfilter"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Progress checkpoints after the strategy loop
const (
	ProgressFiltering  = 90
	ProgressExtracting = 95
	ProgressDone       = 100
)

// Stages reported with progress
const (
	StageRecognizing = "recognizing"
	StageFiltering   = "filtering"
	StageExtracting  = "extracting"
	StageSaving      = "saving"
)

// CaptureRequest is a decoded frame plus per-capture settings.
type CaptureRequest struct {
	Frame    *frame.Frame
	Source   string
	Expected string
	// Filter overrides the service default when set
	Filter *textfilter.Config
}

// ScanService runs captures and manages the scan history.
type ScanService interface {
	// StartCapture gates the frame and starts recognition in the background.
	// It fails with AlreadyProcessing while another capture is in flight.
	StartCapture(ctx context.Context, req CaptureRequest) (*Job, error)

	// CurrentJob returns the in-flight job, or the last finished one.
	CurrentJob() (*Job, bool)

	// Cancel abandons the in-flight capture.
	Cancel() error

	// ExtractFromText filters and extracts already-recognized text and stores the reading.
	ExtractFromText(ctx context.Context, text string, cfg *textfilter.Config) (*models.CaptureResult, error)

	// SubmitManual stores a user-entered reading as a new record.
	SubmitManual(ctx context.Context, req models.ManualScanRequest) (models.ScanRecord, error)

	History(ctx context.Context) ([]models.ScanRecord, error)
	Get(ctx context.Context, id string) (models.ScanRecord, error)
}

// Submitter runs jobs in the background without blocking.
type Submitter interface {
	TrySubmit(job func()) bool
}

// Options tune the service.
type Options struct {
	CaptureTimeout time.Duration
	DefaultFilter  textfilter.Config
	PreviewWidth   int
}

// DefaultOptions uses the meter filter preset and a one minute timeout.
func DefaultOptions() Options {
	return Options{
		CaptureTimeout: time.Minute,
		DefaultFilter:  textfilter.MeterPreset(),
		PreviewWidth:   640,
	}
}

// Dependencies are the collaborators a ScanService needs.
type Dependencies struct {
	Assessor  quality.Assessor
	Gate      quality.Gate
	Runner    *strategy.Runner
	Extractor *extractor.Extractor
	// Secondary registers are extracted from raw text when present
	Secondary []*extractor.Extractor
	Repo      repository.ScanRepository
	Pool      Submitter
	Publisher observer.Subject
}

type scanService struct {
	deps          Dependencies
	opts          Options
	defaultEngine *textfilter.Engine
	log           *logrus.Entry

	mu      sync.Mutex
	current *Job
}

// NewScanService wires a ScanService. The default filter is compiled once
// here; invalid patterns in it are logged and ignored.
func NewScanService(deps Dependencies, opts Options) ScanService {
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = DefaultOptions().CaptureTimeout
	}
	engine, _ := opts.DefaultFilter.Compile()
	return &scanService{
		deps:          deps,
		opts:          opts,
		defaultEngine: engine,
		log:           logger.Component("scan_service"),
	}
}

func (s *scanService) engineFor(cfg *textfilter.Config) *textfilter.Engine {
	if cfg == nil {
		return s.defaultEngine
	}
	engine, _ := cfg.Compile()
	return engine
}

func (s *scanService) publish(ctx context.Context, event observer.ScanEvent) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.NotifyObservers(ctx, event)
	}
}

func (s *scanService) StartCapture(ctx context.Context, req CaptureRequest) (*Job, error) {
	if req.Frame == nil {
		return nil, apperrors.NewPreprocessError("no frame to capture", nil)
	}
	if req.Source == "" {
		req.Source = models.SourceUpload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.inFlight() {
		return nil, apperrors.NewAlreadyProcessingError(s.current.ID())
	}

	score := s.deps.Assessor.Assess(req.Frame)
	if err := s.deps.Gate.Gate(score); err != nil {
		s.log.WithFields(logrus.Fields{
			"source":     req.Source,
			"score":      score.Score,
			"brightness": score.Brightness,
			"sharpness":  score.Sharpness,
			"glare":      score.Glare,
		}).WithError(err).Info("Capture rejected by quality gate")
		return nil, err
	}

	engine := s.engineFor(req.Filter)

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CaptureTimeout)
	job := newJob(uuid.NewString(), req.Source, cancel)

	submitted := s.deps.Pool.TrySubmit(func() {
		s.run(jobCtx, job, req, score, engine)
	})
	if !submitted {
		cancel()
		return nil, apperrors.NewInternalError("capture worker unavailable", nil)
	}
	s.current = job

	s.publish(ctx, observer.ScanEvent{
		EventType: observer.ScanStarted,
		JobID:     job.ID(),
		Source:    req.Source,
		Success:   true,
		Quality:   &score,
	})
	return job, nil
}

func (s *scanService) CurrentJob() (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

func (s *scanService) Cancel() error {
	s.mu.Lock()
	job := s.current
	s.mu.Unlock()

	if job == nil || !job.inFlight() {
		return apperrors.NewNotFoundError("no capture in progress", nil)
	}
	s.log.WithField("job_id", job.ID()).Info("Cancelling capture")
	job.cancel()
	return nil
}

func (s *scanService) progress(ctx context.Context, job *Job, percent int, stage, strategyName string) {
	if !job.advance(percent, stage) {
		return
	}
	s.publish(ctx, observer.ScanEvent{
		EventType: observer.ScanProgress,
		JobID:     job.ID(),
		Source:    job.source,
		Progress:  percent,
		Strategy:  strategyName,
		Success:   true,
	})
}

// run executes the capture on a pool worker. A record is written only when
// every step succeeded and the job was not cancelled.
func (s *scanService) run(ctx context.Context, job *Job, req CaptureRequest, score models.QualityScore, engine *textfilter.Engine) {
	start := time.Now()
	// events outlive the job context
	eventCtx := context.WithoutCancel(ctx)

	result, err := s.capture(ctx, job, req, score, engine)
	elapsed := time.Since(start)

	if err != nil {
		s.fail(eventCtx, ctx, job, err, elapsed)
		return
	}

	result.ProcessingMs = elapsed.Milliseconds()
	job.finish(models.JobCompleted, result, nil)
	s.publish(eventCtx, observer.ScanEvent{
		EventType:      observer.ScanCompleted,
		JobID:          job.ID(),
		Source:         job.source,
		Progress:       ProgressDone,
		Strategy:       result.Strategy,
		ProcessingTime: elapsed,
		Success:        true,
		Reading:        result.Value.Normalized,
		RecordID:       result.Record.ID,
		Quality:        &result.Quality,
	})
}

func (s *scanService) fail(eventCtx, jobCtx context.Context, job *Job, err error, elapsed time.Duration) {
	state := models.JobFailed
	eventType := observer.ScanFailed

	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		err = apperrors.NewTimeoutError("capture timed out", err).
			WithContext("timeout", s.opts.CaptureTimeout.String())
	case jobCtx.Err() != nil:
		state = models.JobCancelled
		eventType = observer.ScanCancelled
		if !apperrors.IsType(err, apperrors.ErrorTypeCancelled) {
			err = apperrors.NewCancelledError("capture cancelled", err)
		}
	}

	job.finish(state, nil, err)

	event := observer.ScanEvent{
		EventType:      eventType,
		JobID:          job.ID(),
		Source:         job.source,
		ProcessingTime: elapsed,
		ErrorMessage:   err.Error(),
		ErrorType:      string(apperrors.ErrorTypeInternal),
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		event.ErrorType = string(appErr.Type)
		event.ErrorMessage = appErr.Message
	}
	s.publish(eventCtx, event)
}

func (s *scanService) capture(ctx context.Context, job *Job, req CaptureRequest, score models.QualityScore, engine *textfilter.Engine) (*models.CaptureResult, error) {
	s.progress(ctx, job, strategy.ProgressStart, StageRecognizing, "")

	outcome, err := s.deps.Runner.Run(ctx, req.Frame, func(percent int, name string) {
		s.progress(ctx, job, percent, StageRecognizing, name)
	})
	if err != nil {
		return nil, err
	}
	if !outcome.Succeeded() {
		appErr := apperrors.NewRecognizerUnavailableError("every recognition attempt failed", nil)
		if n := len(outcome.Attempts); n > 0 {
			appErr.WithContext("last_error", outcome.Attempts[n-1].Error)
		}
		return nil, appErr
	}

	raw := outcome.Best.RawText
	s.progress(ctx, job, ProgressFiltering, StageFiltering, outcome.StrategyName)
	filtered := engine.Filter(raw)

	s.progress(ctx, job, ProgressExtracting, StageExtracting, outcome.StrategyName)
	value, from, ok := s.deps.Extractor.ExtractWithFallback(filtered.FilteredText, raw)
	if !ok {
		return nil, apperrors.NewNoValueFoundError(s.deps.Extractor.Field().Label, raw, filtered.FilteredText)
	}

	// no record once the capture was abandoned
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewCancelledError("capture cancelled", err)
	}

	preview, err := req.Frame.PreviewDataURL(s.opts.PreviewWidth)
	if err != nil {
		s.log.WithError(err).Warn("Failed to render preview image")
	}

	job.advance(ProgressExtracting, StageSaving)
	record, err := s.deps.Repo.Append(ctx, models.NewScan{
		Raw:          value.Raw,
		Normalized:   value.Normalized,
		OCRText:      raw,
		FilteredText: filtered.FilteredText,
		PreviewImage: preview,
		Source:       req.Source,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewCancelledError("capture cancelled", ctx.Err())
		}
		return nil, apperrors.NewInternalError("failed to store scan", err)
	}

	s.log.WithFields(logrus.Fields{
		"job_id":     job.ID(),
		"reading":    value.Normalized,
		"strategy":   outcome.StrategyName,
		"confidence": outcome.Best.Confidence,
		"matched_in": from,
	}).Info("Reading extracted")

	result := &models.CaptureResult{
		Record:      record,
		Value:       value,
		Secondary:   s.secondary(raw),
		Quality:     score,
		Recognition: outcome.Best,
		Strategy:    outcome.StrategyName,
		Attempts:    outcome.Attempts,
		Reading:     extractor.ReadingFromCharacters(outcome.Best.PerCharacter),
		Filter:      summarize(filtered),
	}
	if expected := strings.TrimSpace(req.Expected); expected != "" {
		acc := extractor.ScoreAccuracy(expected, value.Normalized)
		result.Accuracy = &acc
	}
	return result, nil
}

func (s *scanService) secondary(raw string) map[string]string {
	if len(s.deps.Secondary) == 0 {
		return nil
	}
	values := make(map[string]string)
	for _, x := range s.deps.Secondary {
		if v, ok := x.Extract(raw); ok {
			values[x.Field().Name] = v.Normalized
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func summarize(r textfilter.Result) *models.FilterSummary {
	return &models.FilterSummary{
		FilteredText: r.FilteredText,
		TotalLines:   r.TotalLines,
		MatchCount:   r.MatchCount,
		Categories:   r.Categories,
	}
}

func (s *scanService) ExtractFromText(ctx context.Context, text string, cfg *textfilter.Config) (*models.CaptureResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("text cannot be empty", nil)
	}
	start := time.Now()

	filtered := s.engineFor(cfg).Filter(text)
	value, _, ok := s.deps.Extractor.ExtractWithFallback(filtered.FilteredText, text)
	if !ok {
		return nil, apperrors.NewNoValueFoundError(s.deps.Extractor.Field().Label, text, filtered.FilteredText)
	}

	record, err := s.deps.Repo.Append(ctx, models.NewScan{
		Raw:          value.Raw,
		Normalized:   value.Normalized,
		OCRText:      text,
		FilteredText: filtered.FilteredText,
		Source:       models.SourceText,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to store scan", err)
	}

	elapsed := time.Since(start)
	s.publish(ctx, observer.ScanEvent{
		EventType:      observer.ScanCompleted,
		Source:         models.SourceText,
		ProcessingTime: elapsed,
		Success:        true,
		Reading:        value.Normalized,
		RecordID:       record.ID,
	})

	return &models.CaptureResult{
		Record:       record,
		Value:        value,
		Secondary:    s.secondary(text),
		Recognition:  models.RecognitionResult{RawText: text},
		Filter:       summarize(filtered),
		ProcessingMs: elapsed.Milliseconds(),
	}, nil
}

func (s *scanService) SubmitManual(ctx context.Context, req models.ManualScanRequest) (models.ScanRecord, error) {
	normalized, ok := extractor.NormalizeReading(req.Value)
	if !ok {
		return models.ScanRecord{}, apperrors.NewValidationError(
			fmt.Sprintf("%q is not a valid reading", req.Value), nil)
	}

	scan := models.NewScan{
		Raw:            strings.TrimSpace(req.Value),
		Normalized:     normalized,
		OCRText:        req.OCRText,
		FilteredText:   req.FilteredText,
		Source:         models.SourceManual,
		ManuallyEdited: true,
	}
	if req.SourceScanID != "" {
		orig, err := s.Get(ctx, req.SourceScanID)
		if err != nil {
			return models.ScanRecord{}, err
		}
		if scan.OCRText == "" {
			scan.OCRText = orig.OCRText
		}
		if scan.FilteredText == "" {
			scan.FilteredText = orig.FilteredText
		}
		scan.PreviewImage = orig.PreviewImage
	}

	record, err := s.deps.Repo.Append(ctx, scan)
	if err != nil {
		return models.ScanRecord{}, apperrors.NewInternalError("failed to store scan", err)
	}

	s.log.WithFields(logrus.Fields{
		"record_id": record.ID,
		"reading":   normalized,
		"overrides": req.SourceScanID,
	}).Info("Manual reading stored")
	s.publish(ctx, observer.ScanEvent{
		EventType: observer.ScanCompleted,
		Source:    models.SourceManual,
		Success:   true,
		Reading:   normalized,
		RecordID:  record.ID,
	})
	return record, nil
}

func (s *scanService) History(ctx context.Context) ([]models.ScanRecord, error) {
	records, err := s.deps.Repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read scan history", err)
	}
	return records, nil
}

func (s *scanService) Get(ctx context.Context, id string) (models.ScanRecord, error) {
	record, err := s.deps.Repo.Get(ctx, id)
	if errors.Is(err, repository.ErrScanNotFound) {
		return models.ScanRecord{}, apperrors.NewNotFoundError("scan not found", err).WithContext("id", id)
	}
	if err != nil {
		return models.ScanRecord{}, apperrors.NewInternalError("failed to read scan", err)
	}
	return record, nil
}
