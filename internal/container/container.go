package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anime-shed/meter-reader-go/internal/config"
	"github.com/anime-shed/meter-reader-go/internal/extractor"
	"github.com/anime-shed/meter-reader-go/internal/factory"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/hub"
	"github.com/anime-shed/meter-reader-go/internal/livefeed"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/observer"
	"github.com/anime-shed/meter-reader-go/internal/preprocess"
	"github.com/anime-shed/meter-reader-go/internal/quality"
	"github.com/anime-shed/meter-reader-go/internal/recognizer"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/internal/service"
	"github.com/anime-shed/meter-reader-go/internal/strategy"
	"github.com/anime-shed/meter-reader-go/internal/transport"
	"github.com/anime-shed/meter-reader-go/internal/worker"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/anime-shed/meter-reader-go/pkg/services"
	"github.com/anime-shed/meter-reader-go/pkg/validation"

	"github.com/sirupsen/logrus"
)

// captureWorkers is one: a single capture is in flight at a time
const captureWorkers = 1

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	recognizer  recognizer.Recognizer
	repository  repository.ScanRepository
	pool        *worker.Pool
	hub         *hub.Hub
	feed        *livefeed.Feed
	monitor     *quality.Monitor
	scanService service.ScanService
	handler     http.Handler
}

// NewContainer builds the dependency graph around an injected recognizer.
// The container owns rec from here on and closes it in Close.
func NewContainer(ctx context.Context, cfg *config.Config, rec recognizer.Recognizer) (*Container, error) {
	components := factory.NewComponentFactory(cfg)

	repo, err := components.StoreFactory.CreateStore(ctx, cfg.StoreBackend)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}

	blobs, err := components.FrameSourceFactory.CreateBlobSource()
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to create blob source: %w", err)
	}

	preOpts := preprocess.DefaultOptions().
		WithCropBand(cfg.CropBandFraction).
		WithScale(cfg.ScaleMultiplier).
		WithDilation(cfg.DilationIterations).
		WithThreshold(cfg.ThresholdLevel)
	pre, err := preprocess.NewPreprocessor(preOpts)
	if err != nil {
		repo.Close()
		return nil, err
	}

	primary, err := extractor.New(extractor.Field{Name: extractor.FlowRate.Name, Label: cfg.ReadingLabel, Unit: cfg.ReadingUnit})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("invalid reading field: %w", err)
	}

	pool := worker.NewPool(captureWorkers)
	pool.Start()

	h := hub.NewHub()
	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver())
	publisher.Subscribe(metrics)
	publisher.Subscribe(observer.NewHubObserver(h))

	assessor := quality.NewAssessor()
	gate := validation.NewQualityValidator()

	runner := strategy.NewRunner(rec, strategy.DefaultStrategies(pre), cfg.AcceptConfidence, cfg.OCRWhitelist)

	opts := service.DefaultOptions()
	opts.CaptureTimeout = cfg.CaptureTimeout
	scanService := service.NewScanService(service.Dependencies{
		Assessor:  assessor,
		Gate:      gate,
		Runner:    runner,
		Extractor: primary,
		Secondary: []*extractor.Extractor{extractor.MustNew(extractor.Totalizer)},
		Repo:      repo,
		Pool:      pool,
		Publisher: publisher,
	}, opts)

	feed := livefeed.New()
	monitorOpts := quality.MonitorOptions{
		Interval:         cfg.MonitorInterval,
		AutoCapture:      cfg.AutoCapture,
		AutoCaptureScore: cfg.AutoCaptureScore,
	}
	monitor := quality.NewMonitor(assessor, feed, gate, monitorOpts,
		func(sample models.QualitySample) {
			score := sample.Quality
			publisher.NotifyObservers(context.Background(), observer.ScanEvent{
				EventType:    observer.QualitySampled,
				Source:       models.SourceLive,
				Success:      sample.Accepted,
				ErrorMessage: sample.Reason,
				Quality:      &score,
				Metadata:     map[string]any{"sequence": sample.Sequence},
			})
		},
		func(ctx context.Context, f *frame.Frame, _ models.QualityScore) error {
			_, err := scanService.StartCapture(ctx, service.CaptureRequest{Frame: f, Source: models.SourceLive})
			return err
		},
	)

	handler := transport.NewHandler(transport.Dependencies{
		Scans:        scanService,
		Frames:       service.NewFrameResolver(components.FrameSourceFactory.CreateFetcher(), blobs, feed),
		Reports:      services.NewQualityReportService(assessor, gate, cfg.AutoCaptureScore),
		Preprocessor: pre,
		Extractor:    primary,
		Metrics:      metrics,
		Publisher:    publisher,
		Monitor:      monitor,
		Feed:         feed,
		Hub:          h,
		BaseContext:  ctx,
	}, cfg)

	logger.WithFields(logrus.Fields{
		"store":      cfg.StoreBackend,
		"recognizer": rec.Name(),
		"strategies": runner.Strategies(),
		"azure":      blobs != nil,
	}).Info("Container initialized")

	return &Container{
		config:      cfg,
		recognizer:  rec,
		repository:  repo,
		pool:        pool,
		hub:         h,
		feed:        feed,
		monitor:     monitor,
		scanService: scanService,
		handler:     handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Hub returns the event hub; its Run loop is started by the caller.
func (c *Container) Hub() *hub.Hub {
	return c.hub
}

// Monitor returns the live quality monitor
func (c *Container) Monitor() *quality.Monitor {
	return c.monitor
}

// Close stops the monitor, cancels any in-flight capture and releases the
// worker pool, recognizer and store in that order.
func (c *Container) Close() error {
	c.monitor.Stop()
	if job, ok := c.scanService.CurrentJob(); ok && !job.Status().Done() {
		c.scanService.Cancel()
	}
	c.pool.Close()
	c.pool.Wait()

	var firstErr error
	if err := c.recognizer.Close(); err != nil {
		firstErr = fmt.Errorf("close recognizer: %w", err)
	}
	if err := c.repository.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close store: %w", err)
	}
	return firstErr
}
