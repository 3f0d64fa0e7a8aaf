package observer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// ScanEvent is published for every step of a capture and every monitor tick
type ScanEvent struct {
	EventType      EventType            `json:"event_type"`
	Timestamp      time.Time            `json:"timestamp"`
	JobID          string               `json:"job_id,omitempty"`
	Source         string               `json:"source,omitempty"`
	Progress       int                  `json:"progress,omitempty"`
	Strategy       string               `json:"strategy,omitempty"`
	ProcessingTime time.Duration        `json:"processing_time,omitempty"`
	Success        bool                 `json:"success"`
	ErrorType      string               `json:"error_type,omitempty"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	Reading        string               `json:"reading,omitempty"`
	RecordID       string               `json:"record_id,omitempty"`
	Quality        *models.QualityScore `json:"quality,omitempty"`
	Metadata       map[string]any       `json:"metadata,omitempty"`
}

// EventType represents the type of scan event
type EventType string

const (
	// ScanStarted when a capture job is accepted
	ScanStarted EventType = "scan_started"
	// ScanProgress when a capture job advances
	ScanProgress EventType = "scan_progress"
	// ScanCompleted when a record was stored
	ScanCompleted EventType = "scan_completed"
	// ScanFailed when a capture ends without a record
	ScanFailed EventType = "scan_failed"
	// ScanCancelled when a capture was cancelled or timed out
	ScanCancelled EventType = "scan_cancelled"
	// QualitySampled when the live monitor assessed a frame
	QualitySampled EventType = "quality_sampled"
	// FrameReceived when the camera pushed a new live frame
	FrameReceived EventType = "frame_received"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ScanEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ScanEvent)
}

// LoggingObserver logs scan events
type LoggingObserver struct {
	log *logrus.Entry
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver() Observer {
	return &LoggingObserver{log: logger.Component("events")}
}

// OnEvent handles scan events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.JobID != "" {
		fields["job_id"] = event.JobID
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime.String()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
		fields["error_type"] = event.ErrorType
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.log.WithFields(fields)
	switch event.EventType {
	case ScanStarted:
		entry.Info("Capture started")
	case ScanProgress:
		entry.WithFields(logrus.Fields{"progress": event.Progress, "strategy": event.Strategy}).Debug("Capture progress")
	case ScanCompleted:
		entry.WithFields(logrus.Fields{"reading": event.Reading, "record_id": event.RecordID}).Info("Capture completed")
	case ScanFailed:
		entry.Warn("Capture failed")
	case ScanCancelled:
		entry.Info("Capture cancelled")
	case QualitySampled, FrameReceived:
		entry.Debug("Live event")
	default:
		entry.Info("Scan event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

const durationWindow = 100

// MetricsObserver collects counters from scan events
type MetricsObserver struct {
	mu               sync.RWMutex
	totalScans       int64
	successfulScans  int64
	failedScans      int64
	cancelledScans   int64
	qualitySamples   int64
	rejectedSamples  int64
	framesReceived   int64
	failuresByType   map[string]int64
	recentDurationMs []float64
	lastReading      string
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByType: make(map[string]int64)}
}

// OnEvent handles scan events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ScanEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ScanStarted:
		o.totalScans++
	case ScanCompleted:
		o.successfulScans++
		o.lastReading = event.Reading
		o.recentDurationMs = append(o.recentDurationMs, float64(event.ProcessingTime)/float64(time.Millisecond))
		if len(o.recentDurationMs) > durationWindow {
			o.recentDurationMs = o.recentDurationMs[len(o.recentDurationMs)-durationWindow:]
		}
	case ScanFailed:
		o.failedScans++
		o.failuresByType[event.ErrorType]++
	case ScanCancelled:
		o.cancelledScans++
	case QualitySampled:
		o.qualitySamples++
		if !event.Success {
			o.rejectedSamples++
		}
	case FrameReceived:
		o.framesReceived++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics. Durations cover the most recent
// successful captures.
func (o *MetricsObserver) GetMetrics() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var avg, p95 float64
	if n := len(o.recentDurationMs); n > 0 {
		sorted := make([]float64, n)
		copy(sorted, o.recentDurationMs)
		sort.Float64s(sorted)
		avg = stat.Mean(sorted, nil)
		p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}

	failures := make(map[string]int64, len(o.failuresByType))
	for k, v := range o.failuresByType {
		failures[k] = v
	}

	return map[string]any{
		"total_scans":       o.totalScans,
		"successful_scans":  o.successfulScans,
		"failed_scans":      o.failedScans,
		"cancelled_scans":   o.cancelledScans,
		"failures_by_type":  failures,
		"quality_samples":   o.qualitySamples,
		"rejected_samples":  o.rejectedSamples,
		"frames_received":   o.framesReceived,
		"avg_processing_ms": avg,
		"p95_processing_ms": p95,
		"last_reading":      o.lastReading,
	}
}

// Broadcaster pushes a value to connected viewers.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// HubObserver forwards events to websocket viewers.
type HubObserver struct {
	hub Broadcaster
}

func NewHubObserver(hub Broadcaster) Observer {
	return &HubObserver{hub: hub}
}

func (o *HubObserver) OnEvent(ctx context.Context, event ScanEvent) {
	if err := o.hub.BroadcastJSON(event); err != nil {
		logger.WithError(err).Warn("Failed to broadcast event")
	}
}

func (o *HubObserver) GetObserverName() string {
	return "hub_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order on
// the caller's goroutine, so progress events reach viewers in order.
// Observers must not block.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ScanEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event ScanEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logger.WithFields(logrus.Fields{
				"observer": obs.GetObserverName(),
				"panic":    r,
			}).Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
