package quality

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/sirupsen/logrus"
)

// FrameSource yields the most recent live frame with its sequence number.
type FrameSource interface {
	Latest() (*frame.Frame, uint64, bool)
}

// Gate decides whether a score is good enough to capture.
type Gate interface {
	Gate(score models.QualityScore) error
}

// SampleHandler receives every sample the monitor takes.
type SampleHandler func(sample models.QualitySample)

// CaptureFunc starts a capture for a frame that passed auto-capture.
type CaptureFunc func(ctx context.Context, f *frame.Frame, score models.QualityScore) error

// MonitorOptions configures the sampling loop.
type MonitorOptions struct {
	Interval         time.Duration
	AutoCapture      bool
	AutoCaptureScore float64
}

// DefaultMonitorOptions samples twice a second with auto-capture off.
func DefaultMonitorOptions() MonitorOptions {
	return MonitorOptions{
		Interval:         500 * time.Millisecond,
		AutoCapture:      false,
		AutoCaptureScore: 85,
	}
}

// MonitorStatus is a snapshot of the monitor state.
type MonitorStatus struct {
	Running          bool                  `json:"running"`
	AutoCapture      bool                  `json:"auto_capture"`
	AutoCaptureScore float64               `json:"auto_capture_score"`
	IntervalMs       int64                 `json:"interval_ms"`
	LastSample       *models.QualitySample `json:"last_sample,omitempty"`
}

// Monitor periodically re-assesses the latest live frame. It only reads from
// the frame source and never touches capture state directly; captures go
// through the CaptureFunc.
type Monitor struct {
	assessor Assessor
	source   FrameSource
	gate     Gate
	onSample SampleHandler
	capture  CaptureFunc
	log      *logrus.Entry

	mu           sync.Mutex
	opts         MonitorOptions
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	lastSeq      uint64
	lastCaptured uint64
	lastSample   *models.QualitySample
}

// NewMonitor wires a monitor. onSample and capture may be nil.
func NewMonitor(assessor Assessor, source FrameSource, gate Gate, opts MonitorOptions, onSample SampleHandler, capture CaptureFunc) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultMonitorOptions().Interval
	}
	return &Monitor{
		assessor: assessor,
		source:   source,
		gate:     gate,
		onSample: onSample,
		capture:  capture,
		opts:     opts,
		log:      logger.Component("quality_monitor"),
	}
}

// Start launches the sampling loop. It stops when Stop is called or ctx ends.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return apperrors.NewValidationError("monitor is already running", nil)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(loopCtx, m.opts.Interval, m.done)

	m.log.WithFields(logrus.Fields{
		"interval":     m.opts.Interval.String(),
		"auto_capture": m.opts.AutoCapture,
	}).Info("Quality monitor started")
	return nil
}

// Stop halts the loop and waits for the in-progress tick to finish. Stopping
// an idle monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.log.Info("Quality monitor stopped")
}

// SetAutoCapture toggles auto-capture without restarting the loop.
func (m *Monitor) SetAutoCapture(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.AutoCapture = enabled
}

// Status returns a copy of the current state.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := MonitorStatus{
		Running:          m.running,
		AutoCapture:      m.opts.AutoCapture,
		AutoCaptureScore: m.opts.AutoCaptureScore,
		IntervalMs:       m.opts.Interval.Milliseconds(),
	}
	if m.lastSample != nil {
		sample := *m.lastSample
		status.LastSample = &sample
	}
	return status
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample runs one tick. It returns false when there was no new frame.
func (m *Monitor) Sample(ctx context.Context) (models.QualitySample, bool) {
	f, seq, ok := m.source.Latest()
	if !ok {
		return models.QualitySample{}, false
	}

	m.mu.Lock()
	if seq == m.lastSeq {
		m.mu.Unlock()
		return models.QualitySample{}, false
	}
	m.lastSeq = seq
	opts := m.opts
	m.mu.Unlock()

	score := m.assessor.Assess(f)
	sample := models.QualitySample{
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
		Quality:   score,
		Accepted:  true,
	}
	if err := m.gate.Gate(score); err != nil {
		sample.Accepted = false
		if appErr, ok := apperrors.AsAppError(err); ok {
			sample.Reason = appErr.Message
		} else {
			sample.Reason = err.Error()
		}
	}

	m.mu.Lock()
	m.lastSample = &sample
	m.mu.Unlock()

	if m.onSample != nil {
		m.onSample(sample)
	}

	if opts.AutoCapture && sample.Accepted && score.Score > opts.AutoCaptureScore && m.capture != nil {
		m.autoCapture(ctx, f, seq, score)
	}
	return sample, true
}

func (m *Monitor) autoCapture(ctx context.Context, f *frame.Frame, seq uint64, score models.QualityScore) {
	m.mu.Lock()
	if m.lastCaptured == seq {
		m.mu.Unlock()
		return
	}
	m.lastCaptured = seq
	m.mu.Unlock()

	fields := logrus.Fields{"sequence": seq, "score": score.Score}
	if err := m.capture(ctx, f, score); err != nil {
		// already_processing and friends are expected while a capture runs
		m.log.WithFields(fields).WithError(err).Debug("Auto-capture not started")
		return
	}
	m.log.WithFields(fields).Info("Auto-capture triggered")
}
