// Package strategy holds the named preprocessing variants tried against the
// recognizer and the loop that picks the best result.
package strategy

import (
	"image"

	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/preprocess"
	"github.com/anime-shed/meter-reader-go/internal/recognizer"
)

// Strategy names, in the order they are tried
const (
	NameDisplayOptimized = "display-optimized"
	NameHighContrast     = "high-contrast"
	NameUnmodified       = "unmodified"
	NameInverted         = "inverted"
)

// RecognitionStrategy prepares a frame one particular way and says how the
// recognizer should segment the result.
type RecognitionStrategy interface {
	Prepare(f *frame.Frame) (*image.Gray, error)
	Mode() recognizer.SegmentationMode
	GetStrategyName() string
}

// presetStrategy runs the shared preprocessing pipeline with fixed options.
type presetStrategy struct {
	name string
	pre  preprocess.Preprocessor
	opts preprocess.Options
	mode recognizer.SegmentationMode
}

func (s *presetStrategy) Prepare(f *frame.Frame) (*image.Gray, error) {
	return s.pre.ProcessWithOptions(f, s.opts)
}

func (s *presetStrategy) Mode() recognizer.SegmentationMode { return s.mode }

func (s *presetStrategy) GetStrategyName() string { return s.name }

// withGeometry carries the configured crop and scale into a preset so every
// strategy looks at the same region.
func withGeometry(preset, base preprocess.Options) preprocess.Options {
	preset.CropBandFraction = base.CropBandFraction
	preset.ScaleMultiplier = base.ScaleMultiplier
	preset.MaxWidth = base.MaxWidth
	return preset
}

// NewDisplayOptimizedStrategy runs the full LCD pipeline as configured.
func NewDisplayOptimizedStrategy(pre preprocess.Preprocessor) RecognitionStrategy {
	return &presetStrategy{name: NameDisplayOptimized, pre: pre, opts: pre.Options(), mode: recognizer.SingleWord}
}

// NewHighContrastStrategy binarizes a contrast-stretched grayscale, for
// displays that are not backlit.
func NewHighContrastStrategy(pre preprocess.Preprocessor) RecognitionStrategy {
	opts := withGeometry(preprocess.HighContrastOptions(), pre.Options())
	return &presetStrategy{name: NameHighContrast, pre: pre, opts: opts, mode: recognizer.SingleLine}
}

// NewUnmodifiedStrategy hands the recognizer plain grayscale.
func NewUnmodifiedStrategy(pre preprocess.Preprocessor) RecognitionStrategy {
	opts := withGeometry(preprocess.UnmodifiedOptions(), pre.Options())
	return &presetStrategy{name: NameUnmodified, pre: pre, opts: opts, mode: recognizer.SingleLine}
}

// NewInvertedStrategy runs the LCD pipeline and inverts it to dark digits on
// a light background.
func NewInvertedStrategy(pre preprocess.Preprocessor) RecognitionStrategy {
	return &presetStrategy{name: NameInverted, pre: pre, opts: pre.Options().WithInvert(), mode: recognizer.SingleWord}
}

// DefaultStrategies returns the four strategies in trial order.
func DefaultStrategies(pre preprocess.Preprocessor) []RecognitionStrategy {
	return []RecognitionStrategy{
		NewDisplayOptimizedStrategy(pre),
		NewHighContrastStrategy(pre),
		NewUnmodifiedStrategy(pre),
		NewInvertedStrategy(pre),
	}
}
