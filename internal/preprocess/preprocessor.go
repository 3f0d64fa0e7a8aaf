// Package preprocess turns a camera frame into an image the recognizer
// reads well: oriented, cropped to the display band, upscaled and, for LCD
// panels, segmented into white digits on black.
package preprocess

import (
	"image"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/sirupsen/logrus"
)

// Preprocessor runs the stage pipeline. Every stage writes a new buffer, so
// the input frame is never modified.
type Preprocessor interface {
	// Process runs the pipeline with the options the preprocessor was built with.
	Process(f *frame.Frame) (*image.Gray, error)
	ProcessWithOptions(f *frame.Frame, opts Options) (*image.Gray, error)
	Options() Options
}

type pipeline struct {
	opts Options
	log  *logrus.Entry
}

// NewPreprocessor validates opts once and returns a ready pipeline.
func NewPreprocessor(opts Options) (Preprocessor, error) {
	if err := opts.Validate(); err != nil {
		return nil, apperrors.NewPreprocessError("invalid preprocessing options", err)
	}
	return &pipeline{opts: opts, log: logger.Component("preprocess")}, nil
}

func (p *pipeline) Options() Options {
	return p.opts
}

func (p *pipeline) Process(f *frame.Frame) (*image.Gray, error) {
	return p.ProcessWithOptions(f, p.opts)
}

func (p *pipeline) ProcessWithOptions(f *frame.Frame, opts Options) (*image.Gray, error) {
	if f == nil || f.Image() == nil {
		return nil, apperrors.NewPreprocessError("frame is empty", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, apperrors.NewPreprocessError("invalid preprocessing options", err)
	}
	start := time.Now()

	img := orient(f.Image())
	img = cropBand(img, opts.CropBandFraction)
	img = scale(img, opts.ScaleMultiplier, opts.MaxWidth)

	var gray *image.Gray
	if opts.Segment {
		gray = segment(img, opts)
	} else {
		gray = toGray(img)
	}
	if opts.ContrastFactor != 1 {
		gray = contrast(gray, opts.ContrastFactor)
	}
	for i := 0; i < opts.DilationIterations; i++ {
		gray = dilate(gray)
	}
	if opts.Median {
		gray = median3(gray)
	}
	if opts.Threshold {
		gray = threshold(gray, opts.ThresholdLevel)
	}
	if opts.Invert {
		gray = invert(gray)
	}

	p.log.WithFields(logrus.Fields{
		"source_width":  f.Width(),
		"source_height": f.Height(),
		"width":         gray.Rect.Dx(),
		"height":        gray.Rect.Dy(),
		"segment":       opts.Segment,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("Frame preprocessed")

	return gray, nil
}
