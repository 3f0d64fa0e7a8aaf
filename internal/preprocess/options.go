package preprocess

import "fmt"

// Options controls the preprocessing stages. Stage toggles let the
// recognition strategies reuse one pipeline with different settings.
type Options struct {
	// Geometry
	CropBandFraction float64
	ScaleMultiplier  float64
	MaxWidth         int // 0 disables the cap

	// LCD segmentation
	Segment          bool
	ChannelDominance float64
	BrightnessFloor  float64
	SecondaryFloor   float64
	SecondaryCeiling float64

	// Tone
	ContrastFactor float64 // 1 leaves values unchanged

	// Morphology
	DilationIterations int
	Median             bool

	// Output
	Threshold      bool
	ThresholdLevel float64
	Invert         bool
}

// DefaultOptions returns the display-optimized pipeline tuned for
// seven-segment LCD panels.
func DefaultOptions() Options {
	return Options{
		CropBandFraction:   0.5,
		ScaleMultiplier:    2.0,
		Segment:            true,
		ChannelDominance:   1.5,
		BrightnessFloor:    120,
		SecondaryFloor:     80,
		SecondaryCeiling:   100,
		ContrastFactor:     2.5,
		DilationIterations: 2,
		Median:             true,
		Threshold:          true,
		ThresholdLevel:     0.3,
	}
}

// HighContrastOptions skips segmentation and morphology and binarizes a
// contrast-stretched grayscale at mid level.
func HighContrastOptions() Options {
	opts := DefaultOptions()
	opts.Segment = false
	opts.DilationIterations = 0
	opts.Median = false
	opts.ThresholdLevel = 0.5
	return opts
}

// UnmodifiedOptions only orients, crops, scales and converts to grayscale.
func UnmodifiedOptions() Options {
	opts := DefaultOptions()
	opts.Segment = false
	opts.ContrastFactor = 1
	opts.DilationIterations = 0
	opts.Median = false
	opts.Threshold = false
	return opts
}

// WithCropBand sets the fraction of the height kept around the center line
func (opts Options) WithCropBand(fraction float64) Options {
	opts.CropBandFraction = fraction
	return opts
}

// WithScale sets the upsample multiplier
func (opts Options) WithScale(multiplier float64) Options {
	opts.ScaleMultiplier = multiplier
	return opts
}

// WithMaxWidth caps the upsampled width; 0 leaves the multiplier uncapped
func (opts Options) WithMaxWidth(width int) Options {
	opts.MaxWidth = width
	return opts
}

// WithDilation sets how many dilation passes run
func (opts Options) WithDilation(iterations int) Options {
	opts.DilationIterations = iterations
	return opts
}

// WithThreshold enables binarization at level (fraction of 255)
func (opts Options) WithThreshold(level float64) Options {
	opts.Threshold = true
	opts.ThresholdLevel = level
	return opts
}

// WithContrast sets the contrast stretch factor
func (opts Options) WithContrast(factor float64) Options {
	opts.ContrastFactor = factor
	return opts
}

// WithInvert flips the final image so dark digits become light
func (opts Options) WithInvert() Options {
	opts.Invert = true
	return opts
}

// Validate rejects settings no stage can honor.
func (opts Options) Validate() error {
	switch {
	case opts.CropBandFraction <= 0 || opts.CropBandFraction > 1:
		return fmt.Errorf("crop band fraction must be in (0,1], got %g", opts.CropBandFraction)
	case opts.ScaleMultiplier <= 0:
		return fmt.Errorf("scale multiplier must be positive, got %g", opts.ScaleMultiplier)
	case opts.MaxWidth < 0:
		return fmt.Errorf("max width must not be negative, got %d", opts.MaxWidth)
	case opts.ContrastFactor <= 0:
		return fmt.Errorf("contrast factor must be positive, got %g", opts.ContrastFactor)
	case opts.DilationIterations < 0:
		return fmt.Errorf("dilation iterations must not be negative, got %d", opts.DilationIterations)
	case opts.ThresholdLevel < 0 || opts.ThresholdLevel > 1:
		return fmt.Errorf("threshold level must be in [0,1], got %g", opts.ThresholdLevel)
	case opts.Segment && opts.ChannelDominance < 1:
		return fmt.Errorf("channel dominance must be at least 1, got %g", opts.ChannelDominance)
	}
	return nil
}
