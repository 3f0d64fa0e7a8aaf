package preprocess

import "testing"

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.CropBandFraction != 0.5 {
		t.Errorf("Expected CropBandFraction 0.5, got %f", opts.CropBandFraction)
	}
	if opts.ScaleMultiplier != 2.0 {
		t.Errorf("Expected ScaleMultiplier 2.0, got %f", opts.ScaleMultiplier)
	}
	if !opts.Segment || !opts.Median || !opts.Threshold {
		t.Error("Expected display pipeline to segment, median filter and threshold")
	}
	if opts.DilationIterations != 2 {
		t.Errorf("Expected 2 dilation passes, got %d", opts.DilationIterations)
	}
	if opts.ThresholdLevel != 0.3 {
		t.Errorf("Expected threshold 0.3, got %f", opts.ThresholdLevel)
	}
	if opts.ContrastFactor != 2.5 {
		t.Errorf("Expected contrast 2.5, got %f", opts.ContrastFactor)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestWithMaxWidth(t *testing.T) {
	if DefaultOptions().MaxWidth != 0 {
		t.Errorf("Expected default width to be uncapped, got %d", DefaultOptions().MaxWidth)
	}
	if got := DefaultOptions().WithMaxWidth(3000).MaxWidth; got != 3000 {
		t.Errorf("Expected max width 3000, got %d", got)
	}
}

func TestPresetOptions(t *testing.T) {
	hc := HighContrastOptions()
	if hc.Segment || hc.DilationIterations != 0 || hc.Median {
		t.Error("Expected high-contrast preset to skip segmentation and morphology")
	}
	if !hc.Threshold || hc.ThresholdLevel != 0.5 {
		t.Errorf("Expected high-contrast threshold at 0.5, got %v/%f", hc.Threshold, hc.ThresholdLevel)
	}

	plain := UnmodifiedOptions()
	if plain.Threshold || plain.ContrastFactor != 1 || plain.Segment {
		t.Error("Expected unmodified preset to leave tones alone")
	}

	inv := DefaultOptions().WithInvert()
	if !inv.Invert || !inv.Segment {
		t.Error("Expected WithInvert to keep the display pipeline and invert")
	}
}

func TestWithBuilders(t *testing.T) {
	opts := DefaultOptions().WithCropBand(0.35).WithScale(3).WithDilation(1).WithContrast(2).WithThreshold(0.4)

	if opts.CropBandFraction != 0.35 || opts.ScaleMultiplier != 3 || opts.DilationIterations != 1 {
		t.Errorf("Builders not applied: %+v", opts)
	}
	if opts.ContrastFactor != 2 || opts.ThresholdLevel != 0.4 {
		t.Errorf("Builders not applied: %+v", opts)
	}
	if DefaultOptions().CropBandFraction != 0.5 {
		t.Error("Expected builders not to mutate the defaults")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"zero crop band", func(o *Options) { o.CropBandFraction = 0 }},
		{"crop band above one", func(o *Options) { o.CropBandFraction = 1.2 }},
		{"negative scale", func(o *Options) { o.ScaleMultiplier = -1 }},
		{"negative max width", func(o *Options) { o.MaxWidth = -5 }},
		{"zero contrast", func(o *Options) { o.ContrastFactor = 0 }},
		{"negative dilation", func(o *Options) { o.DilationIterations = -1 }},
		{"threshold above one", func(o *Options) { o.ThresholdLevel = 1.5 }},
		{"weak dominance", func(o *Options) { o.ChannelDominance = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			if err := opts.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}
