package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func createTestFrame(t *testing.T, width, height int, fill func(x, y int) color.RGBA) *frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	f, err := frame.FromImage(img)
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}
	return f
}

// lcdFrame draws a green bar on a dark panel, centered vertically.
func lcdFrame(t *testing.T, width, height int) *frame.Frame {
	return createTestFrame(t, width, height, func(x, y int) color.RGBA {
		if x >= width/4 && x < 3*width/4 && y >= height/2-2 && y < height/2+2 {
			return color.RGBA{40, 200, 40, 255}
		}
		return color.RGBA{10, 10, 10, 255}
	})
}

func newTestPreprocessor(t *testing.T) Preprocessor {
	t.Helper()
	p, err := NewPreprocessor(DefaultOptions())
	if err != nil {
		t.Fatalf("NewPreprocessor() error = %v", err)
	}
	return p
}

func TestProcess_Geometry(t *testing.T) {
	p := newTestPreprocessor(t)

	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"landscape", 40, 20, 80, 20},
		{"portrait is rotated", 20, 40, 80, 20},
		{"square", 30, 30, 60, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Process(lcdFrame(t, tt.width, tt.height))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if out.Rect.Dx() != tt.wantW || out.Rect.Dy() != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, out.Rect.Dx(), out.Rect.Dy())
			}
		})
	}
}

func TestProcess_MaxWidthCap(t *testing.T) {
	p := newTestPreprocessor(t)
	opts := DefaultOptions().WithMaxWidth(50)

	out, err := p.ProcessWithOptions(lcdFrame(t, 40, 20), opts)
	if err != nil {
		t.Fatalf("ProcessWithOptions() error = %v", err)
	}
	if out.Rect.Dx() != 50 {
		t.Errorf("Expected width capped at 50, got %d", out.Rect.Dx())
	}
}

func TestProcess_DefaultScaleIsUncapped(t *testing.T) {
	p := newTestPreprocessor(t)

	tests := []struct {
		width, wantW int
	}{
		{1000, 2000},
		{2000, 4000},
		{4000, 8000},
	}

	for _, tt := range tests {
		out, err := p.Process(lcdFrame(t, tt.width, 40))
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if out.Rect.Dx() != tt.wantW {
			t.Errorf("Expected %d-wide frame to come out %d wide, got %d", tt.width, tt.wantW, out.Rect.Dx())
		}
	}
}

func TestProcess_BinaryOutputAndSegmentation(t *testing.T) {
	p := newTestPreprocessor(t)
	out, err := p.Process(lcdFrame(t, 40, 20))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	for i, v := range out.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("Expected binary output, pixel %d = %d", i, v)
		}
	}
	if got := out.GrayAt(40, 10).Y; got != 255 {
		t.Errorf("Expected lit segment at center to be white, got %d", got)
	}
	if got := out.GrayAt(0, 0).Y; got != 0 {
		t.Errorf("Expected dark panel corner to be black, got %d", got)
	}

	inv, err := p.ProcessWithOptions(lcdFrame(t, 40, 20), DefaultOptions().WithInvert())
	if err != nil {
		t.Fatalf("ProcessWithOptions() error = %v", err)
	}
	if inv.GrayAt(40, 10).Y != 0 || inv.GrayAt(0, 0).Y != 255 {
		t.Error("Expected inverted output to swap digit and background")
	}
}

// renderedReading draws text in green on a dark panel with the 7x13 bitmap face.
func renderedReading(t *testing.T, text string, width, height int) *frame.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{10, 10, 10, 255}), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{40, 200, 40, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, height/2+5),
	}
	d.DrawString(text)
	f, err := frame.FromImage(img)
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}
	return f
}

func TestProcess_RenderedDigits(t *testing.T) {
	p := newTestPreprocessor(t)
	out, err := p.Process(renderedReading(t, "41.09", 60, 24))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	white := 0
	for _, v := range out.Pix {
		if v == 255 {
			white++
		}
	}
	if white == 0 {
		t.Fatal("Expected rendered digits to survive as white strokes")
	}
	if white == len(out.Pix) {
		t.Error("Expected background to stay black")
	}
}

func TestProcess_RandomFramesStayBinary(t *testing.T) {
	p := newTestPreprocessor(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 5; i++ {
		f := createTestFrame(t, 8+rng.Intn(40), 8+rng.Intn(40), func(int, int) color.RGBA {
			return color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
		})
		out, err := p.Process(f)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		for _, v := range out.Pix {
			if v != 0 && v != 255 {
				t.Fatalf("Expected binary output, got %d", v)
			}
		}
	}
}

func TestProcess_DoesNotModifyInput(t *testing.T) {
	p := newTestPreprocessor(t)
	f := lcdFrame(t, 40, 20)
	before := bytes.Clone(f.Image().Pix)

	if _, err := p.Process(f); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !bytes.Equal(before, f.Image().Pix) {
		t.Error("Expected input frame to be unchanged")
	}
}

func TestProcess_Errors(t *testing.T) {
	p := newTestPreprocessor(t)

	if _, err := p.Process(nil); !apperrors.IsType(err, apperrors.ErrorTypePreprocessFailure) {
		t.Errorf("Expected preprocess failure for nil frame, got %v", err)
	}
	if _, err := p.ProcessWithOptions(lcdFrame(t, 10, 10), DefaultOptions().WithScale(0)); !apperrors.IsType(err, apperrors.ErrorTypePreprocessFailure) {
		t.Errorf("Expected preprocess failure for zero scale, got %v", err)
	}
	if _, err := NewPreprocessor(DefaultOptions().WithCropBand(2)); err == nil {
		t.Error("Expected constructor to reject invalid options")
	}
}
