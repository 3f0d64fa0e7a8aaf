package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func createTestImage(width, height int, fillColor color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fillColor)
		}
	}
	return img
}

func TestFromImage_CopiesPixels(t *testing.T) {
	src := createTestImage(4, 3, color.RGBA{10, 200, 30, 255})
	f, err := FromImage(src)
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}

	src.Set(0, 0, color.RGBA{0, 0, 0, 255})
	r, g, b := f.RGB(0, 0)
	if r != 10 || g != 200 || b != 30 {
		t.Errorf("Expected frame to be independent of source, got %d,%d,%d", r, g, b)
	}
	if f.Width() != 4 || f.Height() != 3 {
		t.Errorf("Expected 4x3, got %dx%d", f.Width(), f.Height())
	}
	if f.IsPortrait() {
		t.Error("Expected landscape frame")
	}
}

func TestFromImage_NonZeroOrigin(t *testing.T) {
	src := createTestImage(10, 10, color.RGBA{50, 60, 70, 255})
	sub := src.SubImage(image.Rect(5, 5, 8, 9))
	f, err := FromImage(sub)
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}
	if f.Width() != 3 || f.Height() != 4 {
		t.Errorf("Expected 3x4, got %dx%d", f.Width(), f.Height())
	}
	if !f.IsPortrait() {
		t.Error("Expected portrait frame")
	}
	if r, _, _ := f.RGB(0, 0); r != 50 {
		t.Errorf("Expected red 50 at origin, got %d", r)
	}
}

func TestFromImage_Empty(t *testing.T) {
	if _, err := FromImage(nil); err == nil {
		t.Error("Expected error for nil image")
	}
	if _, err := FromImage(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestDecodeBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(6, 2, color.RGBA{255, 0, 0, 255})); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	f, err := DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}
	if f.Width() != 6 || f.Height() != 2 {
		t.Errorf("Expected 6x2, got %dx%d", f.Width(), f.Height())
	}

	if _, err := DecodeBytes([]byte("not an image")); err == nil {
		t.Error("Expected decode error for garbage payload")
	}
	if _, err := DecodeBytes(nil); err == nil {
		t.Error("Expected decode error for empty payload")
	}
}

func TestPreviewDataURL(t *testing.T) {
	f, err := FromImage(createTestImage(200, 100, color.RGBA{0, 128, 0, 255}))
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}
	url, err := f.PreviewDataURL(50)
	if err != nil {
		t.Fatalf("PreviewDataURL() error = %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("Unexpected data URL prefix: %.30s", url)
	}
}
