// Package frame holds the common pixel representation that live frames and
// uploaded images are decoded into before quality assessment.
package frame

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Frame is an immutable RGBA pixel buffer. Callers must not write to the
// image returned by Image.
type Frame struct {
	img *image.NRGBA
}

// FromImage copies img into a new Frame with its origin at (0,0).
func FromImage(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())
	}
	return &Frame{img: imaging.Clone(img)}, nil
}

// Decode reads a jpeg, png, gif or webp image and applies its EXIF orientation.
func Decode(r io.Reader) (*Frame, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img)
}

// DecodeBytes is Decode over an in-memory payload.
func DecodeBytes(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode image: empty payload")
	}
	return Decode(bytes.NewReader(data))
}

func (f *Frame) Width() int  { return f.img.Rect.Dx() }
func (f *Frame) Height() int { return f.img.Rect.Dy() }

// Image exposes the underlying pixels for read-only use.
func (f *Frame) Image() *image.NRGBA { return f.img }

// RGB returns the color channels at (x, y).
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	i := f.img.PixOffset(x, y)
	p := f.img.Pix[i : i+3 : i+3]
	return p[0], p[1], p[2]
}

// IsPortrait reports whether the frame is taller than wide.
func (f *Frame) IsPortrait() bool {
	return f.Height() > f.Width()
}

// PreviewDataURL renders a PNG data URL no wider than maxWidth, used as the
// preview image kept with a scan record.
func (f *Frame) PreviewDataURL(maxWidth int) (string, error) {
	var img image.Image = f.img
	if maxWidth > 0 && f.Width() > maxWidth {
		img = imaging.Resize(f.img, maxWidth, 0, imaging.Box)
	}
	return EncodePNGDataURL(img)
}

// EncodePNGDataURL renders img as a base64 PNG data URL.
func EncodePNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
