// Package recognizer defines the text recognition contract the capture
// pipeline consumes and the Tesseract adapter that implements it.
package recognizer

import (
	"context"
	"image"

	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// SegmentationMode tells the engine how the text is laid out.
type SegmentationMode int

const (
	// SingleWord treats the image as one token, e.g. "041.09".
	SingleWord SegmentationMode = iota
	// SingleLine treats the image as one line, e.g. "FR1 41.09 m3/Hr".
	SingleLine
)

func (m SegmentationMode) String() string {
	switch m {
	case SingleWord:
		return "single_word"
	case SingleLine:
		return "single_line"
	default:
		return "unknown"
	}
}

// DefaultWhitelist covers digits, separators and the letters of the
// register labels and units shown on flow meter displays.
const DefaultWhitelist = "0123456789.:FRTmHr/"

// Request is one recognition attempt. An empty whitelist falls back to the
// engine default.
type Request struct {
	Image              *image.Gray
	CharacterWhitelist string
	Mode               SegmentationMode
}

// Recognizer is an OCR engine with an explicit lifecycle. Implementations
// must be safe for sequential reuse across requests; callers close them
// once at shutdown.
type Recognizer interface {
	Name() string
	// Init prepares the engine ahead of the first request. Calling
	// Recognize without Init is allowed and initializes lazily.
	Init(ctx context.Context) error
	Recognize(ctx context.Context, req Request) (models.RecognitionResult, error)
	Close() error
}
