package tesseract

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/recognizer"
	"github.com/otiai10/gosseract/v2"
)

type fakeClient struct {
	mu        sync.Mutex
	text      string
	boxes     []gosseract.BoundingBox
	textErr   error
	delay     time.Duration
	languages []string
	whitelist string
	psm       gosseract.PageSegMode
	images    int
	closed    int
}

func (f *fakeClient) SetImageFromBytes(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images++
	return nil
}

func (f *fakeClient) SetLanguage(langs ...string) error {
	f.languages = langs
	return nil
}

func (f *fakeClient) SetWhitelist(whitelist string) error {
	f.whitelist = whitelist
	return nil
}

func (f *fakeClient) SetPageSegMode(mode gosseract.PageSegMode) error {
	f.psm = mode
	return nil
}

func (f *fakeClient) Text() (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.text, f.textErr
}

func (f *fakeClient) GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	return f.boxes, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func symbol(char string, conf float64, x int) gosseract.BoundingBox {
	return gosseract.BoundingBox{Box: image.Rect(x, 2, x+8, 14), Word: char, Confidence: conf}
}

func newTestEngine(opts Options, client *fakeClient) (*Engine, *int) {
	e := New(opts)
	created := 0
	e.clientFactory = func() tessClient {
		created++
		return client
	}
	return e, &created
}

func testImage() *image.Gray {
	return image.NewGray(image.Rect(0, 0, 32, 16))
}

func TestRecognize_BuildsPerCharacterResult(t *testing.T) {
	client := &fakeClient{
		text:  " 41.09\n",
		boxes: []gosseract.BoundingBox{symbol("4", 90, 0), symbol("1", 80, 8), symbol(" ", 10, 16), symbol(".", 70, 24)},
	}
	e, created := newTestEngine(DefaultOptions(), client)

	res, err := e.Recognize(context.Background(), recognizer.Request{Image: testImage()})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.RawText != "41.09" {
		t.Errorf("Expected trimmed text, got %q", res.RawText)
	}
	if len(res.PerCharacter) != 3 {
		t.Fatalf("Expected blank symbols to be skipped, got %d characters", len(res.PerCharacter))
	}
	if got := res.Confidence; got < 0.7999 || got > 0.8001 {
		t.Errorf("Expected mean confidence 0.8, got %f", got)
	}
	if bb := res.PerCharacter[1].BBox; bb.X0 != 8 || bb.X1 != 16 || bb.Y0 != 2 || bb.Y1 != 14 {
		t.Errorf("Unexpected bbox %+v", bb)
	}
	if client.whitelist != recognizer.DefaultWhitelist {
		t.Errorf("Expected default whitelist, got %q", client.whitelist)
	}
	if client.psm != gosseract.PSM_SINGLE_WORD {
		t.Errorf("Expected single word mode, got %v", client.psm)
	}
	if len(client.languages) != 1 || client.languages[0] != "eng" {
		t.Errorf("Expected eng language, got %v", client.languages)
	}

	_, err = e.Recognize(context.Background(), recognizer.Request{
		Image:              testImage(),
		CharacterWhitelist: "0123456789.",
		Mode:               recognizer.SingleLine,
	})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if client.whitelist != "0123456789." || client.psm != gosseract.PSM_SINGLE_LINE {
		t.Errorf("Expected request overrides, got %q/%v", client.whitelist, client.psm)
	}
	if *created != 1 {
		t.Errorf("Expected client to be created once, got %d", *created)
	}
}

func TestBuildResult_ClampsAndHandlesEmpty(t *testing.T) {
	res := buildResult("7", []gosseract.BoundingBox{symbol("7", 140, 0)})
	if res.Confidence != 1 {
		t.Errorf("Expected confidence clamped to 1, got %f", res.Confidence)
	}
	if empty := buildResult("", nil); empty.Confidence != 0 || empty.PerCharacter != nil {
		t.Errorf("Expected zero result, got %+v", empty)
	}
}

func TestRecognize_Timeout(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	e, _ := newTestEngine(opts, &fakeClient{text: "1", delay: 300 * time.Millisecond})

	_, err := e.Recognize(context.Background(), recognizer.Request{Image: testImage()})
	if !apperrors.IsType(err, apperrors.ErrorTypeRecognizerTimeout) {
		t.Errorf("Expected recognizer timeout, got %v", err)
	}
}

func TestRecognize_CancelledContext(t *testing.T) {
	e, _ := newTestEngine(DefaultOptions(), &fakeClient{text: "1", delay: 300 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Recognize(ctx, recognizer.Request{Image: testImage()})
	if !apperrors.IsType(err, apperrors.ErrorTypeCancelled) {
		t.Errorf("Expected cancelled error, got %v", err)
	}
}

func TestRecognize_Errors(t *testing.T) {
	e, _ := newTestEngine(DefaultOptions(), &fakeClient{textErr: errors.New("tesseract crashed")})

	if _, err := e.Recognize(context.Background(), recognizer.Request{}); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for missing image, got %v", err)
	}
	if _, err := e.Recognize(context.Background(), recognizer.Request{Image: testImage()}); !apperrors.IsType(err, apperrors.ErrorTypeRecognizerUnavailable) {
		t.Errorf("Expected recognizer unavailable, got %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	client := &fakeClient{text: "5"}
	e, created := newTestEngine(DefaultOptions(), client)

	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if *created != 1 {
		t.Errorf("Expected one client, got %d", *created)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if client.closed != 1 {
		t.Errorf("Expected client closed once, got %d", client.closed)
	}

	_, err := e.Recognize(context.Background(), recognizer.Request{Image: testImage()})
	if !apperrors.IsType(err, apperrors.ErrorTypeRecognizerUnavailable) {
		t.Errorf("Expected closed engine to be unavailable, got %v", err)
	}
	if err := e.Init(context.Background()); err == nil {
		t.Error("Expected Init after Close to fail")
	}
}
