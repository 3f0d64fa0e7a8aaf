package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/config"
	"github.com/anime-shed/meter-reader-go/internal/recognizer/recognizertest"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8080",
		RequestTimeout:     5 * time.Second,
		CaptureTimeout:     5 * time.Second,
		RecognizerTimeout:  5 * time.Second,
		ImageFetchTimeout:  5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		StoreBackend:       config.StoreMemory,
		MaxScans:           10,
		OCRWhitelist:       "0123456789.",
		AcceptConfidence:   0.7,
		ReadingLabel:       "FR1",
		ReadingUnit:        "m3/Hr",
		CropBandFraction:   0.5,
		ScaleMultiplier:    2,
		DilationIterations: 2,
		ThresholdLevel:     0.3,
		MonitorInterval:    time.Second,
		AutoCaptureScore:   85,
	}
}

func TestNewContainer(t *testing.T) {
	fake := recognizertest.New()
	c, err := NewContainer(context.Background(), testConfig(), fake)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if c.Hub() == nil || c.Monitor() == nil || c.Config() == nil {
		t.Error("Expected hub, monitor and config to be wired")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.Closed() {
		t.Error("Expected the recognizer to be closed")
	}
}

func TestNewContainer_BadStore(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "nope"
	if _, err := NewContainer(context.Background(), cfg, recognizertest.New()); err == nil {
		t.Error("Expected error for unknown store backend")
	}
}

func TestNewContainer_BadReadingField(t *testing.T) {
	cfg := testConfig()
	cfg.ReadingLabel = " "
	if _, err := NewContainer(context.Background(), cfg, recognizertest.New()); err == nil {
		t.Error("Expected error for empty reading label")
	}
}
