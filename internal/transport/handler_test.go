package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/config"
	"github.com/anime-shed/meter-reader-go/internal/extractor"
	"github.com/anime-shed/meter-reader-go/internal/hub"
	"github.com/anime-shed/meter-reader-go/internal/livefeed"
	"github.com/anime-shed/meter-reader-go/internal/observer"
	"github.com/anime-shed/meter-reader-go/internal/preprocess"
	"github.com/anime-shed/meter-reader-go/internal/quality"
	"github.com/anime-shed/meter-reader-go/internal/recognizer"
	"github.com/anime-shed/meter-reader-go/internal/recognizer/recognizertest"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/internal/service"
	"github.com/anime-shed/meter-reader-go/internal/strategy"
	"github.com/anime-shed/meter-reader-go/internal/worker"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/anime-shed/meter-reader-go/pkg/services"
	"github.com/anime-shed/meter-reader-go/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	handler http.Handler
	feed    *livefeed.Feed
	monitor *quality.Monitor
}

func newTestServer(t *testing.T, fake *recognizertest.Fake) *testServer {
	t.Helper()
	cfg := &config.Config{
		RequestTimeout:     5 * time.Second,
		CaptureTimeout:     5 * time.Second,
		MaxRequestBodySize: 4 << 20,
	}

	pre, err := preprocess.NewPreprocessor(preprocess.DefaultOptions())
	if err != nil {
		t.Fatalf("NewPreprocessor() error = %v", err)
	}
	pool := worker.NewPool(1)
	pool.Start()
	t.Cleanup(pool.Close)

	publisher := observer.NewEventPublisher()
	metricsObs := observer.NewMetricsObserver()
	publisher.Subscribe(metricsObs)

	assessor := quality.NewAssessor()
	gate := validation.NewQualityValidator()
	flow := extractor.MustNew(extractor.FlowRate)
	scans := service.NewScanService(service.Dependencies{
		Assessor:  assessor,
		Gate:      gate,
		Runner:    strategy.NewRunner(fake, strategy.DefaultStrategies(pre), strategy.DefaultAcceptConfidence, recognizer.DefaultWhitelist),
		Extractor: flow,
		Repo:      repository.NewMemoryRepository(repository.DefaultMaxScans),
		Pool:      pool,
		Publisher: publisher,
	}, service.DefaultOptions())

	feed := livefeed.New()
	monitor := quality.NewMonitor(assessor, feed, gate, quality.DefaultMonitorOptions(), nil, nil)
	t.Cleanup(monitor.Stop)

	h := NewHandler(Dependencies{
		Scans:        scans,
		Frames:       service.NewFrameResolver(nil, nil, feed),
		Reports:      services.NewQualityReportService(assessor, gate, 85),
		Preprocessor: pre,
		Extractor:    flow,
		Metrics:      metricsObs,
		Publisher:    publisher,
		Monitor:      monitor,
		Feed:         feed,
		Hub:          hub.NewHub(),
	}, cfg)
	return &testServer{handler: h, feed: feed, monitor: monitor}
}

func createTestPNG(t *testing.T, fill func(x, y int) color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func sharpPNG(t *testing.T) []byte {
	return createTestPNG(t, func(x, _ int) color.RGBA {
		if x%2 == 0 {
			return color.RGBA{100, 100, 100, 255}
		}
		return color.RGBA{156, 156, 156, 255}
	})
}

func multipartRequest(t *testing.T, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if image != nil {
		part, err := w.CreateFormFile("image", "frame.png")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write(image)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, v any) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, recognizertest.New())
	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "available" {
		t.Errorf("Expected status available, got %v", body)
	}
}

func TestCaptureUpload_Wait(t *testing.T) {
	s := newTestServer(t, recognizertest.New(recognizertest.Text("FR1 041.09 m3/Hr", 0.9)))

	w := serve(s, multipartRequest(t, "/scans/capture?wait=true", sharpPNG(t), map[string]string{"expected": "41.09"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var status models.JobStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.State != models.JobCompleted || status.Result == nil || status.Result.Value.Normalized != "41.09" {
		t.Fatalf("Unexpected status %+v", status)
	}

	w = serve(s, httptest.NewRequest(http.MethodGet, "/scans", nil))
	var list struct {
		Scans []models.ScanRecord `json:"scans"`
		Count int                 `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if list.Count != 1 || list.Scans[0].ID != status.Result.Record.ID {
		t.Fatalf("Expected the capture in history, got %+v", list)
	}

	w = serve(s, httptest.NewRequest(http.MethodGet, "/scans/"+list.Scans[0].ID, nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for stored scan, got %d", w.Code)
	}

	w = serve(s, httptest.NewRequest(http.MethodGet, "/scans/jobs/current", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected current job status, got %d", w.Code)
	}
}

func TestCapture_Errors(t *testing.T) {
	s := newTestServer(t, recognizertest.New(recognizertest.Text("FR1 1 m3/Hr", 0.9)))
	black := createTestPNG(t, func(int, int) color.RGBA { return color.RGBA{0, 0, 0, 255} })

	tests := []struct {
		name     string
		req      *http.Request
		code     int
		errType  string
		checkCtx func(map[string]string) bool
	}{
		{
			name:    "blurry frame",
			req:     multipartRequest(t, "/scans/capture", black, nil),
			code:    http.StatusUnprocessableEntity,
			errType: "quality_rejected",
			checkCtx: func(ctx map[string]string) bool {
				return ctx["reason"] == validation.ReasonTooBlurry
			},
		},
		{
			name:    "missing image",
			req:     multipartRequest(t, "/scans/capture", nil, map[string]string{"expected": "1"}),
			code:    http.StatusBadRequest,
			errType: "validation",
		},
		{
			name:    "undecodable image",
			req:     multipartRequest(t, "/scans/capture", []byte("not an image"), nil),
			code:    http.StatusBadRequest,
			errType: "preprocess_failure",
		},
		{
			name:    "no source",
			req:     jsonRequest(http.MethodPost, "/scans/capture", map[string]string{}),
			code:    http.StatusBadRequest,
			errType: "validation",
		},
		{
			name:    "url without fetcher",
			req:     jsonRequest(http.MethodPost, "/scans/capture", map[string]string{"url": "http://example.com/a.png"}),
			code:    http.StatusBadRequest,
			errType: "validation",
		},
		{
			name:    "live without frames",
			req:     httptest.NewRequest(http.MethodPost, "/scans/capture?source=live", nil),
			code:    http.StatusNotFound,
			errType: "not_found",
		},
		{
			name:    "unknown filter preset",
			req:     multipartRequest(t, "/scans/capture", sharpPNG(t), map[string]string{"filter": `"nope"`}),
			code:    http.StatusBadRequest,
			errType: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, tt.req)
			if w.Code != tt.code {
				t.Fatalf("Expected status %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Type != tt.errType {
				t.Errorf("Expected error type %s, got %s", tt.errType, resp.Type)
			}
			if tt.checkCtx != nil && !tt.checkCtx(resp.Context) {
				t.Errorf("Unexpected error context %v", resp.Context)
			}
		})
	}
}

func TestCapture_ConflictAndCancel(t *testing.T) {
	fake := recognizertest.New(recognizertest.Text("FR1 1 m3/Hr", 0.9))
	fake.Block = make(chan struct{})
	s := newTestServer(t, fake)

	w := serve(s, multipartRequest(t, "/scans/capture", sharpPNG(t), nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	w = serve(s, multipartRequest(t, "/scans/capture", sharpPNG(t), nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Context["job_id"] == "" {
		t.Error("Expected in-flight job id in conflict response")
	}

	w = serve(s, httptest.NewRequest(http.MethodDelete, "/scans/jobs/current", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202 on cancel, got %d", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = serve(s, httptest.NewRequest(http.MethodGet, "/scans/jobs/current", nil))
		var status models.JobStatus
		json.Unmarshal(w.Body.Bytes(), &status)
		if status.State == models.JobCancelled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected job to be cancelled, last state %s", status.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = serve(s, httptest.NewRequest(http.MethodDelete, "/scans/jobs/current", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when nothing is in flight, got %d", w.Code)
	}
}

func TestScanTextAndManual(t *testing.T) {
	s := newTestServer(t, recognizertest.New())

	w := serve(s, jsonRequest(http.MethodPost, "/scans/text", models.TextScanRequest{Text: "FR1: 7.5 m3/Hr"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var result models.CaptureResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if result.Value.Normalized != "7.5" {
		t.Errorf("Expected 7.5, got %q", result.Value.Normalized)
	}

	w = serve(s, jsonRequest(http.MethodPost, "/scans/text", models.TextScanRequest{Text: "invalid text"}))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", w.Code)
	}

	w = serve(s, jsonRequest(http.MethodPost, "/scans/manual", models.ManualScanRequest{Value: "0012.40", SourceScanID: result.Record.ID}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var record models.ScanRecord
	json.Unmarshal(w.Body.Bytes(), &record)
	if record.Normalized != "12.40" || !record.ManuallyEdited {
		t.Errorf("Unexpected manual record %+v", record)
	}

	w = serve(s, jsonRequest(http.MethodPost, "/scans/manual", map[string]string{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing value, got %d", w.Code)
	}

	w = serve(s, httptest.NewRequest(http.MethodGet, "/scans/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestFilterEndpoint(t *testing.T) {
	s := newTestServer(t, recognizertest.New())

	w := serve(s, jsonRequest(http.MethodPost, "/filter", map[string]any{
		"text":   "FR1 41.09 m3/Hr\nmail me at a@b.io\nnoise",
		"config": map[string]any{"patterns": []string{"FR1", "("}},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		FilteredText    string   `json:"filtered_text"`
		MatchCount      int      `json:"match_count"`
		InvalidPatterns []string `json:"invalid_patterns"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.FilteredText != "FR1 41.09 m3/Hr" || resp.MatchCount != 1 {
		t.Errorf("Unexpected filter result %+v", resp)
	}
	if len(resp.InvalidPatterns) != 1 || resp.InvalidPatterns[0] != "(" {
		t.Errorf("Expected the broken pattern reported, got %v", resp.InvalidPatterns)
	}

	w = serve(s, jsonRequest(http.MethodPost, "/filter", map[string]any{"text": "a\nb", "config": "meter"}))
	if w.Code != http.StatusOK {
		t.Errorf("Expected preset name to be accepted, got %d", w.Code)
	}
}

func TestExtractEndpoint(t *testing.T) {
	s := newTestServer(t, recognizertest.New())

	tests := []struct {
		name string
		req  models.ExtractRequest
		code int
		want string
	}{
		{name: "default field", req: models.ExtractRequest{Text: "FR1 041.09 m3/Hr"}, code: http.StatusOK, want: "41.09"},
		{name: "custom label", req: models.ExtractRequest{Text: "T1 001234.5 m3", Label: "T1", Unit: "m3"}, code: http.StatusOK, want: "1234.5"},
		{name: "no match", req: models.ExtractRequest{Text: "invalid text"}, code: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, jsonRequest(http.MethodPost, "/extract", tt.req))
			if w.Code != tt.code {
				t.Fatalf("Expected status %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			if tt.want == "" {
				return
			}
			var resp struct {
				Value models.ExtractedValue `json:"value"`
			}
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Value.Normalized != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, resp.Value.Normalized)
			}
		})
	}
}

func TestQualityAndPreprocess(t *testing.T) {
	s := newTestServer(t, recognizertest.New())

	w := serve(s, multipartRequest(t, "/quality", sharpPNG(t), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var report models.QualityReport
	json.Unmarshal(w.Body.Bytes(), &report)
	if report.Grade != "A" || !report.ReadyForCapture {
		t.Errorf("Unexpected report %+v", report)
	}

	w = serve(s, multipartRequest(t, "/preprocess", sharpPNG(t), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Expected a PNG body: %v", err)
	}
	// 40x20 frame, half-height band, doubled
	if b := img.Bounds(); b.Dx() != 80 || b.Dy() != 20 {
		t.Errorf("Expected 80x20 output, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestMonitorRoutes(t *testing.T) {
	s := newTestServer(t, recognizertest.New())

	w := serve(s, jsonRequest(http.MethodPost, "/monitor/start", models.MonitorRequest{}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !s.monitor.Status().Running {
		t.Error("Expected monitor to be running")
	}

	w = serve(s, jsonRequest(http.MethodPost, "/monitor/start", models.MonitorRequest{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected second start to fail, got %d", w.Code)
	}

	w = serve(s, httptest.NewRequest(http.MethodPost, "/monitor/stop", nil))
	if w.Code != http.StatusOK || s.monitor.Status().Running {
		t.Errorf("Expected monitor stopped, got %d", w.Code)
	}
}

func TestCameraSocket(t *testing.T) {
	s := newTestServer(t, recognizertest.New())
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/camera"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	conn.WriteMessage(websocket.BinaryMessage, []byte("garbage"))
	if err := conn.WriteMessage(websocket.BinaryMessage, sharpPNG(t)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if _, seq, ok := s.feed.Latest(); ok {
			if seq != 1 {
				t.Errorf("Expected only the decodable frame published, got sequence %d", seq)
			}
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("Timed out waiting for the frame")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
