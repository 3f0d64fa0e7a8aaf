package models

import "encoding/json"

// CaptureSourceRequest selects a remote or live frame for a capture.
// Multipart uploads carry the image in the "image" form field instead.
type CaptureSourceRequest struct {
	URL      string          `json:"url,omitempty"`
	BlobURL  string          `json:"blob_url,omitempty"`
	Live     bool            `json:"live,omitempty"`
	Expected string          `json:"expected,omitempty"`
	Filter   json.RawMessage `json:"filter,omitempty"`
}

// TextScanRequest submits already-recognized text for extraction
type TextScanRequest struct {
	Text   string          `json:"text" binding:"required"`
	Filter json.RawMessage `json:"filter,omitempty"`
}

// ManualScanRequest records a user-entered value
type ManualScanRequest struct {
	Value        string `json:"value" binding:"required"`
	OCRText      string `json:"ocr_text,omitempty"`
	FilteredText string `json:"filtered_text,omitempty"`
	SourceScanID string `json:"source_scan_id,omitempty"`
}

// FilterRequest runs the filter engine over text
type FilterRequest struct {
	Text   string          `json:"text"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ExtractRequest runs the value extractor over text
type ExtractRequest struct {
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// MonitorRequest starts the live quality monitor
type MonitorRequest struct {
	AutoCapture *bool `json:"auto_capture,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Type    string            `json:"type,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}
