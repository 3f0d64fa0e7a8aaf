package models

import "time"

// NewScan is what the pipeline hands to the store; id and timestamp are
// assigned by the store.
type NewScan struct {
	Raw            string `json:"raw"`
	Normalized     string `json:"normalized"`
	OCRText        string `json:"ocr_text"`
	FilteredText   string `json:"filtered_text,omitempty"`
	PreviewImage   string `json:"preview_image,omitempty"`
	Source         string `json:"source,omitempty"`
	ManuallyEdited bool   `json:"manually_edited"`
}

// ScanRecord is an accepted reading. Records are never mutated after creation.
type ScanRecord struct {
	ID             string    `json:"id"`
	Raw            string    `json:"raw"`
	Normalized     string    `json:"normalized"`
	Timestamp      time.Time `json:"timestamp"`
	OCRText        string    `json:"ocr_text"`
	FilteredText   string    `json:"filtered_text,omitempty"`
	PreviewImage   string    `json:"preview_image,omitempty"`
	Source         string    `json:"source,omitempty"`
	ManuallyEdited bool      `json:"manually_edited"`
}

// Record sources
const (
	SourceUpload = "upload"
	SourceURL    = "url"
	SourceBlob   = "blob"
	SourceLive   = "live"
	SourceText   = "text"
	SourceManual = "manual"
)

// CaptureResult is everything a successful capture produced
type CaptureResult struct {
	Record       ScanRecord          `json:"record"`
	Value        ExtractedValue      `json:"value"`
	Secondary    map[string]string   `json:"secondary,omitempty"`
	Quality      QualityScore        `json:"quality"`
	Recognition  RecognitionResult   `json:"recognition"`
	Strategy     string              `json:"strategy"`
	Attempts     []StrategyAttempt   `json:"attempts"`
	Reading      Reading             `json:"reading"`
	Filter       *FilterSummary      `json:"filter,omitempty"`
	Accuracy     *Accuracy           `json:"accuracy,omitempty"`
	ProcessingMs int64               `json:"processing_ms"`
}

// StrategyAttempt records one recognizer call made by the strategy loop
type StrategyAttempt struct {
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// FilterSummary is the part of a filter result kept with a capture
type FilterSummary struct {
	FilteredText string              `json:"filtered_text"`
	TotalLines   int                 `json:"total_lines"`
	MatchCount   int                 `json:"match_count"`
	Categories   map[string][]string `json:"categories"`
}

// Capture job states
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// JobStatus is a snapshot of a background capture
type JobStatus struct {
	ID         string         `json:"id"`
	State      string         `json:"state"`
	Progress   int            `json:"progress"`
	Stage      string         `json:"stage,omitempty"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Result     *CaptureResult `json:"result,omitempty"`
	Error      *ErrorResponse `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (s JobStatus) Done() bool {
	return s.State == JobCompleted || s.State == JobFailed || s.State == JobCancelled
}
