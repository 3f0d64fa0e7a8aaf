package models

import "time"

// QualityScore is the measured suitability of a frame for recognition.
// Brightness, Sharpness and Glare are in [0,1]; Score is in [0,100].
type QualityScore struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
	Glare      float64 `json:"glare"`
	Score      float64 `json:"score"`
}

// QualityCheckResult is a single gate check with its measured value
type QualityCheckResult struct {
	CheckName      string  `json:"check_name"`
	Passed         bool    `json:"passed"`
	ActualValue    float64 `json:"actual_value"`
	ThresholdValue float64 `json:"threshold_value"`
	Message        string  `json:"message"`
	Severity       string  `json:"severity"` // "error", "warning", "info"
}

// ComponentScores breaks the blended score into its three terms (0-100 each)
type ComponentScores struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
	Glare      float64 `json:"glare"`
}

// QualityReport is the graded quality response served by /quality
type QualityReport struct {
	Timestamp         string               `json:"timestamp"`
	ProcessingTimeSec float64              `json:"processing_time_sec"`
	Width             int                  `json:"width"`
	Height            int                  `json:"height"`
	Quality           QualityScore         `json:"quality"`
	Components        ComponentScores      `json:"components"`
	Grade             string               `json:"grade"`
	Accepted          bool                 `json:"accepted"`
	ReadyForCapture   bool                 `json:"ready_for_capture"`
	RejectionReason   string               `json:"rejection_reason,omitempty"`
	Checks            []QualityCheckResult `json:"checks"`
}

// QualitySample is one tick of the live monitor
type QualitySample struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
	Quality   QualityScore `json:"quality"`
	Accepted  bool         `json:"accepted"`
	Reason    string       `json:"reason,omitempty"`
}
