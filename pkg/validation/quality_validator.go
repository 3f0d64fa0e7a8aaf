package validation

import (
	"strconv"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// Rejection reasons reported by the quality gate
const (
	ReasonTooBlurry      = "too blurry"
	ReasonTooDark        = "too dark"
	ReasonExcessiveGlare = "excessive glare"
)

// QualityThresholds defines configurable thresholds for the capture gate
type QualityThresholds struct {
	// Hard gates (normalized [0,1])
	MinSharpness  float64
	MinBrightness float64
	MaxGlare      float64

	// Soft warnings
	MaxBrightness   float64
	WarnGlare       float64
	MinCaptureScore float64
}

// DefaultQualityThresholds returns the default quality thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinSharpness:    0.1,
		MinBrightness:   0.2,
		MaxGlare:        0.4,
		MaxBrightness:   0.9,
		WarnGlare:       0.15,
		MinCaptureScore: 85,
	}
}

// QualityValidator handles frame quality gating
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// Thresholds returns the thresholds in effect
func (qv *QualityValidator) Thresholds() QualityThresholds {
	return qv.thresholds
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Reason      string  `json:"reason,omitempty"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "error", "warning", "info"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// Validate lists every issue for the score. Error issues come first, in
// gate order: sharpness, brightness, glare.
func (qv *QualityValidator) Validate(score models.QualityScore) []QualityIssue {
	var issues []QualityIssue

	if score.Sharpness < qv.thresholds.MinSharpness {
		issues = append(issues, QualityIssue{
			Type:        "blurriness",
			Reason:      ReasonTooBlurry,
			Message:     "Image is too blurry. Hold your phone steady and refocus.",
			Severity:    "error",
			ActualValue: score.Sharpness,
			Threshold:   qv.thresholds.MinSharpness,
		})
	}
	if score.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_dark",
			Reason:      ReasonTooDark,
			Message:     "Image is too dark. Increase lighting or move closer.",
			Severity:    "error",
			ActualValue: score.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	}
	if score.Glare > qv.thresholds.MaxGlare {
		issues = append(issues, QualityIssue{
			Type:        "glare",
			Reason:      ReasonExcessiveGlare,
			Message:     "Excessive glare detected. Change the angle to avoid reflections.",
			Severity:    "error",
			ActualValue: score.Glare,
			Threshold:   qv.thresholds.MaxGlare,
		})
	}

	if score.Brightness > qv.thresholds.MaxBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_bright",
			Message:     "Image is very bright. Avoid direct light on the display.",
			Severity:    "warning",
			ActualValue: score.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}
	if score.Glare > qv.thresholds.WarnGlare && score.Glare <= qv.thresholds.MaxGlare {
		issues = append(issues, QualityIssue{
			Type:        "glare",
			Message:     "Some reflections detected. Tilt the phone slightly.",
			Severity:    "warning",
			ActualValue: score.Glare,
			Threshold:   qv.thresholds.WarnGlare,
		})
	}
	if score.Score < qv.thresholds.MinCaptureScore {
		issues = append(issues, QualityIssue{
			Type:        "low_score",
			Message:     "Framing can be improved before capturing.",
			Severity:    "info",
			ActualValue: score.Score,
			Threshold:   qv.thresholds.MinCaptureScore,
		})
	}

	return issues
}

// Gate returns a QualityRejected error for the first failing hard check, or nil.
func (qv *QualityValidator) Gate(score models.QualityScore) error {
	for _, issue := range qv.Validate(score) {
		if issue.Severity != "error" {
			continue
		}
		err := apperrors.NewQualityRejectedError(issue.Reason)
		err.Details = issue.Message
		return err.
			WithContext("brightness", formatMetric(score.Brightness)).
			WithContext("sharpness", formatMetric(score.Sharpness)).
			WithContext("glare", formatMetric(score.Glare)).
			WithContext("score", formatMetric(score.Score))
	}
	return nil
}

// ConvertIssuesToMessages converts quality issues to simple messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HasCriticalIssues checks if there are any critical (error severity) issues
func (qv *QualityValidator) HasCriticalIssues(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
