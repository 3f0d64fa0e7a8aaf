package services

import (
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/quality"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/anime-shed/meter-reader-go/pkg/validation"
)

// QualityReportService grades a frame for the capture screen
type QualityReportService struct {
	assessor   quality.Assessor
	validator  *validation.QualityValidator
	readyScore float64
}

// NewQualityReportService creates a new quality report service. readyScore
// is the score a frame must exceed to be reported ready for capture.
func NewQualityReportService(assessor quality.Assessor, validator *validation.QualityValidator, readyScore float64) *QualityReportService {
	return &QualityReportService{
		assessor:   assessor,
		validator:  validator,
		readyScore: readyScore,
	}
}

// Report assesses f and returns the graded report
func (s *QualityReportService) Report(f *frame.Frame) (*models.QualityReport, error) {
	if f == nil {
		return nil, apperrors.NewValidationError("image is required", nil)
	}
	start := time.Now()

	score := s.assessor.Assess(f)
	_, components := quality.BlendScore(score.Brightness, score.Sharpness, score.Glare)

	report := &models.QualityReport{
		Timestamp:  time.Now().Format(time.RFC3339),
		Width:      f.Width(),
		Height:     f.Height(),
		Quality:    score,
		Components: components,
		Checks:     s.createQualityChecks(score),
		Accepted:   true,
	}

	if err := s.validator.Gate(score); err != nil {
		report.Accepted = false
		if appErr, ok := apperrors.AsAppError(err); ok {
			report.RejectionReason = appErr.Context["reason"]
		}
	}
	report.ReadyForCapture = report.Accepted && score.Score > s.readyScore
	report.Grade = s.calculateGrade(report.Accepted, score.Score)
	report.ProcessingTimeSec = time.Since(start).Seconds()

	return report, nil
}

// createQualityChecks reports every threshold, passed or not
func (s *QualityReportService) createQualityChecks(score models.QualityScore) []models.QualityCheckResult {
	th := s.validator.Thresholds()
	checks := []models.QualityCheckResult{
		{
			CheckName:      "sharpness",
			Passed:         score.Sharpness >= th.MinSharpness,
			ActualValue:    score.Sharpness,
			ThresholdValue: th.MinSharpness,
			Severity:       "error",
		},
		{
			CheckName:      "min_brightness",
			Passed:         score.Brightness >= th.MinBrightness,
			ActualValue:    score.Brightness,
			ThresholdValue: th.MinBrightness,
			Severity:       "error",
		},
		{
			CheckName:      "max_glare",
			Passed:         score.Glare <= th.MaxGlare,
			ActualValue:    score.Glare,
			ThresholdValue: th.MaxGlare,
			Severity:       "error",
		},
		{
			CheckName:      "max_brightness",
			Passed:         score.Brightness <= th.MaxBrightness,
			ActualValue:    score.Brightness,
			ThresholdValue: th.MaxBrightness,
			Severity:       "warning",
		},
		{
			CheckName:      "reflections",
			Passed:         score.Glare <= th.WarnGlare,
			ActualValue:    score.Glare,
			ThresholdValue: th.WarnGlare,
			Severity:       "warning",
		},
		{
			CheckName:      "capture_score",
			Passed:         score.Score > s.readyScore,
			ActualValue:    score.Score,
			ThresholdValue: s.readyScore,
			Severity:       "info",
		},
	}

	messages := map[string][2]string{
		"sharpness":      {"Display is in focus", "Image is too blurry. Hold your phone steady and refocus."},
		"min_brightness": {"Lighting is sufficient", "Image is too dark. Increase lighting or move closer."},
		"max_glare":      {"No excessive glare", "Excessive glare detected. Change the angle to avoid reflections."},
		"max_brightness": {"Exposure is acceptable", "Image is very bright. Avoid direct light on the display."},
		"reflections":    {"No reflections detected", "Some reflections detected. Tilt the phone slightly."},
		"capture_score":  {"Ready to capture", "Framing can be improved before capturing."},
	}
	for i := range checks {
		m := messages[checks[i].CheckName]
		if checks[i].Passed {
			checks[i].Message = m[0]
			checks[i].Severity = "info"
		} else {
			checks[i].Message = m[1]
		}
	}
	return checks
}

func (s *QualityReportService) calculateGrade(accepted bool, score float64) string {
	switch {
	case !accepted:
		return "F"
	case score < 50:
		return "D"
	case score < 70:
		return "C"
	case score <= s.readyScore:
		return "B"
	default:
		return "A"
	}
}
