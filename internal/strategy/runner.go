package strategy

import (
	"context"
	"image"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/frame"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/recognizer"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/sirupsen/logrus"
)

// Progress bounds reported while strategies run
const (
	ProgressStart = 10
	ProgressEnd   = 85
)

// DefaultAcceptConfidence stops the loop once a result is confident enough.
const DefaultAcceptConfidence = 0.70

// ProgressFunc receives the overall capture progress and the strategy about
// to run.
type ProgressFunc func(percent int, strategy string)

// Outcome is the best result the loop found.
type Outcome struct {
	Best         models.RecognitionResult
	StrategyName string
	Image        *image.Gray
	Attempts     []models.StrategyAttempt
}

// Succeeded reports whether any attempt produced a result.
func (o Outcome) Succeeded() bool {
	return o.StrategyName != ""
}

// Runner tries strategies one after another against a single recognizer.
type Runner struct {
	recognizer       recognizer.Recognizer
	strategies       []RecognitionStrategy
	acceptConfidence float64
	whitelist        string
	log              *logrus.Entry
}

// NewRunner creates a runner. whitelist may be empty to use the recognizer's.
func NewRunner(rec recognizer.Recognizer, strategies []RecognitionStrategy, acceptConfidence float64, whitelist string) *Runner {
	if acceptConfidence <= 0 {
		acceptConfidence = DefaultAcceptConfidence
	}
	return &Runner{
		recognizer:       rec,
		strategies:       strategies,
		acceptConfidence: acceptConfidence,
		whitelist:        whitelist,
		log:              logger.Component("strategy_runner"),
	}
}

// Strategies returns the configured strategy names in trial order.
func (r *Runner) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.GetStrategyName()
	}
	return names
}

// Run makes at most one recognizer call per strategy, in order, keeping the
// highest-confidence result and stopping as soon as one exceeds the accept
// threshold. A failed attempt is recorded and the next strategy runs; when
// every attempt fails the outcome has zero confidence and Succeeded is
// false. Cancellation is checked before each attempt.
func (r *Runner) Run(ctx context.Context, f *frame.Frame, progress ProgressFunc) (Outcome, error) {
	var out Outcome
	total := len(r.strategies)

	for i, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return out, apperrors.NewCancelledError("capture cancelled", err)
		}
		name := s.GetStrategyName()
		if progress != nil {
			progress(ProgressStart+(ProgressEnd-ProgressStart)*i/total, name)
		}

		img, err := s.Prepare(f)
		if err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypePreprocessFailure) {
				return out, err
			}
			out.Attempts = append(out.Attempts, models.StrategyAttempt{Strategy: name, Error: err.Error()})
			continue
		}

		res, err := r.recognizer.Recognize(ctx, recognizer.Request{
			Image:              img,
			CharacterWhitelist: r.whitelist,
			Mode:               s.Mode(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, apperrors.NewCancelledError("capture cancelled", ctx.Err())
			}
			r.log.WithFields(logrus.Fields{"strategy": name}).WithError(err).Warn("Recognition attempt failed")
			out.Attempts = append(out.Attempts, models.StrategyAttempt{Strategy: name, Error: err.Error()})
			continue
		}

		out.Attempts = append(out.Attempts, models.StrategyAttempt{Strategy: name, Confidence: res.Confidence})
		r.log.WithFields(logrus.Fields{
			"strategy":   name,
			"confidence": res.Confidence,
			"text":       res.RawText,
		}).Debug("Recognition attempt finished")

		if !out.Succeeded() || res.Confidence > out.Best.Confidence {
			out.Best = res
			out.StrategyName = name
			out.Image = img
		}
		if res.Confidence > r.acceptConfidence {
			break
		}
	}

	if progress != nil {
		progress(ProgressEnd, out.StrategyName)
	}
	return out, nil
}
