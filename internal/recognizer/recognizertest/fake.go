// Package recognizertest provides a scripted recognizer for tests.
package recognizertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/anime-shed/meter-reader-go/internal/recognizer"
	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// Step is one scripted answer.
type Step struct {
	Result models.RecognitionResult
	Err    error
}

// Text is a step returning text at the given confidence.
func Text(text string, confidence float64) Step {
	return Step{Result: models.RecognitionResult{RawText: text, Confidence: confidence}}
}

// Fail is a step returning err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Fake answers Recognize calls from its script in order. When the script is
// exhausted the last step repeats. Block, when set, is waited on before
// every answer.
type Fake struct {
	mu       sync.Mutex
	steps    []Step
	requests []recognizer.Request
	closed   bool
	Block    chan struct{}
}

var _ recognizer.Recognizer = (*Fake)(nil)

// New creates a fake with the given script.
func New(steps ...Step) *Fake {
	return &Fake{steps: steps}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Init(ctx context.Context) error { return nil }

func (f *Fake) Recognize(ctx context.Context, req recognizer.Request) (models.RecognitionResult, error) {
	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	closed := f.closed
	block := f.Block
	f.mu.Unlock()

	if closed {
		return models.RecognitionResult{}, fmt.Errorf("fake recognizer closed")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.RecognitionResult{}, ctx.Err()
		}
	}
	if len(f.steps) == 0 {
		return models.RecognitionResult{}, fmt.Errorf("no scripted result")
	}
	step := f.steps[min(n, len(f.steps)-1)]
	return step.Result, step.Err
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns how many times Recognize was invoked.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the requests seen so far.
func (f *Fake) Requests() []recognizer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recognizer.Request(nil), f.requests...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
