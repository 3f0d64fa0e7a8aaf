package service

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// Job is one background capture. Its state only moves forward and its
// progress never decreases.
type Job struct {
	id     string
	source string
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	state      string
	progress   int
	stage      string
	startedAt  time.Time
	finishedAt time.Time
	result     *models.CaptureResult
	err        error
}

func newJob(id, source string, cancel context.CancelFunc) *Job {
	return &Job{
		id:        id,
		source:    source,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     models.JobQueued,
		startedAt: time.Now().UTC(),
	}
}

func (j *Job) ID() string { return j.id }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx ends and returns the latest status.
func (j *Job) Wait(ctx context.Context) models.JobStatus {
	select {
	case <-j.done:
	case <-ctx.Done():
	}
	return j.Status()
}

// Err returns the terminal error, if any.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Status returns a snapshot of the job.
func (j *Job) Status() models.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	st := models.JobStatus{
		ID:        j.id,
		State:     j.state,
		Progress:  j.progress,
		Stage:     j.stage,
		Source:    j.source,
		StartedAt: j.startedAt,
		Result:    j.result,
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		st.FinishedAt = &t
	}
	if j.err != nil {
		st.Error = errorResponse(j.err)
	}
	return st
}

func (j *Job) inFlight() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// advance moves progress forward. It reports false when nothing changed.
func (j *Job) advance(progress int, stage string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != models.JobQueued && j.state != models.JobRunning {
		return false
	}
	j.state = models.JobRunning
	if progress <= j.progress && stage == j.stage {
		return false
	}
	j.progress = max(j.progress, progress)
	j.stage = stage
	return true
}

func (j *Job) finish(state string, result *models.CaptureResult, err error) {
	j.mu.Lock()
	j.state = state
	j.result = result
	j.err = err
	j.finishedAt = time.Now().UTC()
	if state == models.JobCompleted {
		j.progress = 100
	}
	j.mu.Unlock()

	j.cancel()
	close(j.done)
}

func errorResponse(err error) *models.ErrorResponse {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return &models.ErrorResponse{
			Error:   string(appErr.Type),
			Message: appErr.Message,
			Type:    string(appErr.Type),
			Context: appErr.Context,
		}
	}
	return &models.ErrorResponse{Error: "internal", Message: err.Error(), Type: string(apperrors.ErrorTypeInternal)}
}
