// Package worker runs background jobs on a fixed set of goroutines.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/anime-shed/meter-reader-go/internal/logger"
)

// Stats is a point-in-time view of the pool counters
type Stats struct {
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
	QueuedJobs    int   `json:"queued_jobs"`
	Workers       int   `json:"workers"`
}

// Pool manages background capture jobs
type Pool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once

	mu     sync.RWMutex
	closed bool

	total     atomic.Int64
	completed atomic.Int64
	active    atomic.Int64
}

// NewPool creates a pool with the given number of workers and a queue
// twice that size.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Pool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Calling it again has no effect.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	for job := range p.jobQueue {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Worker job panicked")
		}
		p.active.Add(-1)
		p.completed.Add(1)
		p.wg.Done()
	}()
	job()
}

// Submit queues job, blocking while the queue is full. It returns false
// once the pool is closed.
func (p *Pool) Submit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	p.total.Add(1)
	p.jobQueue <- job
	return true
}

// TrySubmit queues job only if there is room right now.
func (p *Pool) TrySubmit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	select {
	case p.jobQueue <- job:
		p.total.Add(1)
		return true
	default:
		p.wg.Done()
		return false
	}
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting jobs and lets the workers drain the queue.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.jobQueue)
}

// GetStats returns the current counters.
func (p *Pool) GetStats() Stats {
	return Stats{
		TotalJobs:     p.total.Load(),
		CompletedJobs: p.completed.Load(),
		ActiveWorkers: p.active.Load(),
		QueuedJobs:    len(p.jobQueue),
		Workers:       p.workers,
	}
}
