// Package livefeed keeps the most recent camera frame for the monitor and
// for live captures.
package livefeed

import (
	"sync"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/frame"
)

// Feed is a single-slot buffer. Publishing replaces the previous frame;
// readers never block writers for longer than a pointer swap.
type Feed struct {
	mu        sync.RWMutex
	latest    *frame.Frame
	seq       uint64
	updatedAt time.Time
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{}
}

// Publish stores f as the latest frame and returns its sequence number.
func (lf *Feed) Publish(f *frame.Frame) uint64 {
	if f == nil {
		return 0
	}
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.seq++
	lf.latest = f
	lf.updatedAt = time.Now()
	return lf.seq
}

// Latest returns the newest frame and its sequence number. ok is false until
// the first frame arrives.
func (lf *Feed) Latest() (f *frame.Frame, seq uint64, ok bool) {
	lf.mu.RLock()
	defer lf.mu.RUnlock()
	return lf.latest, lf.seq, lf.latest != nil
}

// UpdatedAt reports when the last frame was published.
func (lf *Feed) UpdatedAt() time.Time {
	lf.mu.RLock()
	defer lf.mu.RUnlock()
	return lf.updatedAt
}
