package repository

import (
	"context"
	"sync"

	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// MemoryRepository keeps records in process memory. It backs tests and the
// "memory" store backend.
type MemoryRepository struct {
	mu      sync.RWMutex
	max     int
	records []models.ScanRecord
	closed  bool
}

// NewMemoryRepository creates an empty store capped at maxScans.
func NewMemoryRepository(maxScans int) *MemoryRepository {
	return &MemoryRepository{max: NormalizeMax(maxScans)}
}

func (r *MemoryRepository) Append(ctx context.Context, scan models.NewScan) (models.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ScanRecord{}, err
	}
	rec, err := NewRecord(scan)
	if err != nil {
		return models.ScanRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.ScanRecord{}, ErrRepositoryUnavailable
	}

	records := make([]models.ScanRecord, 0, min(len(r.records)+1, r.max))
	records = append(records, rec)
	records = append(records, r.records...)
	if len(records) > r.max {
		records = records[:r.max]
	}
	r.records = records
	return rec, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]models.ScanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRepositoryUnavailable
	}
	out := make([]models.ScanRecord, len(r.records))
	copy(out, r.records)
	return out, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (models.ScanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return models.ScanRecord{}, ErrRepositoryUnavailable
	}
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.ScanRecord{}, ErrScanNotFound
}

func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
