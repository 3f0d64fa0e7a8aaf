package repository

import (
	"context"
	"strings"
	"time"

	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/google/uuid"
)

// DefaultMaxScans is how many records a store keeps when not configured.
const DefaultMaxScans = 10

// ScanRepository defines the persistence contract for accepted readings.
// Implementations keep at most MaxScans records, newest first, and persist
// each Append before returning.
type ScanRepository interface {
	// Append assigns an id and timestamp, prepends the record and evicts the oldest beyond the cap
	Append(ctx context.Context, scan models.NewScan) (models.ScanRecord, error)

	// List returns every stored record, newest first
	List(ctx context.Context) ([]models.ScanRecord, error)

	// Get returns a single record or ErrScanNotFound
	Get(ctx context.Context, id string) (models.ScanRecord, error)

	// Close releases the backend
	Close() error
}

// NewRecord builds the record a store persists for scan.
func NewRecord(scan models.NewScan) (models.ScanRecord, error) {
	if strings.TrimSpace(scan.Normalized) == "" {
		return models.ScanRecord{}, ErrEmptyReading
	}
	return models.ScanRecord{
		ID:             uuid.NewString(),
		Raw:            scan.Raw,
		Normalized:     scan.Normalized,
		Timestamp:      time.Now().UTC().Truncate(time.Microsecond), // postgres precision
		OCRText:        scan.OCRText,
		FilteredText:   scan.FilteredText,
		PreviewImage:   scan.PreviewImage,
		Source:         scan.Source,
		ManuallyEdited: scan.ManuallyEdited,
	}, nil
}

// NormalizeMax returns max, or DefaultMaxScans when max is not positive.
func NormalizeMax(max int) int {
	if max <= 0 {
		return DefaultMaxScans
	}
	return max
}
