package repository

import "errors"

var (
	// ErrScanNotFound indicates no record has the requested id
	ErrScanNotFound = errors.New("scan record not found")

	// ErrRepositoryUnavailable indicates the store has been closed or cannot be reached
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrEmptyReading indicates a scan without a normalized value
	ErrEmptyReading = errors.New("scan has no normalized reading")
)
