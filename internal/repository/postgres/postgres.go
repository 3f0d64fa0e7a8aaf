// Package postgres stores scan records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DefaultTable holds the scan history when no table is configured.
const DefaultTable = "meter_scans"

// Store implements repository.ScanRepository on PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
	max   int
	log   *logrus.Entry
}

var _ repository.ScanRepository = (*Store)(nil)

// New connects, pings and migrates the scan table.
func New(ctx context.Context, databaseURL, table string, maxScans int) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if table == "" {
		table = DefaultTable
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:    db,
		table: pq.QuoteIdentifier(table),
		max:   repository.NormalizeMax(maxScans),
		log:   logger.Component("postgres_store"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.log.WithFields(logrus.Fields{"table": table, "max_scans": s.max}).Info("PostgreSQL scan store ready")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id UUID NOT NULL UNIQUE,
			raw TEXT NOT NULL,
			normalized TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			ocr_text TEXT NOT NULL DEFAULT '',
			filtered_text TEXT NOT NULL DEFAULT '',
			preview_image TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			manually_edited BOOLEAN NOT NULL DEFAULT FALSE
		)`, s.table))
	return err
}

func (s *Store) Append(ctx context.Context, scan models.NewScan) (models.ScanRecord, error) {
	rec, err := repository.NewRecord(scan)
	if err != nil {
		return models.ScanRecord{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// serializes concurrent appends so the trim sees every insert
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE`, s.table)); err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to lock scans: %w", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, raw, normalized, timestamp, ocr_text, filtered_text, preview_image, source, manually_edited)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table),
		rec.ID, rec.Raw, rec.Normalized, rec.Timestamp,
		rec.OCRText, rec.FilteredText, rec.PreviewImage, rec.Source, rec.ManuallyEdited,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			s.log.WithFields(logrus.Fields{"code": string(pqErr.Code), "detail": pqErr.Detail}).Error("Insert rejected by database")
		}
		return models.ScanRecord{}, fmt.Errorf("failed to insert scan: %w", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %[1]s WHERE seq NOT IN (SELECT seq FROM %[1]s ORDER BY seq DESC LIMIT $1)`, s.table), s.max)
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to trim scans: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to commit scan: %w", err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]models.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, raw, normalized, timestamp, ocr_text, filtered_text, preview_image, source, manually_edited
		FROM %s ORDER BY seq DESC LIMIT $1`, s.table), s.max)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	records := make([]models.ScanRecord, 0, s.max)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (models.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, raw, normalized, timestamp, ocr_text, filtered_text, preview_image, source, manually_edited
		FROM %s WHERE id::text = $1`, s.table), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScanRecord{}, repository.ErrScanNotFound
	}
	return rec, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.ScanRecord, error) {
	var rec models.ScanRecord
	err := row.Scan(&rec.ID, &rec.Raw, &rec.Normalized, &rec.Timestamp, &rec.OCRText,
		&rec.FilteredText, &rec.PreviewImage, &rec.Source, &rec.ManuallyEdited)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}
