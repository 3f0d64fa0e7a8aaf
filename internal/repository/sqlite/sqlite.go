// Package sqlite stores scan records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store implements repository.ScanRepository on SQLite with thread-safe access.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
	max  int
	log  *logrus.Entry
}

var _ repository.ScanRepository = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates it.
func New(dbPath string, maxScans int) (*Store, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{
		conn: conn,
		max:  repository.NormalizeMax(maxScans),
		log:  logger.Component("sqlite_store"),
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.log.WithFields(logrus.Fields{"path": dbPath, "max_scans": s.max}).Info("SQLite scan store ready")
	return s, nil
}

// migrate creates the scans table if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		raw TEXT NOT NULL,
		normalized TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		ocr_text TEXT NOT NULL DEFAULT '',
		filtered_text TEXT NOT NULL DEFAULT '',
		preview_image TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		manually_edited INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scans_timestamp ON scans(timestamp);
	`

	_, err := s.conn.Exec(schema)
	return err
}

func (s *Store) Append(ctx context.Context, scan models.NewScan) (models.ScanRecord, error) {
	rec, err := repository.NewRecord(scan)
	if err != nil {
		return models.ScanRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, raw, normalized, timestamp, ocr_text, filtered_text, preview_image, source, manually_edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Raw, rec.Normalized, rec.Timestamp.Format(time.RFC3339Nano),
		rec.OCRText, rec.FilteredText, rec.PreviewImage, rec.Source, rec.ManuallyEdited,
	)
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to insert scan: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM scans WHERE seq NOT IN (SELECT seq FROM scans ORDER BY seq DESC LIMIT ?)`, s.max)
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to trim scans: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to commit scan: %w", err)
	}

	if evicted, _ := res.RowsAffected(); evicted > 0 {
		s.log.WithFields(logrus.Fields{"evicted": evicted}).Debug("Trimmed scan history")
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]models.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, raw, normalized, timestamp, ocr_text, filtered_text, preview_image, source, manually_edited
		FROM scans ORDER BY seq DESC`)
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
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, raw, normalized, timestamp, ocr_text, filtered_text, preview_image, source, manually_edited
		FROM scans WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScanRecord{}, repository.ErrScanNotFound
	}
	return rec, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.ScanRecord, error) {
	var rec models.ScanRecord
	var ts string
	err := row.Scan(&rec.ID, &rec.Raw, &rec.Normalized, &ts, &rec.OCRText,
		&rec.FilteredText, &rec.PreviewImage, &rec.Source, &rec.ManuallyEdited)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return rec, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return rec, nil
}
