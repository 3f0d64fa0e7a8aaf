// Package redis keeps the scan history as a capped Redis list of JSON
// records, newest at the head.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/pkg/models"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultKey is the list key used when none is configured.
const DefaultKey = "meter-reader:scans"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxScans int
}

// Store implements repository.ScanRepository on a Redis list.
type Store struct {
	client *goredis.Client
	key    string
	max    int
	log    *logrus.Entry
}

var _ repository.ScanRepository = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return NewWithClient(client, opts.Key, opts.MaxScans), nil
}

// NewWithClient wraps an existing client. The store takes ownership of it.
func NewWithClient(client *goredis.Client, key string, maxScans int) *Store {
	if key == "" {
		key = DefaultKey
	}
	s := &Store{
		client: client,
		key:    key,
		max:    repository.NormalizeMax(maxScans),
		log:    logger.Component("redis_store"),
	}
	s.log.WithFields(logrus.Fields{"key": key, "max_scans": s.max}).Info("Redis scan store ready")
	return s
}

// Append pushes the record and trims the list in one MULTI/EXEC.
func (s *Store) Append(ctx context.Context, scan models.NewScan) (models.ScanRecord, error) {
	rec, err := repository.NewRecord(scan)
	if err != nil {
		return models.ScanRecord{}, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to marshal scan: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, 0, int64(s.max-1))
		return nil
	})
	if err != nil {
		return models.ScanRecord{}, fmt.Errorf("failed to store scan: %w", err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]models.ScanRecord, error) {
	items, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read scans: %w", err)
	}

	records := make([]models.ScanRecord, 0, len(items))
	for _, item := range items {
		var rec models.ScanRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.log.WithError(err).Warn("Skipping undecodable scan record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get scans the list; it never holds more than MaxScans entries.
func (s *Store) Get(ctx context.Context, id string) (models.ScanRecord, error) {
	records, err := s.List(ctx)
	if err != nil {
		return models.ScanRecord{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.ScanRecord{}, repository.ErrScanNotFound
}

func (s *Store) Close() error {
	return s.client.Close()
}
