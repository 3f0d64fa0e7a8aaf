// Package repositorytest holds the behaviour every ScanRepository backend
// must share, run from each backend's own tests.
package repositorytest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/anime-shed/meter-reader-go/internal/repository"
	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// Factory opens a fresh, empty store capped at maxScans.
type Factory func(t *testing.T, maxScans int) repository.ScanRepository

func scan(i int) models.NewScan {
	return models.NewScan{
		Raw:          fmt.Sprintf("0%d.5", i),
		Normalized:   fmt.Sprintf("%d.5", i),
		OCRText:      fmt.Sprintf("FR1:0%d.5 m3/Hr", i),
		FilteredText: fmt.Sprintf("FR1:0%d.5 m3/Hr", i),
		Source:       models.SourceText,
	}
}

// Run exercises append, ordering, eviction, lookup and validation.
func Run(t *testing.T, open Factory) {
	t.Run("append assigns id and timestamp", func(t *testing.T) {
		store := open(t, 10)
		rec, err := store.Append(context.Background(), scan(1))
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if rec.ID == "" || rec.Timestamp.IsZero() {
			t.Errorf("Expected id and timestamp, got %+v", rec)
		}
		if rec.Normalized != "1.5" || rec.OCRText != "FR1:01.5 m3/Hr" || rec.Source != models.SourceText {
			t.Errorf("Unexpected record %+v", rec)
		}
	})

	t.Run("list is newest first", func(t *testing.T) {
		store := open(t, 10)
		var ids []string
		for i := 0; i < 3; i++ {
			rec, err := store.Append(context.Background(), scan(i))
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			ids = append(ids, rec.ID)
		}
		list, err := store.List(context.Background())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(list))
		}
		for i, rec := range list {
			if rec.ID != ids[2-i] {
				t.Errorf("position %d: expected %s, got %s", i, ids[2-i], rec.ID)
			}
		}
	})

	t.Run("cap evicts the oldest", func(t *testing.T) {
		const max = 10
		store := open(t, max)
		var first models.ScanRecord
		var last models.ScanRecord
		for i := 0; i <= max; i++ {
			rec, err := store.Append(context.Background(), scan(i))
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if i == 0 {
				first = rec
			}
			last = rec
		}
		list, err := store.List(context.Background())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != max {
			t.Fatalf("Expected %d records, got %d", max, len(list))
		}
		if list[0].ID != last.ID {
			t.Errorf("Expected newest record first")
		}
		for _, rec := range list {
			if rec.ID == first.ID {
				t.Error("Expected the first record to be evicted")
			}
		}
		if _, err := store.Get(context.Background(), first.ID); !errors.Is(err, repository.ErrScanNotFound) {
			t.Errorf("Expected ErrScanNotFound for evicted record, got %v", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		store := open(t, 10)
		rec, err := store.Append(context.Background(), models.NewScan{
			Raw: "7.5", Normalized: "7.5", OCRText: "FR1: 7.5 m3/Hr", ManuallyEdited: true,
			PreviewImage: "data:image/png;base64,AA==",
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		got, err := store.Get(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != rec.ID || got.Normalized != "7.5" || !got.ManuallyEdited || got.PreviewImage != rec.PreviewImage {
			t.Errorf("Get() = %+v, want %+v", got, rec)
		}
		if !got.Timestamp.Equal(rec.Timestamp) {
			t.Errorf("Expected timestamp %s, got %s", rec.Timestamp, got.Timestamp)
		}
		if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrScanNotFound) {
			t.Errorf("Expected ErrScanNotFound, got %v", err)
		}
	})

	t.Run("empty reading is rejected", func(t *testing.T) {
		store := open(t, 10)
		if _, err := store.Append(context.Background(), models.NewScan{OCRText: "noise"}); !errors.Is(err, repository.ErrEmptyReading) {
			t.Errorf("Expected ErrEmptyReading, got %v", err)
		}
		list, err := store.List(context.Background())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 0 {
			t.Errorf("Expected no records, got %d", len(list))
		}
	})
}
