package storage

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// failingInserter rejects every batch
type failingInserter struct{}

func (failingInserter) InsertBatch([]*models.Reading) error {
	return errors.New("database is locked")
}

func setupTestDBWriter(t *testing.T, config DBWriterConfig) (*SQLiteStore, *DBWriter, func()) {
	t.Helper()

	store, cleanupDB := setupTestDB(t)
	writer := NewDBWriter(store, config, zerolog.Nop())

	cleanup := func() {
		writer.Stop()
		cleanupDB()
	}
	return store, writer, cleanup
}

func countReadings(t *testing.T, store Store) int {
	t.Helper()
	readings, err := store.ListReadings(time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListReadings failed: %v", err)
	}
	return len(readings)
}

func TestDBWriter_BatchFlush(t *testing.T) {
	store, writer, cleanup := setupTestDBWriter(t, DBWriterConfig{
		BatchSize:   5,
		FlushPeriod: time.Hour,
		ChannelSize: 100,
	})
	defer cleanup()

	for i := 0; i < 5; i++ {
		if !writer.Write(createTestReading("s1", float64(i), time.Now())) {
			t.Fatal("Write returned false")
		}
	}

	time.Sleep(100 * time.Millisecond)

	if got := countReadings(t, store); got != 5 {
		t.Errorf("persisted = %d, want 5", got)
	}
	if stats := writer.Stats(); stats.TotalBatches != 1 {
		t.Errorf("TotalBatches = %d, want 1", stats.TotalBatches)
	}
}

func TestDBWriter_PeriodicFlush(t *testing.T) {
	store, writer, cleanup := setupTestDBWriter(t, DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 50 * time.Millisecond,
		ChannelSize: 100,
	})
	defer cleanup()

	writer.Write(createTestReading("s1", 1, time.Now()))
	writer.Write(createTestReading("s1", 2, time.Now()))

	time.Sleep(200 * time.Millisecond)

	if got := countReadings(t, store); got != 2 {
		t.Errorf("persisted = %d, want 2", got)
	}
}

func TestDBWriter_StopDrains(t *testing.T) {
	store, cleanupDB := setupTestDB(t)
	defer cleanupDB()

	writer := NewDBWriter(store, DBWriterConfig{
		BatchSize:   1000,
		FlushPeriod: time.Hour,
		ChannelSize: 100,
	}, zerolog.Nop())

	for i := 0; i < 10; i++ {
		writer.Write(createTestReading("s1", float64(i), time.Now()))
	}
	writer.Stop()
	writer.Stop()

	if got := countReadings(t, store); got != 10 {
		t.Errorf("persisted after Stop = %d, want 10", got)
	}
}

func TestDBWriter_ChannelFull(t *testing.T) {
	writer := NewDBWriter(failingInserter{}, DBWriterConfig{
		BatchSize:   1000,
		FlushPeriod: time.Hour,
		ChannelSize: 2,
	}, zerolog.Nop())
	defer writer.Stop()

	// the loop may already have taken one reading off the channel
	accepted := 0
	for i := 0; i < 10; i++ {
		if writer.Write(createTestReading("s1", float64(i), time.Now())) {
			accepted++
		}
	}
	if accepted >= 10 {
		t.Errorf("accepted = %d, expected some drops", accepted)
	}
}

func TestDBWriter_RejectsInvalid(t *testing.T) {
	writer := NewDBWriter(failingInserter{}, DBWriterConfig{ChannelSize: 10}, zerolog.Nop())
	defer writer.Stop()

	tests := []struct {
		name    string
		reading *models.Reading
	}{
		{"nil", nil},
		{"no sensor", &models.Reading{Valor: 1, DataHora: "2026-03-01T10:00:00Z"}},
		{"bad timestamp", &models.Reading{SensorID: "s1", Valor: 1, DataHora: "ontem"}},
	}
	for _, tt := range tests {
		if writer.Write(tt.reading) {
			t.Errorf("%s: Write() = true, want false", tt.name)
		}
	}
	if got := writer.Stats().TotalRejected; got != int64(len(tests)) {
		t.Errorf("TotalRejected = %d, want %d", got, len(tests))
	}
}

func TestDBWriter_FallbackOnError(t *testing.T) {
	pending := NewPendingBuffer(100, true)
	writer := NewDBWriter(failingInserter{}, DBWriterConfig{
		BatchSize:   3,
		FlushPeriod: time.Hour,
		ChannelSize: 10,
		Fallback:    pending,
	}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		writer.Write(createTestReading("s1", float64(i), time.Now()))
	}
	writer.Stop()

	if pending.Size() != 3 {
		t.Errorf("pending size = %d, want 3", pending.Size())
	}
	stats := writer.Stats()
	if stats.TotalErrors != 1 || stats.TotalDeferred != 3 {
		t.Errorf("stats errors=%d deferred=%d, want 1 and 3", stats.TotalErrors, stats.TotalDeferred)
	}
}

func TestDBWriter_OnFlush(t *testing.T) {
	store, cleanupDB := setupTestDB(t)
	defer cleanupDB()

	var flushed atomic.Int64
	writer := NewDBWriter(store, DBWriterConfig{
		BatchSize:   2,
		FlushPeriod: time.Hour,
		ChannelSize: 10,
		OnFlush:     func(n int) { flushed.Add(int64(n)) },
	}, zerolog.Nop())

	for i := 0; i < 4; i++ {
		writer.Write(createTestReading("s1", float64(i), time.Now()))
	}
	writer.Stop()

	if got := flushed.Load(); got != 4 {
		t.Errorf("OnFlush total = %d, want 4", got)
	}
}

func TestDBWriter_ConcurrentWrites(t *testing.T) {
	store, writer, cleanup := setupTestDBWriter(t, DBWriterConfig{
		BatchSize:   10,
		FlushPeriod: 20 * time.Millisecond,
		ChannelSize: 1000,
	})
	defer cleanup()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				writer.Write(createTestReading("s1", float64(i), time.Now()))
			}
		}()
	}
	wg.Wait()
	writer.Stop()

	if got := countReadings(t, store); got != 100 {
		t.Errorf("persisted = %d, want 100", got)
	}
}
