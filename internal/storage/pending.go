package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

// PendingBuffer is a bounded FIFO of readings that could not be persisted.
// They are written to the store on the next sync.
type PendingBuffer struct {
	readings   []*models.Reading
	capacity   int
	dropOldest bool
	mutex      sync.RWMutex
	stats      PendingStats
}

// PendingStats tracks buffer usage statistics
type PendingStats struct {
	TotalPushed   int64     `json:"total_pushed"`
	TotalDropped  int64     `json:"total_dropped"`
	TotalSynced   int64     `json:"total_synced"`
	HighWaterMark int       `json:"high_water_mark"`
	LastPushTime  time.Time `json:"last_push_time,omitempty"`
	LastDropTime  time.Time `json:"last_drop_time,omitempty"`
}

// NewPendingBuffer creates a buffer holding at most capacity readings.
// When full it drops the oldest entry if dropOldest is set, otherwise the
// incoming one.
func NewPendingBuffer(capacity int, dropOldest bool) *PendingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &PendingBuffer{
		readings:   make([]*models.Reading, 0, capacity),
		capacity:   capacity,
		dropOldest: dropOldest,
	}
}

// Push adds a reading. It returns false if the reading was dropped.
func (pb *PendingBuffer) Push(reading *models.Reading) bool {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	return pb.pushLocked(reading)
}

// PushAll adds readings in order and returns how many were kept.
func (pb *PendingBuffer) PushAll(readings []*models.Reading) int {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	kept := 0
	for _, r := range readings {
		if pb.pushLocked(r) {
			kept++
		}
	}
	return kept
}

func (pb *PendingBuffer) pushLocked(reading *models.Reading) bool {
	if len(pb.readings) >= pb.capacity {
		pb.stats.TotalDropped++
		pb.stats.LastDropTime = time.Now()
		if !pb.dropOldest {
			return false
		}
		pb.readings = pb.readings[1:]
	}
	pb.readings = append(pb.readings, reading)
	pb.stats.TotalPushed++
	pb.stats.LastPushTime = time.Now()

	if len(pb.readings) > pb.stats.HighWaterMark {
		pb.stats.HighWaterMark = len(pb.readings)
	}
	return true
}

// PopBatch removes and returns up to n readings, oldest first
func (pb *PendingBuffer) PopBatch(n int) []*models.Reading {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	count := min(n, len(pb.readings))
	if count <= 0 {
		return nil
	}
	result := make([]*models.Reading, count)
	copy(result, pb.readings[:count])
	pb.readings = pb.readings[count:]
	return result
}

// Requeue puts readings that failed to sync back at the front, oldest first.
// Entries beyond capacity are dropped from the tail.
func (pb *PendingBuffer) Requeue(readings []*models.Reading) {
	if len(readings) == 0 {
		return
	}
	pb.mutex.Lock()
	defer pb.mutex.Unlock()

	merged := make([]*models.Reading, 0, len(readings)+len(pb.readings))
	merged = append(merged, readings...)
	merged = append(merged, pb.readings...)
	if len(merged) > pb.capacity {
		pb.stats.TotalDropped += int64(len(merged) - pb.capacity)
		pb.stats.LastDropTime = time.Now()
		merged = merged[:pb.capacity]
	}
	pb.readings = merged
}

// Sync drains the buffer through write. On failure the readings are
// requeued and the error returned.
func (pb *PendingBuffer) Sync(write func([]*models.Reading) error) (int, error) {
	batch := pb.PopBatch(pb.Capacity())
	if len(batch) == 0 {
		return 0, nil
	}
	if err := write(batch); err != nil {
		pb.Requeue(batch)
		return 0, err
	}

	pb.mutex.Lock()
	pb.stats.TotalSynced += int64(len(batch))
	pb.mutex.Unlock()
	return len(batch), nil
}

// Peek returns up to n readings without removing them
func (pb *PendingBuffer) Peek(n int) []*models.Reading {
	pb.mutex.RLock()
	defer pb.mutex.RUnlock()

	count := min(n, len(pb.readings))
	if count <= 0 {
		return nil
	}
	result := make([]*models.Reading, count)
	copy(result, pb.readings[:count])
	return result
}

// Size returns the current number of readings in the buffer
func (pb *PendingBuffer) Size() int {
	pb.mutex.RLock()
	defer pb.mutex.RUnlock()
	return len(pb.readings)
}

// IsEmpty returns true if buffer has no readings
func (pb *PendingBuffer) IsEmpty() bool {
	return pb.Size() == 0
}

// Capacity returns the maximum capacity of the buffer
func (pb *PendingBuffer) Capacity() int {
	return pb.capacity
}

// Stats returns a copy of current buffer statistics
func (pb *PendingBuffer) Stats() PendingStats {
	pb.mutex.RLock()
	defer pb.mutex.RUnlock()
	return pb.stats
}

func (pb *PendingBuffer) String() string {
	pb.mutex.RLock()
	defer pb.mutex.RUnlock()

	mode := "drop-newest"
	if pb.dropOldest {
		mode = "drop-oldest"
	}
	return fmt.Sprintf("Pending[%d/%d, dropped: %d, mode: %s]",
		len(pb.readings),
		pb.capacity,
		pb.stats.TotalDropped,
		mode,
	)
}

// Save writes the buffered readings to path as a JSON array. The file is
// replaced atomically.
func (pb *PendingBuffer) Save(path string) error {
	pb.mutex.RLock()
	data, err := json.MarshalIndent(pb.readings, "", "  ")
	pb.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode pending readings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create pending dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pending file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load appends the readings stored at path. A missing file is not an error.
func (pb *PendingBuffer) Load(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pending file: %w", err)
	}

	var readings []*models.Reading
	if err := json.Unmarshal(data, &readings); err != nil {
		return 0, fmt.Errorf("failed to decode pending file: %w", err)
	}
	return pb.PushAll(readings), nil
}
