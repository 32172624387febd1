package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

type storedReading struct {
	reading models.Reading
	at      time.Time
}

// MemoryStore keeps the whole system in memory. Readings are held in a ring
// that drops the oldest entry once capacity is reached.
type MemoryStore struct {
	mutex           sync.RWMutex
	readingCapacity int
	sensors         []models.Sensor
	actuators       []models.Actuator
	commands        []models.Command
	readings        []storedReading
}

// NewMemoryStore creates a new in-memory store. A capacity of zero or less
// keeps every reading.
func NewMemoryStore(readingCapacity int) *MemoryStore {
	return &MemoryStore{
		readingCapacity: readingCapacity,
	}
}

// Close is a no-op
func (ms *MemoryStore) Close() error {
	return nil
}

// AddSensor registers a sensor
func (ms *MemoryStore) AddSensor(sensor *models.Sensor) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, s := range ms.sensors {
		if s.ID == sensor.ID {
			return fmt.Errorf("sensor %s: %w", sensor.ID, ErrDuplicate)
		}
	}
	ms.sensors = append(ms.sensors, *sensor)
	return nil
}

// ListSensors returns every sensor in registration order
func (ms *MemoryStore) ListSensors() ([]models.Sensor, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	out := make([]models.Sensor, len(ms.sensors))
	copy(out, ms.sensors)
	return out, nil
}

// ClearSensors removes every sensor
func (ms *MemoryStore) ClearSensors() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.sensors = nil
	return nil
}

// AddActuator registers an actuator
func (ms *MemoryStore) AddActuator(actuator *models.Actuator) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, a := range ms.actuators {
		if a.ID == actuator.ID {
			return fmt.Errorf("actuator %s: %w", actuator.ID, ErrDuplicate)
		}
	}
	ms.actuators = append(ms.actuators, models.Actuator{ID: actuator.ID, Tipo: actuator.Tipo})
	return nil
}

// ListActuators returns every actuator with its command history attached
func (ms *MemoryStore) ListActuators() ([]models.Actuator, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	out := make([]models.Actuator, len(ms.actuators))
	for i, a := range ms.actuators {
		a.Comandos = []models.Command{}
		for _, cmd := range ms.commands {
			if cmd.AtuadorID == a.ID {
				a.Comandos = append(a.Comandos, cmd)
			}
		}
		if n := len(a.Comandos); n > 0 {
			last := a.Comandos[n-1]
			a.UltimoComando = &last
		}
		out[i] = a
	}
	return out, nil
}

// ClearActuators removes every actuator and its command history
func (ms *MemoryStore) ClearActuators() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.actuators = nil
	ms.commands = nil
	return nil
}

// AddCommand appends a command to an actuator's history
func (ms *MemoryStore) AddCommand(cmd *models.Command) error {
	t, err := models.ParseTimestamp(cmd.DataHora)
	if err != nil {
		return fmt.Errorf("invalid command dataHora: %w", err)
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, a := range ms.actuators {
		if a.ID == cmd.AtuadorID {
			c := *cmd
			c.Tipo = a.Tipo
			c.DataHora = models.FormatTimestamp(t)
			ms.commands = append(ms.commands, c)
			return nil
		}
	}
	return fmt.Errorf("actuator %s: %w", cmd.AtuadorID, ErrNotFound)
}

// ListCommands returns the flat command history in insertion order
func (ms *MemoryStore) ListCommands() ([]models.Command, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	out := make([]models.Command, len(ms.commands))
	copy(out, ms.commands)
	return out, nil
}

// ClearCommands removes the command history of every actuator
func (ms *MemoryStore) ClearCommands() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.commands = nil
	return nil
}

// InsertReading adds a reading to the store
func (ms *MemoryStore) InsertReading(reading *models.Reading) error {
	return ms.InsertBatch([]*models.Reading{reading})
}

// InsertBatch adds readings atomically: an invalid timestamp rejects the batch
func (ms *MemoryStore) InsertBatch(readings []*models.Reading) error {
	batch := make([]storedReading, 0, len(readings))
	for _, r := range readings {
		t, err := models.ParseTimestamp(r.DataHora)
		if err != nil {
			return fmt.Errorf("invalid reading dataHora: %w", err)
		}
		stored := models.Reading{
			SensorID: r.SensorID,
			Valor:    r.Valor,
			Unidade:  r.Unidade,
			DataHora: models.FormatTimestamp(t),
		}
		batch = append(batch, storedReading{reading: stored, at: t})
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.readings = append(ms.readings, batch...)
	if ms.readingCapacity > 0 && len(ms.readings) > ms.readingCapacity {
		ms.readings = ms.readings[len(ms.readings)-ms.readingCapacity:]
	}
	return nil
}

// ListReadings returns readings inside the inclusive range in insertion order
func (ms *MemoryStore) ListReadings(start, end time.Time) ([]models.Reading, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	out := []models.Reading{}
	for _, r := range ms.readings {
		if inRange(r.at, start, end) {
			out = append(out, r.reading)
		}
	}
	return out, nil
}

// ClearReadings removes every reading
func (ms *MemoryStore) ClearReadings() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.readings = nil
	return nil
}

// DeleteOlderThan removes readings recorded more than days ago
func (ms *MemoryStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	kept := ms.readings[:0]
	var deleted int64
	for _, r := range ms.readings {
		if r.at.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	ms.readings = kept
	return deleted, nil
}

// GetStorageStats returns statistics about the store
func (ms *MemoryStore) GetStorageStats() (*StorageStats, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := &StorageStats{
		Sensors:       len(ms.sensors),
		Actuators:     len(ms.actuators),
		Commands:      len(ms.commands),
		TotalReadings: int64(len(ms.readings)),
	}

	unique := map[string]struct{}{}
	for _, r := range ms.readings {
		unique[r.reading.SensorID] = struct{}{}
		if stats.OldestReading.IsZero() || r.at.Before(stats.OldestReading) {
			stats.OldestReading = r.at
		}
		if r.at.After(stats.NewestReading) {
			stats.NewestReading = r.at
		}
	}
	stats.UniqueSensors = len(unique)
	return stats, nil
}
