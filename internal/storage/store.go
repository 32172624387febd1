// Package storage persists the hydroponic system: sensors, actuators with
// their command history, and readings.
package storage

import (
	"errors"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

var (
	// ErrDuplicate is returned when registering an id that already exists.
	ErrDuplicate = errors.New("id already registered")
	// ErrNotFound is returned when a command targets an unknown actuator.
	ErrNotFound = errors.New("not found")
)

// Store defines the interface for hydroponic system storage.
// List methods return rows in insertion order.
type Store interface {
	Close() error

	AddSensor(sensor *models.Sensor) error
	ListSensors() ([]models.Sensor, error)
	ClearSensors() error

	AddActuator(actuator *models.Actuator) error
	ListActuators() ([]models.Actuator, error)
	ClearActuators() error

	AddCommand(cmd *models.Command) error
	ListCommands() ([]models.Command, error)
	ClearCommands() error

	InsertReading(reading *models.Reading) error
	InsertBatch(readings []*models.Reading) error
	// ListReadings returns readings with start <= dataHora <= end.
	// A zero bound leaves that side open.
	ListReadings(start, end time.Time) ([]models.Reading, error)
	ClearReadings() error

	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// StorageStats contains information about the store
type StorageStats struct {
	Sensors        int       `json:"sensors"`
	Actuators      int       `json:"actuators"`
	Commands       int       `json:"commands"`
	TotalReadings  int64     `json:"total_readings"`
	OldestReading  time.Time `json:"oldest_reading,omitempty"`
	NewestReading  time.Time `json:"newest_reading,omitempty"`
	UniqueSensors  int       `json:"unique_sensors"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// inRange applies the inclusive, open-when-zero bounds of ListReadings.
func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
