package server

import (
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/simulation"
)

// Simulation produces one round of readings and commands per tick.
// simulation.Simulator implements this interface
type Simulation interface {
	Cycle(sensors []models.Sensor, actuators []models.Actuator, now time.Time) simulation.CycleResult
}

// Broadcaster publishes live events to connected dashboards.
// Hub implements this interface
type Broadcaster interface {
	Publish(eventType models.EventType, payload any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(models.EventType, any) {}
