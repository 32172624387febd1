package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/models"
)

// Snapshot is the ordered, labeled result of one cycle. Each cycle builds a
// fresh Snapshot; collections that were not subscribed stay nil and a failed
// fetch leaves an empty collection plus an entry in Errors.
type Snapshot struct {
	CycleID    string
	Reason     Reason
	StartedAt  time.Time
	FinishedAt time.Time

	Tick     *models.TickResult
	TickErr  error
	Sync     *models.SyncResult
	FlushErr error

	Sensors   []models.Sensor
	Actuators []models.Actuator
	Commands  []models.Command
	Readings  []classify.LabeledReading
	Alerts    []classify.LabeledAlert

	// Errors maps a collection name to its fetch error.
	Errors map[string]error
}

func newSnapshot(id string, reason Reason, at time.Time) *Snapshot {
	return &Snapshot{
		CycleID:   id,
		Reason:    reason,
		StartedAt: at,
		Errors:    make(map[string]error),
	}
}

// Err returns the fetch error for a collection, if any.
func (s *Snapshot) Err(view string) error {
	return s.Errors[view]
}

// OK reports whether every step of the cycle succeeded.
func (s *Snapshot) OK() bool {
	return s.TickErr == nil && s.FlushErr == nil && len(s.Errors) == 0
}

// fetchResult is one collection's slot. Each fetch goroutine writes only its own.
type fetchResult struct {
	view string
	err  error
	took time.Duration
}

// fetch refreshes every subscribed collection in parallel, then orders and
// labels the results into snap.
func (s *Scheduler) fetch(ctx context.Context, views []string, snap *Snapshot, logger zerolog.Logger) {
	var (
		sensors   []models.Sensor
		actuators []models.Actuator
		commands  []models.Command
		readings  []models.Reading
		alerts    []models.Alert
	)

	views = dedupe(views)
	results := make([]fetchResult, len(views))
	var wg sync.WaitGroup

	for i, view := range views {
		var run func() error
		switch view {
		case config.ViewSensors:
			run = func() (err error) { sensors, err = s.backend.ListSensors(ctx); return }
		case config.ViewActuators:
			run = func() (err error) { actuators, err = s.backend.ListActuators(ctx); return }
		case config.ViewCommands:
			run = func() (err error) { commands, err = s.backend.ListCommands(ctx); return }
		case config.ViewReadings:
			run = func() (err error) { readings, err = s.backend.ListReadings(ctx); return }
		case config.ViewAlerts:
			run = func() (err error) { alerts, err = s.backend.ListAlerts(ctx); return }
		default:
			results[i] = fetchResult{view: view, err: fmt.Errorf("unknown collection %q", view)}
			continue
		}

		wg.Add(1)
		go func(i int, view string, run func() error) {
			defer wg.Done()
			start := time.Now()
			err := run()
			results[i] = fetchResult{view: view, err: err, took: time.Since(start)}
		}(i, view, run)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			snap.Errors[r.view] = r.err
			logger.Warn().Err(r.err).Str("collection", r.view).Msg("Fetch failed")
			continue
		}
		logger.Debug().Str("collection", r.view).Dur("took", r.took).Msg("Fetched")
	}

	for _, view := range views {
		switch view {
		case config.ViewSensors:
			snap.Sensors = s.orderer.Sensors(sensors)
		case config.ViewActuators:
			snap.Actuators = s.orderer.Actuators(actuators)
		case config.ViewCommands:
			snap.Commands = s.orderer.Commands(commands)
		case config.ViewReadings:
			snap.Readings = classify.LabelReadings(s.orderer.Readings(readings))
		case config.ViewAlerts:
			snap.Alerts = classify.LabelAlerts(s.orderer.Alerts(alerts))
		}
	}
}

func dedupe(views []string) []string {
	seen := make(map[string]bool, len(views))
	out := views[:0:0]
	for _, v := range views {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
