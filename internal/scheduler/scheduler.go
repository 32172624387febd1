// Package scheduler drives the dashboard's refresh cycle: an optional
// simulation tick, an optional pending flush, a parallel fetch of every
// subscribed collection, then ordering and labeling before the result is
// handed to a Sink. At most one cycle runs at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/ordering"
)

var (
	// ErrCycleInFlight is returned when a cycle is requested while another runs.
	ErrCycleInFlight = errors.New("scheduler: cycle already in flight")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler: stopped")
)

// State is the scheduler's cycle state
type State int32

const (
	StateIdle State = iota
	StateCycling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCycling:
		return "cycling"
	default:
		return "unknown"
	}
}

// Reason records what started a cycle.
type Reason int

const (
	ReasonStart Reason = iota
	ReasonInterval
	ReasonTrigger
	ReasonRefresh
	ReasonManual
)

func (r Reason) String() string {
	switch r {
	case ReasonStart:
		return "start"
	case ReasonInterval:
		return "interval"
	case ReasonTrigger:
		return "trigger"
	case ReasonRefresh:
		return "refresh"
	case ReasonManual:
		return "manual"
	default:
		return "unknown"
	}
}

// refreshOnly reports whether the cycle skips the tick and flush steps.
func (r Reason) refreshOnly() bool {
	return r == ReasonRefresh
}

// Backend is the subset of the backend API a cycle needs.
// *client.API satisfies it.
type Backend interface {
	Tick(ctx context.Context) (*models.TickResult, error)
	SyncPending(ctx context.Context) (*models.SyncResult, error)
	ListSensors(ctx context.Context) ([]models.Sensor, error)
	ListActuators(ctx context.Context) ([]models.Actuator, error)
	ListCommands(ctx context.Context) ([]models.Command, error)
	ListReadings(ctx context.Context) ([]models.Reading, error)
	ListAlerts(ctx context.Context) ([]models.Alert, error)
}

// Sink receives every completed snapshot.
type Sink interface {
	Render(snap *Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(*Snapshot)

// Render calls f(snap).
func (f SinkFunc) Render(snap *Snapshot) { f(snap) }

// Config controls a Scheduler
type Config struct {
	Interval     time.Duration
	SimulateTick bool
	FlushPending bool
	Views        []string
}

// FromSyncConfig converts the dashboard's sync section.
func FromSyncConfig(c config.SyncConfig) Config {
	return Config{
		Interval:     c.Interval,
		SimulateTick: c.TickEnabled(),
		FlushPending: c.FlushEnabled(),
		Views:        append([]string(nil), c.Views...),
	}
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if len(c.Views) == 0 {
		c.Views = append([]string(nil), config.AllViews...)
	}
}

// Stats reports scheduler counters
type Stats struct {
	State   State
	Cycles  uint64
	Dropped uint64
}

// Scheduler runs refresh cycles on an interval and on demand.
type Scheduler struct {
	backend Backend
	sink    Sink
	orderer *ordering.Orderer
	logger  zerolog.Logger

	mu      sync.Mutex
	cfg     Config
	stopped bool

	state   atomic.Int32
	cycles  atomic.Uint64
	dropped atomic.Uint64

	started    atomic.Bool
	done       chan struct{}
	intervalCh chan struct{}
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New creates a scheduler. Call Start to begin the interval loop.
func New(cfg Config, backend Backend, orderer *ordering.Orderer, sink Sink, logger zerolog.Logger) *Scheduler {
	cfg.applyDefaults()
	if orderer == nil {
		orderer = ordering.New(ordering.PolicyReverse)
	}
	if sink == nil {
		sink = SinkFunc(func(*Snapshot) {})
	}
	return &Scheduler{
		backend:    backend,
		sink:       sink,
		orderer:    orderer,
		logger:     logger,
		cfg:        cfg,
		done:       make(chan struct{}, 1),
		intervalCh: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the first cycle and the interval loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if !s.started.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop()
	return nil
}

// Trigger starts a full cycle now. While a cycle is in flight the request
// is dropped and ErrCycleInFlight is returned.
func (s *Scheduler) Trigger() error {
	return s.launch(ReasonTrigger)
}

// Refresh starts a cycle that only re-fetches collections.
func (s *Scheduler) Refresh() error {
	return s.launch(ReasonRefresh)
}

// RunCycle runs one full cycle synchronously and returns its snapshot,
// which is also handed to the sink.
func (s *Scheduler) RunCycle(ctx context.Context) (*Snapshot, error) {
	if err := s.acquire(ReasonManual); err != nil {
		return nil, err
	}
	defer s.release()
	return s.execute(ctx, ReasonManual), nil
}

// SetInterval changes the cadence. It takes effect from the end of the
// current cycle, or immediately when idle.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.Interval = d
	s.mu.Unlock()

	select {
	case s.intervalCh <- struct{}{}:
	default:
	}
}

// SetFlush enables or disables the flush-pending step.
func (s *Scheduler) SetFlush(enabled bool) {
	s.mu.Lock()
	s.cfg.FlushPending = enabled
	s.mu.Unlock()
}

// SetTick enables or disables the simulation tick step.
func (s *Scheduler) SetTick(enabled bool) {
	s.mu.Lock()
	s.cfg.SimulateTick = enabled
	s.mu.Unlock()
}

// Apply updates interval, tick and flush from a reloaded config.
func (s *Scheduler) Apply(c config.SyncConfig) {
	s.SetTick(c.TickEnabled())
	s.SetFlush(c.FlushEnabled())
	s.SetInterval(c.Interval)
}

// State returns the current cycle state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Stats returns the scheduler counters
func (s *Scheduler) Stats() Stats {
	return Stats{
		State:   s.State(),
		Cycles:  s.cycles.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Stop releases the timer and waits for an in-flight cycle to finish.
// The cycle's requests are not cancelled. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info().Uint64("cycles", s.cycles.Load()).Uint64("dropped", s.dropped.Load()).Msg("Scheduler stopped")
	})
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Interval
}

func (s *Scheduler) snapshotConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cfg
	c.Views = append([]string(nil), s.cfg.Views...)
	return c
}

// loop owns the interval timer. The timer is armed only while idle, so the
// cadence is measured from the end of each cycle.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	// On failure the running cycle's release re-arms the timer.
	_ = s.launch(ReasonStart)

	for {
		select {
		case <-s.stopChan:
			return

		case <-timer.C:
			_ = s.launch(ReasonInterval)

		case <-s.done:
			timer.Reset(s.interval())

		case <-s.intervalCh:
			if s.State() == StateIdle {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.interval())
			}
		}
	}
}

// acquire moves Idle to Cycling. A successful acquire must be paired with
// release.
func (s *Scheduler) acquire(reason Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateCycling)) {
		dropped := s.dropped.Add(1)
		s.logger.Debug().
			Str("trigger", reason.String()).
			Uint64("dropped", dropped).
			Msg("Cycle in flight, request dropped")
		return ErrCycleInFlight
	}
	s.wg.Add(1)
	return nil
}

// release returns to Idle and tells the loop to re-arm its timer.
func (s *Scheduler) release() {
	s.state.Store(int32(StateIdle))
	select {
	case s.done <- struct{}{}:
	default:
	}
	s.wg.Done()
}

// launch starts an asynchronous cycle.
func (s *Scheduler) launch(reason Reason) error {
	if err := s.acquire(reason); err != nil {
		return err
	}
	go func() {
		defer s.release()
		s.execute(context.Background(), reason)
	}()
	return nil
}

// execute runs the cycle steps in order and delivers the snapshot.
func (s *Scheduler) execute(ctx context.Context, reason Reason) *Snapshot {
	cfg := s.snapshotConfig()
	snap := newSnapshot(uuid.NewString(), reason, time.Now())
	logger := s.logger.With().
		Str("cycle_id", snap.CycleID).
		Str("trigger", reason.String()).
		Logger()

	logger.Debug().Msg("Cycle started")

	if !reason.refreshOnly() && cfg.SimulateTick {
		res, err := s.backend.Tick(ctx)
		if err != nil {
			snap.TickErr = err
			logger.Warn().Err(err).Msg("Simulation tick failed")
		} else {
			snap.Tick = res
		}
	}

	if !reason.refreshOnly() && cfg.FlushPending {
		res, err := s.backend.SyncPending(ctx)
		if err != nil {
			snap.FlushErr = err
			logger.Warn().Err(err).Msg("Pending flush failed")
		} else {
			snap.Sync = res
		}
	}

	s.fetch(ctx, cfg.Views, snap, logger)
	snap.FinishedAt = time.Now()

	n := s.cycles.Add(1)
	logger.Info().
		Uint64("cycle", n).
		Dur("took", snap.FinishedAt.Sub(snap.StartedAt)).
		Int("errors", len(snap.Errors)).
		Msg("Cycle complete")

	s.sink.Render(snap)
	return snap
}
