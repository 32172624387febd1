package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/ordering"
)

// fakeBackend serves canned collections and counts calls. When gate is set,
// ListSensors blocks until it is closed.
type fakeBackend struct {
	mu sync.Mutex

	sensors   []models.Sensor
	actuators []models.Actuator
	commands  []models.Command
	readings  []models.Reading
	alerts    []models.Alert

	tickErr     error
	syncErr     error
	readingsErr error

	gate    chan struct{}
	entered chan struct{}

	ticks    atomic.Int32
	syncs    atomic.Int32
	listings atomic.Int32
}

func (f *fakeBackend) Tick(ctx context.Context) (*models.TickResult, error) {
	f.ticks.Add(1)
	if f.tickErr != nil {
		return nil, f.tickErr
	}
	return &models.TickResult{Message: "ok"}, nil
}

func (f *fakeBackend) SyncPending(ctx context.Context) (*models.SyncResult, error) {
	f.syncs.Add(1)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &models.SyncResult{Sincronizadas: 2}, nil
}

func (f *fakeBackend) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	f.listings.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sensors, nil
}

func (f *fakeBackend) ListActuators(ctx context.Context) ([]models.Actuator, error) {
	return f.actuators, nil
}

func (f *fakeBackend) ListCommands(ctx context.Context) ([]models.Command, error) {
	return f.commands, nil
}

func (f *fakeBackend) ListReadings(ctx context.Context) ([]models.Reading, error) {
	if f.readingsErr != nil {
		return nil, f.readingsErr
	}
	return f.readings, nil
}

func (f *fakeBackend) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	return f.alerts, nil
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sensors: []models.Sensor{
			{ID: "ph-01", Tipo: "pH"},
			{ID: "ec-01", Tipo: "EC", Unidade: "mS/cm"},
		},
		actuators: []models.Actuator{
			{ID: "bomba-01", Tipo: "bomba"},
			{ID: "valvula-01", Tipo: "valvula"},
		},
		commands: []models.Command{
			{AtuadorID: "bomba-01", Acao: models.ActionOn, DataHora: "2026-03-01T10:00:00Z"},
			{AtuadorID: "bomba-01", Acao: models.ActionOff, DataHora: "2026-03-01T11:00:00Z"},
		},
		readings: []models.Reading{
			{SensorID: "ph-01", Valor: 6.1, Unidade: "pH", Status: "ok", DataHora: "2026-03-01T10:00:00Z"},
			{SensorID: "ec-01", Valor: 3.4, Unidade: "mS/cm", Status: "critico-alto", DataHora: "2026-03-01T12:00:00Z"},
			{SensorID: "ph-01", Valor: 6.0, Status: "desconhecido", DataHora: "garbage"},
		},
		alerts: []models.Alert{
			{SensorID: "ec-01", Tipo: "EC", Valor: 3.4, DataHora: "2026-03-01T12:00:00Z"},
		},
	}
}

// chanSink forwards every snapshot to a channel.
type chanSink chan *Snapshot

func (c chanSink) Render(s *Snapshot) { c <- s }

func waitSnapshot(t *testing.T, sink chanSink) *Snapshot {
	t.Helper()
	select {
	case s := <-sink:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func fullConfig() Config {
	return Config{Interval: time.Hour, SimulateTick: true, FlushPending: true}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "cycling", StateCycling.String())
	assert.Equal(t, "refresh", ReasonRefresh.String())
}

func TestRunCycle_OrdersAndLabels(t *testing.T) {
	backend := newFakeBackend()
	s := New(fullConfig(), backend, ordering.New(ordering.PolicyReverse), nil, zerolog.Nop())

	snap, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, snap.CycleID)
	assert.Equal(t, ReasonManual, snap.Reason)
	assert.True(t, snap.OK())
	require.NotNil(t, snap.Tick)
	require.NotNil(t, snap.Sync)
	assert.Equal(t, 2, snap.Sync.Sincronizadas)

	require.Len(t, snap.Sensors, 2)
	assert.Equal(t, "ec-01", snap.Sensors[0].ID, "newest registration first")
	require.Len(t, snap.Actuators, 2)
	assert.Equal(t, "valvula-01", snap.Actuators[0].ID)

	require.Len(t, snap.Commands, 2)
	assert.Equal(t, models.ActionOff, snap.Commands[0].Acao)

	require.Len(t, snap.Readings, 3)
	assert.Equal(t, "ec-01", snap.Readings[0].SensorID)
	assert.Equal(t, "above ideal range", snap.Readings[0].StatusLabel)
	assert.Equal(t, "mS/cm (Condutividade)", snap.Readings[0].UnitLabel)
	assert.Equal(t, "garbage", snap.Readings[2].DataHora, "unparsable timestamp sorts last")
	assert.Equal(t, models.SeverityUnknown, snap.Readings[2].Severity)

	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, models.SeverityHigh, snap.Alerts[0].Severity)

	// Backend slices must not be reordered in place.
	assert.Equal(t, "ph-01", backend.sensors[0].ID)
}

func TestRunCycle_TickAndFlushFailuresStillRefresh(t *testing.T) {
	backend := newFakeBackend()
	backend.tickErr = errors.New("tick down")
	backend.syncErr = errors.New("sync down")

	s := New(fullConfig(), backend, nil, nil, zerolog.Nop())
	snap, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.EqualError(t, snap.TickErr, "tick down")
	assert.EqualError(t, snap.FlushErr, "sync down")
	assert.False(t, snap.OK())
	assert.Len(t, snap.Sensors, 2)
	assert.Len(t, snap.Readings, 3)
}

func TestRunCycle_FetchFailureIsolated(t *testing.T) {
	backend := newFakeBackend()
	backend.readingsErr = errors.New("boom")

	s := New(fullConfig(), backend, nil, nil, zerolog.Nop())
	snap, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.EqualError(t, snap.Err(config.ViewReadings), "boom")
	assert.NotNil(t, snap.Readings)
	assert.Empty(t, snap.Readings)
	assert.Len(t, snap.Sensors, 2)
	assert.Len(t, snap.Errors, 1)
}

func TestRunCycle_GatedSteps(t *testing.T) {
	backend := newFakeBackend()
	cfg := Config{Interval: time.Hour, Views: []string{config.ViewSensors, config.ViewSensors}}

	s := New(cfg, backend, nil, nil, zerolog.Nop())
	snap, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(0), backend.ticks.Load())
	assert.Equal(t, int32(0), backend.syncs.Load())
	assert.Equal(t, int32(1), backend.listings.Load(), "duplicate views fetch once")
	assert.Len(t, snap.Sensors, 2)
	assert.Nil(t, snap.Readings, "unsubscribed collection stays nil")

	s.SetTick(true)
	s.SetFlush(true)
	_, err = s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.ticks.Load())
	assert.Equal(t, int32(1), backend.syncs.Load())
}

func TestScheduler_DropsWhileCycling(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	backend.entered = make(chan struct{}, 1)

	sink := make(chanSink, 4)
	s := New(fullConfig(), backend, nil, sink, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-backend.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("initial cycle never reached the backend")
	}

	assert.Equal(t, StateCycling, s.State())
	assert.ErrorIs(t, s.Trigger(), ErrCycleInFlight)
	assert.ErrorIs(t, s.Refresh(), ErrCycleInFlight)
	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInFlight)
	assert.Equal(t, uint64(3), s.Stats().Dropped)

	close(backend.gate)
	snap := waitSnapshot(t, sink)
	assert.Equal(t, ReasonStart, snap.Reason)

	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), backend.ticks.Load(), "dropped requests never reach the backend")

	require.NoError(t, s.Trigger())
	snap = waitSnapshot(t, sink)
	assert.Equal(t, ReasonTrigger, snap.Reason)
	assert.Equal(t, uint64(2), s.Stats().Cycles)
}

func TestScheduler_RefreshSkipsTickAndFlush(t *testing.T) {
	backend := newFakeBackend()
	sink := make(chanSink, 4)
	s := New(fullConfig(), backend, nil, sink, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	waitSnapshot(t, sink)
	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Refresh())
	snap := waitSnapshot(t, sink)
	assert.Equal(t, ReasonRefresh, snap.Reason)
	assert.Nil(t, snap.Tick)
	assert.Equal(t, int32(1), backend.ticks.Load())
	assert.Equal(t, int32(1), backend.syncs.Load())
}

func TestScheduler_IntervalCadence(t *testing.T) {
	backend := newFakeBackend()
	sink := make(chanSink, 16)
	cfg := fullConfig()
	cfg.Interval = 20 * time.Millisecond

	s := New(cfg, backend, nil, sink, zerolog.Nop())
	require.NoError(t, s.Start())

	first := waitSnapshot(t, sink)
	second := waitSnapshot(t, sink)
	s.Stop()

	assert.Equal(t, ReasonStart, first.Reason)
	assert.Equal(t, ReasonInterval, second.Reason)
	assert.GreaterOrEqual(t, second.StartedAt.Sub(first.FinishedAt), 20*time.Millisecond)
}

func TestScheduler_SetIntervalWhileIdle(t *testing.T) {
	backend := newFakeBackend()
	sink := make(chanSink, 16)
	s := New(fullConfig(), backend, nil, sink, zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	waitSnapshot(t, sink)
	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, 5*time.Millisecond)

	s.Apply(config.SyncConfig{Interval: 10 * time.Millisecond})
	snap := waitSnapshot(t, sink)
	assert.Equal(t, ReasonInterval, snap.Reason)
}

func TestScheduler_Stop(t *testing.T) {
	s := New(fullConfig(), newFakeBackend(), nil, nil, zerolog.Nop())
	require.NoError(t, s.Start())

	s.Stop()
	s.Stop()

	assert.ErrorIs(t, s.Trigger(), ErrStopped)
	assert.ErrorIs(t, s.Start(), ErrStopped)
	_, err := s.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestFromSyncConfig(t *testing.T) {
	off := false
	c := FromSyncConfig(config.SyncConfig{
		Interval:     time.Second,
		FlushPending: &off,
		Views:        []string{config.ViewAlerts},
	})
	assert.Equal(t, time.Second, c.Interval)
	assert.True(t, c.SimulateTick)
	assert.False(t, c.FlushPending)
	assert.Equal(t, []string{config.ViewAlerts}, c.Views)
}
