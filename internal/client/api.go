package client

import (
	"context"
	"fmt"

	"github.com/afroash/hydro-monitor/internal/export"
	"github.com/afroash/hydro-monitor/internal/models"
)

// REST paths served by the backend.
const (
	PathSensors   = "/api/sensores"
	PathActuators = "/api/atuadores"
	PathCommands  = "/api/atuadores/comandos"
	PathCommand   = "/api/atuadores/comando"
	PathReadings  = "/api/leituras"
	PathAlerts    = "/api/alertas"
	PathTick      = "/api/simulacao/tick"
	PathSync      = "/api/sync-pendentes"
	PathExportXML = "/api/exportar/xml"
	PathStream    = "/api/stream"
	PathHealth    = "/health"
)

// API is the typed view of the backend REST surface.
type API struct {
	t *Transport
}

// NewAPI wraps a transport.
func NewAPI(t *Transport) *API {
	return &API{t: t}
}

// Transport returns the underlying transport.
func (a *API) Transport() *Transport {
	return a.t
}

// ListSensors fetches every registered sensor in backend order.
func (a *API) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	var out []models.Sensor
	return out, a.list(ctx, PathSensors, &out)
}

// RegisterSensor registers a sensor and returns the backend's message.
func (a *API) RegisterSensor(ctx context.Context, s models.Sensor) (string, error) {
	return a.send(ctx, PathSensors, s, "Sensor cadastrado")
}

// ClearSensors removes every sensor.
func (a *API) ClearSensors(ctx context.Context) (string, error) {
	return a.clear(ctx, PathSensors)
}

// ListActuators fetches every actuator with its nested command history.
func (a *API) ListActuators(ctx context.Context) ([]models.Actuator, error) {
	var out []models.Actuator
	return out, a.list(ctx, PathActuators, &out)
}

// RegisterActuator registers an actuator and returns the backend's message.
func (a *API) RegisterActuator(ctx context.Context, act models.Actuator) (string, error) {
	return a.send(ctx, PathActuators, act, "Atuador cadastrado")
}

// ClearActuators removes every actuator and its history.
func (a *API) ClearActuators(ctx context.Context) (string, error) {
	return a.clear(ctx, PathActuators)
}

// ListCommands fetches the flat command history.
func (a *API) ListCommands(ctx context.Context) ([]models.Command, error) {
	var out []models.Command
	return out, a.list(ctx, PathCommands, &out)
}

// SendCommand records a command on an actuator as a device.
func (a *API) SendCommand(ctx context.Context, cmd models.Command) (string, error) {
	return a.send(ctx, PathCommand, cmd, "Comando registrado", WithDevice())
}

// ClearCommands removes the command history of every actuator.
func (a *API) ClearCommands(ctx context.Context) (string, error) {
	return a.clear(ctx, PathCommands)
}

// ListReadings fetches every reading.
func (a *API) ListReadings(ctx context.Context) ([]models.Reading, error) {
	var out []models.Reading
	return out, a.list(ctx, PathReadings, &out)
}

// ListReadingsInRange fetches the readings inside an inclusive range.
func (a *API) ListReadingsInRange(ctx context.Context, r export.Range) ([]models.Reading, error) {
	var out []models.Reading
	return out, a.list(ctx, PathReadings+"?"+r.Query(), &out)
}

// PostReading pushes a reading as a device. A 202 means the backend kept
// the reading in its pending buffer.
func (a *API) PostReading(ctx context.Context, r models.Reading) (string, error) {
	return a.send(ctx, PathReadings, r, "Leitura registrada", WithDevice())
}

// ClearReadings removes every reading.
func (a *API) ClearReadings(ctx context.Context) (string, error) {
	return a.clear(ctx, PathReadings)
}

// ListAlerts fetches the out-of-range readings.
func (a *API) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	return out, a.list(ctx, PathAlerts, &out)
}

// Tick asks the backend to advance its simulation by one cycle.
func (a *API) Tick(ctx context.Context) (*models.TickResult, error) {
	var out models.TickResult
	if err := a.call(ctx, PathTick, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncPending asks the backend to flush readings it buffered while its
// store was unavailable.
func (a *API) SyncPending(ctx context.Context) (*models.SyncResult, error) {
	var out models.SyncResult
	if err := a.call(ctx, PathSync, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportXML downloads the XML document for an inclusive range.
func (a *API) ExportXML(ctx context.Context, r export.Range) ([]byte, error) {
	resp, err := a.t.Get(ctx, PathExportXML+"?"+r.Query(), WithAccept("application/xml"))
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, newBackendError(PathExportXML, resp)
	}
	return resp.Raw, nil
}

// Health reports whether the backend answers its health endpoint.
func (a *API) Health(ctx context.Context) error {
	resp, err := a.t.Get(ctx, PathHealth)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return newBackendError(PathHealth, resp)
	}
	return nil
}

func (a *API) list(ctx context.Context, path string, out any) error {
	resp, err := a.t.Get(ctx, path)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return newBackendError(path, resp)
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (a *API) send(ctx context.Context, path string, body any, fallback string, opts ...RequestOption) (string, error) {
	resp, err := a.t.Post(ctx, path, body, opts...)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", newBackendError(path, resp)
	}
	return resp.Message(fallback), nil
}

func (a *API) clear(ctx context.Context, path string) (string, error) {
	resp, err := a.t.Delete(ctx, path)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", newBackendError(path, resp)
	}
	return resp.Message("Removido"), nil
}

// call posts an empty device-authenticated request and decodes the result.
func (a *API) call(ctx context.Context, path string, out any) error {
	resp, err := a.t.Post(ctx, path, nil, WithDevice())
	if err != nil {
		return err
	}
	if !resp.OK() {
		return newBackendError(path, resp)
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
