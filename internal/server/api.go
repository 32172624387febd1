// Package server implements the hydroponics backend: the REST surface the
// dashboard consumes, device-authenticated ingestion, the simulation tick
// and the live event hub.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/models"
	"github.com/afroash/hydro-monitor/internal/storage"
)

// APIConfig wires an APIHandler
type APIConfig struct {
	Store       storage.Store
	Pending     *storage.PendingBuffer
	Simulation  Simulation
	Events      Broadcaster
	DeviceKey   string
	Version     string
	SystemID    string
	Clock       func() time.Time
	Subscribers func() int
}

// APIHandler handles the backend's HTTP API
type APIHandler struct {
	store       storage.Store
	pending     *storage.PendingBuffer
	sim         Simulation
	events      Broadcaster
	deviceKey   string
	info        *models.ServiceInfo
	systemID    string
	now         func() time.Time
	subscribers func() int
	logger      zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(cfg APIConfig, logger zerolog.Logger) *APIHandler {
	api := &APIHandler{
		store:       cfg.Store,
		pending:     cfg.Pending,
		sim:         cfg.Simulation,
		events:      cfg.Events,
		deviceKey:   cfg.DeviceKey,
		info:        models.NewServiceInfo("hydro-monitor", cfg.Version),
		systemID:    cfg.SystemID,
		now:         cfg.Clock,
		subscribers: cfg.Subscribers,
		logger:      logger,
	}
	if api.pending == nil {
		api.pending = storage.NewPendingBuffer(1000, true)
	}
	if api.events == nil {
		api.events = nopBroadcaster{}
	}
	if api.now == nil {
		api.now = time.Now
	}
	if api.systemID == "" {
		api.systemID = "hidroponia-01"
	}
	return api
}

// RegisterRoutes mounts every endpoint on mux.
func (api *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	device := func(h http.HandlerFunc) http.HandlerFunc { return RequireDevice(api.deviceKey, h) }

	mux.HandleFunc("GET /api/sensores", api.HandleListSensors)
	mux.HandleFunc("POST /api/sensores", api.HandleRegisterSensor)
	mux.HandleFunc("DELETE /api/sensores", api.HandleClearSensors)

	mux.HandleFunc("GET /api/atuadores", api.HandleListActuators)
	mux.HandleFunc("POST /api/atuadores", api.HandleRegisterActuator)
	mux.HandleFunc("DELETE /api/atuadores", api.HandleClearActuators)
	mux.HandleFunc("GET /api/atuadores/comandos", api.HandleListCommands)
	mux.HandleFunc("DELETE /api/atuadores/comandos", api.HandleClearCommands)
	mux.HandleFunc("POST /api/atuadores/comando", device(api.HandleSendCommand))

	mux.HandleFunc("GET /api/leituras", api.HandleListReadings)
	mux.HandleFunc("POST /api/leituras", device(api.HandlePostReading))
	mux.HandleFunc("DELETE /api/leituras", api.HandleClearReadings)
	mux.HandleFunc("GET /api/alertas", api.HandleListAlerts)

	mux.HandleFunc("POST /api/simulacao/tick", device(api.HandleTick))
	mux.HandleFunc("POST /api/sync-pendentes", device(api.HandleSyncPending))
	mux.HandleFunc("GET /api/exportar/xml", api.HandleExportXML)

	mux.HandleFunc("GET /api/estatisticas", api.HandleStats)
	mux.HandleFunc("GET /health", api.HandleHealth)
}

// Handler returns the API on a fresh mux, with the event stream mounted
// when hub is not nil.
func (api *APIHandler) Handler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	if hub != nil {
		mux.Handle("GET /api/stream", hub)
	}
	return LogRequests(api.logger, mux)
}

// HandleListSensors returns sensors in registration order
func (api *APIHandler) HandleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := api.store.ListSensors()
	if err != nil {
		api.internalError(w, "list sensors", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sensors))
}

// HandleRegisterSensor registers a sensor. The unit is derived from its type.
func (api *APIHandler) HandleRegisterSensor(w http.ResponseWriter, r *http.Request) {
	var sensor models.Sensor
	if err := readBodyJSON(r, &sensor); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if err := sensor.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Campos obrigatórios: id, tipo")
		return
	}
	sensor.ID = strings.TrimSpace(sensor.ID)
	sensor.Unidade = classify.UnitForType(sensor.Tipo)

	if err := api.store.AddSensor(&sensor); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Já existe sensor com esse ID.")
			return
		}
		api.internalError(w, "add sensor", err)
		return
	}
	api.logger.Info().Str("sensor_id", sensor.ID).Str("tipo", sensor.Tipo).Msg("Sensor registered")
	writeMessage(w, http.StatusCreated, "Sensor cadastrado com sucesso")
}

// HandleClearSensors removes every sensor
func (api *APIHandler) HandleClearSensors(w http.ResponseWriter, r *http.Request) {
	if err := api.store.ClearSensors(); err != nil {
		api.internalError(w, "clear sensors", err)
		return
	}
	api.cleared("sensores")
	writeMessage(w, http.StatusOK, "Sensores removidos")
}

// HandleListActuators returns actuators with their command history
func (api *APIHandler) HandleListActuators(w http.ResponseWriter, r *http.Request) {
	actuators, err := api.store.ListActuators()
	if err != nil {
		api.internalError(w, "list actuators", err)
		return
	}
	for i := range actuators {
		actuators[i].Comandos = nonNil(actuators[i].Comandos)
	}
	writeJSON(w, http.StatusOK, nonNil(actuators))
}

// HandleRegisterActuator registers an actuator with an empty history
func (api *APIHandler) HandleRegisterActuator(w http.ResponseWriter, r *http.Request) {
	var actuator models.Actuator
	if err := readBodyJSON(r, &actuator); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if err := actuator.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Campos obrigatórios: id, tipo")
		return
	}
	actuator.ID = strings.TrimSpace(actuator.ID)
	actuator.Comandos = nil
	actuator.UltimoComando = nil

	if err := api.store.AddActuator(&actuator); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "Já existe atuador com esse ID.")
			return
		}
		api.internalError(w, "add actuator", err)
		return
	}
	api.logger.Info().Str("actuator_id", actuator.ID).Str("tipo", actuator.Tipo).Msg("Actuator registered")
	writeMessage(w, http.StatusCreated, "Atuador cadastrado com sucesso")
}

// HandleClearActuators removes every actuator and its history
func (api *APIHandler) HandleClearActuators(w http.ResponseWriter, r *http.Request) {
	if err := api.store.ClearActuators(); err != nil {
		api.internalError(w, "clear actuators", err)
		return
	}
	api.cleared("atuadores")
	writeMessage(w, http.StatusOK, "Atuadores removidos")
}

// HandleListCommands returns the flat command history
func (api *APIHandler) HandleListCommands(w http.ResponseWriter, r *http.Request) {
	commands, err := api.store.ListCommands()
	if err != nil {
		api.internalError(w, "list commands", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(commands))
}

// HandleClearCommands empties every actuator's history
func (api *APIHandler) HandleClearCommands(w http.ResponseWriter, r *http.Request) {
	if err := api.store.ClearCommands(); err != nil {
		api.internalError(w, "clear commands", err)
		return
	}
	api.cleared("comandos")
	writeMessage(w, http.StatusOK, "Histórico de comandos removido")
}

// HandleSendCommand appends a command sent by a device
func (api *APIHandler) HandleSendCommand(w http.ResponseWriter, r *http.Request) {
	var cmd models.Command
	if err := readBodyJSON(r, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if strings.TrimSpace(cmd.AtuadorID) == "" || strings.TrimSpace(cmd.Acao) == "" {
		writeError(w, http.StatusBadRequest, "Campos obrigatórios: atuadorId, acao")
		return
	}
	if cmd.DataHora == "" {
		cmd.DataHora = models.FormatTimestamp(api.now())
	} else if _, err := models.ParseTimestamp(cmd.DataHora); err != nil {
		writeError(w, http.StatusBadRequest, "dataHora inválida")
		return
	}

	if err := api.store.AddCommand(&cmd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Atuador não encontrado")
			return
		}
		api.internalError(w, "add command", err)
		return
	}
	writeMessage(w, http.StatusCreated, "Comando registrado com sucesso")
}

// HandleListReadings returns stored readings within the optional inclusive
// range, each evaluated against its sensor's ideal range.
func (api *APIHandler) HandleListReadings(w http.ResponseWriter, r *http.Request) {
	readings, ok := api.evaluatedReadings(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// HandlePostReading stores a reading pushed by a device. When the store
// fails the reading is kept in the pending buffer and 202 is returned.
func (api *APIHandler) HandlePostReading(w http.ResponseWriter, r *http.Request) {
	var reading models.Reading
	if err := readBodyJSON(r, &reading); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if !reading.IsValid() {
		writeError(w, http.StatusBadRequest, "Campos obrigatórios: sensorId, dataHora, valor")
		return
	}
	reading.Status = ""
	reading.Mensagem = ""

	if err := api.store.InsertReading(&reading); err != nil {
		api.pending.Push(&reading)
		api.logger.Warn().Err(err).Str("sensor_id", reading.SensorID).Int("pending", api.pending.Size()).Msg("Reading deferred")
		writeMessage(w, http.StatusAccepted, "Leitura armazenada localmente (modo offline)")
		return
	}

	api.events.Publish(models.EventReadings, models.TickPayload{Leituras: 1, Pendentes: api.pending.Size()})
	writeMessage(w, http.StatusCreated, "Leitura registrada com sucesso")
}

// HandleClearReadings removes every reading
func (api *APIHandler) HandleClearReadings(w http.ResponseWriter, r *http.Request) {
	if err := api.store.ClearReadings(); err != nil {
		api.internalError(w, "clear readings", err)
		return
	}
	api.cleared("leituras")
	writeMessage(w, http.StatusOK, "Leituras removidas")
}

// HandleListAlerts returns the readings outside their ideal range
func (api *APIHandler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	readings, ok := api.evaluatedReadings(w, r)
	if !ok {
		return
	}
	alerts := []models.Alert{}
	for _, rd := range readings {
		if !rd.Severity().IsAlert() {
			continue
		}
		alerts = append(alerts, models.Alert{
			SensorID: rd.SensorID,
			Tipo:     rd.Tipo,
			Valor:    rd.Valor,
			Mensagem: rd.Mensagem,
			DataHora: rd.DataHora,
		})
	}
	writeJSON(w, http.StatusOK, alerts)
}

// HandleTick runs one simulation cycle, persists its output and notifies
// subscribers. Readings the store rejects go to the pending buffer.
func (api *APIHandler) HandleTick(w http.ResponseWriter, r *http.Request) {
	if api.sim == nil {
		writeError(w, http.StatusServiceUnavailable, "Simulação indisponível")
		return
	}
	sensors, err := api.store.ListSensors()
	if err != nil {
		api.internalError(w, "list sensors", err)
		return
	}
	actuators, err := api.store.ListActuators()
	if err != nil {
		api.internalError(w, "list actuators", err)
		return
	}

	result := api.sim.Cycle(sensors, actuators, api.now())

	if err := api.store.InsertBatch(result.Readings); err != nil {
		kept := api.pending.PushAll(result.Readings)
		api.logger.Warn().Err(err).Int("readings", len(result.Readings)).Int("kept", kept).Msg("Tick readings deferred")
	}

	commands := make([]models.Command, 0, len(result.Commands))
	for _, cmd := range result.Commands {
		if err := api.store.AddCommand(cmd); err != nil {
			api.logger.Warn().Err(err).Str("actuator_id", cmd.AtuadorID).Msg("Tick command not recorded")
			continue
		}
		commands = append(commands, *cmd)
	}

	readings := make([]models.Reading, len(result.Readings))
	for i, rd := range result.Readings {
		readings[i] = *rd
	}

	pendentes := api.pending.Size()
	api.events.Publish(models.EventTick, models.TickPayload{
		Leituras:  len(readings),
		Comandos:  len(commands),
		Pendentes: pendentes,
	})

	api.logger.Info().
		Int("readings", len(readings)).
		Int("commands", len(commands)).
		Int("pending", pendentes).
		Msg("Simulation tick")

	writeJSON(w, http.StatusOK, models.TickResult{
		Message:   "Ciclo de simulação executado",
		Leituras:  readings,
		Comandos:  commands,
		Pendentes: pendentes,
	})
}

// HandleSyncPending drains the pending buffer into the store
func (api *APIHandler) HandleSyncPending(w http.ResponseWriter, r *http.Request) {
	synced, err := api.pending.Sync(api.store.InsertBatch)
	if err != nil {
		api.logger.Error().Err(err).Int("pending", api.pending.Size()).Msg("Pending sync failed")
		writeJSON(w, http.StatusServiceUnavailable, struct {
			models.APIMessage
			Pendentes int `json:"pendentes"`
		}{models.APIMessage{Error: "Falha ao sincronizar leituras pendentes"}, api.pending.Size()})
		return
	}
	if synced > 0 {
		api.events.Publish(models.EventReadings, models.TickPayload{Leituras: synced, Pendentes: api.pending.Size()})
		api.logger.Info().Int("synced", synced).Msg("Pending readings synced")
	}
	writeJSON(w, http.StatusOK, models.SyncResult{
		Message:       "Sincronização concluída",
		Sincronizadas: synced,
		Pendentes:     api.pending.Size(),
	})
}

// StatsResponse is the body of GET /api/estatisticas
type StatsResponse struct {
	Storage     *storage.StorageStats `json:"storage"`
	Pending     storage.PendingStats  `json:"pending"`
	Subscribers int                   `json:"subscribers"`
	Version     string                `json:"version"`
}

// HandleStats returns store, pending buffer and stream statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.store.GetStorageStats()
	if err != nil {
		api.internalError(w, "storage stats", err)
		return
	}
	resp := StatsResponse{
		Storage: stats,
		Pending: api.pending.Stats(),
		Version: api.info.Version,
	}
	if api.subscribers != nil {
		resp.Subscribers = api.subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth reports liveness
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   api.info.Name,
		"version":   api.info.Version,
		"uptime_s":  int64(api.info.Uptime().Seconds()),
		"pendentes": api.pending.Size(),
	})
}

// evaluatedReadings lists readings in the request's range and evaluates
// each one against its sensor. Readings from unknown sensors are unknown.
func (api *APIHandler) evaluatedReadings(w http.ResponseWriter, r *http.Request) ([]models.Reading, bool) {
	start, end, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	readings, err := api.store.ListReadings(start, end)
	if err != nil {
		api.internalError(w, "list readings", err)
		return nil, false
	}
	sensors, err := api.store.ListSensors()
	if err != nil {
		api.internalError(w, "list sensors", err)
		return nil, false
	}

	byID := make(map[string]models.Sensor, len(sensors))
	for _, s := range sensors {
		byID[s.ID] = s
	}
	for i := range readings {
		rd := &readings[i]
		sensor, ok := byID[rd.SensorID]
		if !ok {
			rd.Status = models.SeverityUnknown
			rd.Mensagem = ""
			continue
		}
		rd.Tipo = sensor.Tipo
		if rd.Unidade == "" {
			rd.Unidade = sensor.Unidade
		}
		eval := classify.Evaluate(sensor.Tipo, rd.Valor)
		rd.Status = eval.Severity
		rd.Mensagem = eval.Message
	}
	return nonNil(readings), true
}

func (api *APIHandler) cleared(collection string) {
	api.logger.Info().Str("collection", collection).Msg("Collection cleared")
	api.events.Publish(models.EventCleared, models.ClearedPayload{Collection: collection})
}

func (api *APIHandler) internalError(w http.ResponseWriter, op string, err error) {
	api.logger.Error().Err(err).Str("op", op).Msg("Storage error")
	writeError(w, http.StatusInternalServerError, "Erro interno")
}
