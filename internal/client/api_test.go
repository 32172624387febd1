package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/hydro-monitor/internal/export"
	"github.com/afroash/hydro-monitor/internal/models"
)

func TestAPI_ListSensors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"S1","tipo":"pH"},{"id":"S2","tipo":"EC","unidade":"mS/cm"}]`)
	}))
	defer srv.Close()

	api := NewAPI(newTestTransport(srv.URL))
	sensors, err := api.ListSensors(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "S2", sensors[1].ID)
	assert.Equal(t, "mS/cm", sensors[1].Unidade)
}

func TestAPI_RegisterSensor_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s models.Sensor
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		assert.Equal(t, "S1", s.ID)
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"Já existe sensor com esse ID."}`)
	}))
	defer srv.Close()

	api := NewAPI(newTestTransport(srv.URL))
	_, err := api.RegisterSensor(context.Background(), models.Sensor{ID: "S1", Tipo: "pH"})
	require.Error(t, err)

	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, http.StatusConflict, berr.Status)
	assert.Equal(t, "Já existe sensor com esse ID.", berr.Message)
}

func TestAPI_BackendErrorFallsBackToStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewAPI(newTestTransport(srv.URL)).ListAlerts(context.Background())
	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "Bad Gateway", berr.Message)
}

func TestAPI_TickAndSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(DeviceHeader) != "test-device-key" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Não autorizado"}`)
			return
		}
		switch r.URL.Path {
		case PathTick:
			io.WriteString(w, `{"message":"ok","leituras":[{"sensorId":"S1","valor":6.1,"dataHora":"2025-10-24T10:00:00Z"}],"comandos":[],"pendentes":0}`)
		case PathSync:
			io.WriteString(w, `{"sincronizadas":3,"pendentes":0}`)
		}
	}))
	defer srv.Close()

	api := NewAPI(newTestTransport(srv.URL))

	tick, err := api.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, tick.Leituras, 1)
	assert.Equal(t, "S1", tick.Leituras[0].SensorID)

	sync, err := api.SyncPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sync.Sincronizadas)
}

func TestAPI_ExportXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathExportXML, r.URL.Path)
		assert.Equal(t, "2025-10-24T10:00:00Z", r.URL.Query().Get("inicio"))
		assert.Equal(t, "2025-10-24T11:00:00Z", r.URL.Query().Get("fim"))
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<sistemaHidroponico/>`)
	}))
	defer srv.Close()

	r, err := export.NewRange("2025-10-24T10:00", "2025-10-24T11:00")
	require.NoError(t, err)

	body, err := NewAPI(newTestTransport(srv.URL)).ExportXML(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, `<sistemaHidroponico/>`, string(body))
}

func TestAPI_ListDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	readings, err := NewAPI(newTestTransport(srv.URL)).ListReadings(context.Background())
	assert.Error(t, err)
	assert.Empty(t, readings)
}
