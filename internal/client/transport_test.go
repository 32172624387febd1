package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(url string) *Transport {
	return NewTransport(TransportConfig{
		BaseURL:   url,
		DeviceKey: "test-device-key",
		Timeout:   2 * time.Second,
	}, zerolog.Nop())
}

func TestTransport_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/sensores", r.URL.Path)
		assert.Empty(t, r.Header.Get(DeviceHeader))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"S1","tipo":"pH"}]`)
	}))
	defer srv.Close()

	resp, err := newTestTransport(srv.URL).Get(context.Background(), "/api/sensores")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `[{"id":"S1","tipo":"pH"}]`, string(resp.Data))
}

func TestTransport_NonJSONBodyDegrades(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"html", "<html>oops</html>"},
		{"truncated", `{"message":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			resp, err := newTestTransport(srv.URL).Post(context.Background(), "/api/sensores", map[string]string{"id": "S1"})
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.Status)
			assert.JSONEq(t, `{}`, string(resp.Data))
			assert.Equal(t, tt.body, string(resp.Raw))
			assert.Equal(t, "fallback", resp.ErrorMessage("fallback"))
		})
	}
}

func TestTransport_DeviceHeader(t *testing.T) {
	var gotKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(DeviceHeader)
		gotContentType = r.Header.Get("Content-Type")
		io.WriteString(w, `{"message":"ok"}`)
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)

	resp, err := tr.Post(context.Background(), "/api/simulacao/tick", nil, WithDevice())
	require.NoError(t, err)
	assert.Equal(t, "test-device-key", gotKey)
	assert.Equal(t, "ok", resp.Message(""))

	_, err = tr.Post(context.Background(), "/api/sensores", map[string]string{"id": "S1"})
	require.NoError(t, err)
	assert.Empty(t, gotKey, "plain requests carry no credential")
	assert.Equal(t, "application/json", gotContentType)
}

func TestTransport_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"Não autorizado"}`)
	}))
	defer srv.Close()

	resp, err := newTestTransport(srv.URL).Delete(context.Background(), "/api/leituras")
	require.NoError(t, err, "non-2xx is not a transport failure")
	assert.False(t, resp.OK())
	assert.Equal(t, "Não autorizado", resp.ErrorMessage(""))
}

func TestTransport_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestTransport(url).Get(context.Background(), "/api/sensores")
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.MethodGet, terr.Method)
	assert.Equal(t, "/api/sensores", terr.Path)
}

func TestTransport_NoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestTransport(srv.URL).Get(context.Background(), "/api/alertas")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
