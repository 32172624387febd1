// Package client talks to the hydroponics backend: a thin JSON transport, a
// typed API on top of it and a live event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DeviceHeader carries the fixed device credential on device-mode requests.
const DeviceHeader = "X-API-KEY"

var emptyObject = json.RawMessage("{}")

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	BaseURL   string
	DeviceKey string
	Timeout   time.Duration
}

// Transport issues JSON requests against the backend. It never retries.
type Transport struct {
	http      *resty.Client
	deviceKey string
	logger    zerolog.Logger
}

// NewTransport creates a transport bound to the backend base URL
func NewTransport(cfg TransportConfig, logger zerolog.Logger) *Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Transport{
		http:      client,
		deviceKey: cfg.DeviceKey,
		logger:    logger,
	}
}

// BaseURL returns the backend base URL requests are resolved against.
func (t *Transport) BaseURL() string {
	return t.http.BaseURL
}

// Response is the decoded outcome of a request that reached the backend.
// Data is always valid JSON: bodies that are empty or not JSON become {}.
type Response struct {
	Status int
	Data   json.RawMessage
	Raw    []byte
}

func newResponse(status int, raw []byte) *Response {
	data := emptyObject
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && json.Valid(trimmed) {
		data = json.RawMessage(trimmed)
	}
	return &Response{Status: status, Data: data, Raw: raw}
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

type envelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (r *Response) envelope() envelope {
	var env envelope
	_ = json.Unmarshal(r.Data, &env)
	return env
}

// Message returns the body's "message" field, or fallback.
func (r *Response) Message(fallback string) string {
	if m := r.envelope().Message; m != "" {
		return m
	}
	return fallback
}

// ErrorMessage returns the body's "error" field, or fallback.
func (r *Response) ErrorMessage(fallback string) string {
	if m := r.envelope().Error; m != "" {
		return m
	}
	return fallback
}

// RequestOption adjusts a single request.
type RequestOption func(*resty.Request, *Transport)

// WithDevice authenticates the request with the configured device credential.
func WithDevice() RequestOption {
	return func(req *resty.Request, t *Transport) {
		req.SetHeader(DeviceHeader, t.deviceKey)
	}
}

// WithAccept overrides the Accept header, e.g. for the XML export.
func WithAccept(mime string) RequestOption {
	return func(req *resty.Request, _ *Transport) {
		req.SetHeader("Accept", mime)
	}
}

// Get issues a GET request.
func (t *Transport) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, nil, opts)
}

// Post issues a POST request with body encoded as JSON. A nil body sends no
// payload.
func (t *Transport) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, body, opts)
}

// Delete issues a DELETE request.
func (t *Transport) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return t.do(ctx, http.MethodDelete, path, nil, opts)
}

func (t *Transport) do(ctx context.Context, method, path string, body any, opts []RequestOption) (*Response, error) {
	req := t.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	for _, opt := range opts {
		opt(req, t)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		t.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}

	t.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	return newResponse(resp.StatusCode(), resp.Body()), nil
}
