package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// StreamState represents the current state of the event stream
type StreamState int

const (
	StateDisconnected StreamState = iota
	StateConnecting
	StateConnected
)

func (s StreamState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// EventHandler is called for every event received from the backend.
type EventHandler func(models.Event)

// StreamConfig holds configuration for the event stream
type StreamConfig struct {
	URL                  string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	// ReadTimeout bounds the silence between two frames (events or pings).
	ReadTimeout time.Duration
}

// Stream follows the backend's live event feed and reconnects with
// exponential backoff when the connection drops.
type Stream struct {
	url                      string
	conn                     *websocket.Conn
	state                    StreamState
	stateMutex               sync.RWMutex
	logger                   zerolog.Logger
	handler                  EventHandler
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	readTimeout              time.Duration
}

// NewStream creates a stream that hands every event to handler
func NewStream(cfg StreamConfig, handler EventHandler, logger zerolog.Logger) *Stream {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.MaxReconnectInterval < cfg.ReconnectInterval {
		cfg.MaxReconnectInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 90 * time.Second
	}
	return &Stream{
		url:                      cfg.URL,
		state:                    StateDisconnected,
		logger:                   logger,
		handler:                  handler,
		reconnectInterval:        cfg.ReconnectInterval,
		maxReconnectInterval:     cfg.MaxReconnectInterval,
		currentReconnectInterval: cfg.ReconnectInterval,
		readTimeout:              cfg.ReadTimeout,
	}
}

func (s *Stream) setState(state StreamState) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.state = state
	s.logger.Debug().Str("state", state.String()).Msg("Stream state updated")
}

// State returns the current stream state
func (s *Stream) State() StreamState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// IsConnected returns true if currently connected
func (s *Stream) IsConnected() bool {
	return s.State() == StateConnected
}

// Connect dials the event feed once.
func (s *Stream) Connect(ctx context.Context) error {
	s.setState(StateConnecting)
	s.logger.Info().Str("url", s.url).Msg("Connecting to event stream")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, s.url, http.Header{})
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s.stateMutex.Lock()
	s.conn = conn
	s.stateMutex.Unlock()
	s.setState(StateConnected)
	s.currentReconnectInterval = s.reconnectInterval
	s.logger.Info().Msg("Connected to event stream")
	return nil
}

// Run follows the stream until ctx is cancelled, reconnecting as needed.
func (s *Stream) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.Connect(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Stream connection failed")
			s.waitBeforeReconnect(ctx)
			continue
		}

		s.readLoop(ctx)

		s.logger.Info().Msg("Stream lost, will reconnect")
		s.waitBeforeReconnect(ctx)
	}
}

func (s *Stream) waitBeforeReconnect(ctx context.Context) {
	s.logger.Debug().Dur("delay", s.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(s.currentReconnectInterval):
	case <-ctx.Done():
		return
	}
	s.currentReconnectInterval *= 2
	if s.currentReconnectInterval > s.maxReconnectInterval {
		s.currentReconnectInterval = s.maxReconnectInterval
	}
}

// readLoop reads events until the connection fails or ctx is cancelled.
func (s *Stream) readLoop(ctx context.Context) {
	s.stateMutex.RLock()
	conn := s.conn
	s.stateMutex.RUnlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Stream read error")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		s.handleEvent(event)
	}

	s.disconnect()
}

func (s *Stream) handleEvent(event models.Event) {
	s.logger.Debug().Str("type", string(event.Type)).Msg("Received event")
	if event.Type == models.EventError {
		var payload models.ErrorPayload
		if err := event.UnmarshalPayload(&payload); err == nil {
			s.logger.Warn().Str("code", payload.Code).Str("msg", payload.Message).Msg("Backend error event")
		}
	}
	if s.handler != nil {
		s.handler(event)
	}
}

func (s *Stream) disconnect() {
	s.stateMutex.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
	s.stateMutex.Unlock()
	s.logger.Debug().Msg("Stream disconnected")
}

// Close sends a close frame and drops the connection.
func (s *Stream) Close() error {
	s.stateMutex.Lock()
	if s.conn != nil {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
	s.stateMutex.Unlock()
	s.logger.Info().Msg("Stream closed")
	return nil
}
