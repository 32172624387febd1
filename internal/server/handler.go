package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub fans live events out to every connected dashboard.
type Hub struct {
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	allowedOrigins []string
	subscribers    map[*Subscriber]struct{}
	mutex          sync.RWMutex
	pingPeriod     time.Duration
}

// Subscriber is one connected dashboard
type Subscriber struct {
	Remote      string
	ConnectedAt time.Time
	conn        *websocket.Conn
	writeMu     sync.Mutex
}

// SubscriberInfo describes a connected dashboard
type SubscriberInfo struct {
	Remote      string    `json:"remote"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewHub creates a hub. Cross-origin upgrades are accepted only from
// allowedOrigins; requests without an Origin header are same-origin.
func NewHub(logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		subscribers:    make(map[*Subscriber]struct{}),
		pingPeriod:     pingPeriod,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("Rejected stream connection: origin not in allowlist")
	return false
}

// ServeHTTP upgrades the request and keeps the subscriber until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	sub := &Subscriber{
		Remote:      conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	h.add(sub)
	defer h.remove(sub)

	ack, err := models.NewEvent(models.EventAck, models.APIMessage{Message: "conectado"})
	if err == nil {
		h.send(sub, ack)
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(sub, done)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Dashboards only listen; reading drives pong and close handling.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("remote", sub.Remote).Msg("Stream error")
			}
			return
		}
	}
}

func (h *Hub) keepAlive(sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sub.writeMu.Lock()
			err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			sub.writeMu.Unlock()
			if err != nil {
				sub.conn.Close()
				return
			}
		}
	}
}

// Publish builds an event and sends it to every subscriber.
func (h *Hub) Publish(eventType models.EventType, payload any) {
	event, err := models.NewEvent(eventType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(eventType)).Msg("Failed to create event")
		return
	}
	h.Broadcast(event)
}

// Broadcast sends event to every subscriber. Subscribers that fail the
// write are disconnected.
func (h *Hub) Broadcast(event *models.Event) {
	h.mutex.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mutex.RUnlock()

	for _, sub := range subs {
		h.send(sub, event)
	}
	h.logger.Debug().Str("type", string(event.Type)).Int("subscribers", len(subs)).Msg("Event broadcast")
}

func (h *Hub) send(sub *Subscriber, event *models.Event) {
	sub.writeMu.Lock()
	defer sub.writeMu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sub.conn.WriteJSON(event); err != nil {
		h.logger.Warn().Err(err).Str("remote", sub.Remote).Msg("Failed to send event")
		sub.conn.Close()
	}
}

func (h *Hub) add(sub *Subscriber) {
	h.mutex.Lock()
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mutex.Unlock()
	h.logger.Info().Str("remote", sub.Remote).Int("subscribers", n).Msg("Dashboard connected")
}

func (h *Hub) remove(sub *Subscriber) {
	h.mutex.Lock()
	delete(h.subscribers, sub)
	n := len(h.subscribers)
	h.mutex.Unlock()
	sub.conn.Close()
	h.logger.Info().Str("remote", sub.Remote).Int("subscribers", n).Msg("Dashboard disconnected")
}

// Subscribers returns the connected dashboards
func (h *Hub) Subscribers() []SubscriberInfo {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]SubscriberInfo, 0, len(h.subscribers))
	for sub := range h.subscribers {
		out = append(out, SubscriberInfo{Remote: sub.Remote, ConnectedAt: sub.ConnectedAt})
	}
	return out
}

// Count returns the number of connected dashboards
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers)
}
