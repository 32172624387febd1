// Package ingest accepts readings pushed by devices over MQTT and queues
// them on the batched database writer.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/config"
	"github.com/afroash/hydro-monitor/internal/models"
)

// Writer queues readings for persistence. storage.DBWriter implements it.
type Writer interface {
	Write(reading *models.Reading) bool
}

// Stats counts processed messages
type Stats struct {
	Received int64 `json:"received"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Dropped  int64 `json:"dropped"`
}

// Subscriber consumes device readings from an MQTT topic.
type Subscriber struct {
	client mqtt.Client
	cfg    config.MQTTSettings
	writer Writer
	logger zerolog.Logger

	received atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
	dropped  atomic.Int64
}

// NewSubscriber builds a subscriber. Call Start to connect.
func NewSubscriber(cfg config.MQTTSettings, writer Writer, logger zerolog.Logger) (*Subscriber, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("hydro-monitor-%d", time.Now().Unix())
	}

	s := &Subscriber{cfg: cfg, writer: writer, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error().Err(err).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("Reconnecting to MQTT broker")
	})
	// Subscriptions do not survive a reconnect with a clean session.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := s.subscribe(c); err != nil {
			logger.Error().Err(err).Str("topic", cfg.Topic).Msg("MQTT subscribe failed")
		}
	})

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Start connects to the broker. Subscription happens on connect.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection to MQTT broker timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	s.logger.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("MQTT subscriber started")
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.HandleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscription to %s timed out", s.cfg.Topic)
	}
	return token.Error()
}

// Stop disconnects from the broker
func (s *Subscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.logger.Info().Interface("stats", s.Stats()).Msg("MQTT subscriber stopped")
}

// HandleMessage parses one payload and queues it. Invalid payloads are
// logged and dropped.
func (s *Subscriber) HandleMessage(topic string, payload []byte) {
	s.received.Add(1)

	reading, err := ParsePayload(topic, payload)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Warn().Err(err).Str("topic", topic).Msg("Invalid device payload")
		return
	}
	if !s.writer.Write(reading) {
		s.dropped.Add(1)
		return
	}
	s.accepted.Add(1)
	s.logger.Debug().Str("sensor_id", reading.SensorID).Float64("valor", reading.Valor).Msg("Device reading queued")
}

// Stats returns the message counters
func (s *Subscriber) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Dropped:  s.dropped.Load(),
	}
}

type devicePayload struct {
	SensorID string   `json:"sensorId"`
	DataHora string   `json:"dataHora"`
	Valor    *float64 `json:"valor"`
	Unidade  string   `json:"unidade"`
}

// ParsePayload decodes a device message. When the payload has no sensorId
// the last topic segment is used.
func ParsePayload(topic string, payload []byte) (*models.Reading, error) {
	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if p.SensorID == "" {
		if i := strings.LastIndex(topic, "/"); i >= 0 && i < len(topic)-1 {
			p.SensorID = topic[i+1:]
		}
	}
	if p.SensorID == "" || p.SensorID == "#" || p.SensorID == "+" {
		return nil, fmt.Errorf("missing sensorId")
	}
	if p.Valor == nil {
		return nil, fmt.Errorf("missing valor")
	}
	t, err := models.ParseTimestamp(p.DataHora)
	if err != nil {
		return nil, fmt.Errorf("dataHora: %w", err)
	}

	reading := &models.Reading{
		SensorID: p.SensorID,
		Valor:    *p.Valor,
		Unidade:  p.Unidade,
		DataHora: models.FormatTimestamp(t),
	}
	if !reading.IsValid() {
		return nil, fmt.Errorf("invalid reading for sensor %s", p.SensorID)
	}
	return reading, nil
}
