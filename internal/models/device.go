package models

import (
	"fmt"
	"strings"
	"time"
)

// Sensor is a registered measuring device. Its identity is ID.
type Sensor struct {
	ID          string `json:"id"`
	Tipo        string `json:"tipo"`
	Unidade     string `json:"unidade,omitempty"`
	Modelo      string `json:"modelo,omitempty"`
	Localizacao string `json:"localizacao,omitempty"`
}

// Validate checks the fields required to register a sensor
func (s *Sensor) Validate() error {
	if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Tipo) == "" {
		return fmt.Errorf("sensor id and tipo are required")
	}
	return nil
}

// Actuator is a registered device that receives commands.
// Comandos is append-only until explicitly cleared.
type Actuator struct {
	ID            string    `json:"id"`
	Tipo          string    `json:"tipo"`
	Comandos      []Command `json:"comandos"`
	UltimoComando *Command  `json:"ultimoComando,omitempty"`
}

// Validate checks the fields required to register an actuator
func (a *Actuator) Validate() error {
	if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Tipo) == "" {
		return fmt.Errorf("actuator id and tipo are required")
	}
	return nil
}

// Copy returns a deep copy of the Actuator, including its command history
func (a *Actuator) Copy() *Actuator {
	if a == nil {
		return nil
	}
	c := *a
	c.Comandos = append([]Command(nil), a.Comandos...)
	if a.UltimoComando != nil {
		last := *a.UltimoComando
		c.UltimoComando = &last
	}
	return &c
}

// Command is one recorded action on an actuator.
type Command struct {
	AtuadorID string `json:"atuadorId"`
	Tipo      string `json:"tipo,omitempty"`
	Acao      string `json:"acao"`
	DataHora  string `json:"dataHora"`
}

// Time returns the parsed dataHora, or the zero time when it cannot be parsed.
func (c *Command) Time() time.Time {
	t, _ := ParseTimestamp(c.DataHora)
	return t
}

// Command actions issued by the simulation when a reading leaves its range.
const (
	ActionOn  = "ligar"
	ActionOff = "desligar"
)
