package simulation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/models"
)

// CycleResult is what one tick produced.
type CycleResult struct {
	Readings []*models.Reading
	Commands []*models.Command
}

// Simulator turns the registered sensors into one round of readings and
// reacts to out-of-range values by commanding the first actuator.
type Simulator struct {
	source   Source
	fallback Source
	logger   zerolog.Logger
}

// NewSimulator creates a simulator. fallback answers when source fails.
func NewSimulator(source, fallback Source, logger zerolog.Logger) *Simulator {
	return &Simulator{
		source:   source,
		fallback: fallback,
		logger:   logger,
	}
}

// Cycle produces one evaluated reading per sensor, all stamped with now.
// A reading below range issues "ligar" on the first actuator, one above
// range issues "desligar".
func (s *Simulator) Cycle(sensors []models.Sensor, actuators []models.Actuator, now time.Time) CycleResult {
	result := CycleResult{
		Readings: make([]*models.Reading, 0, len(sensors)),
		Commands: []*models.Command{},
	}

	for _, sensor := range sensors {
		valor, err := s.source.Sample(sensor)
		if err != nil {
			s.logger.Warn().Err(err).Str("sensor_id", sensor.ID).Msg("Source failed, using fallback")
			if valor, err = s.fallback.Sample(sensor); err != nil {
				s.logger.Error().Err(err).Str("sensor_id", sensor.ID).Msg("Fallback failed, skipping sensor")
				continue
			}
		}

		reading := models.NewReading(sensor.ID, sensor.Tipo, sensor.Unidade, valor, now)
		eval := classify.Evaluate(sensor.Tipo, valor)
		reading.Status = eval.Severity
		reading.Mensagem = eval.Message
		result.Readings = append(result.Readings, reading)

		if len(actuators) == 0 {
			continue
		}
		var acao string
		switch eval.Severity {
		case models.SeverityLow:
			acao = models.ActionOn
		case models.SeverityHigh:
			acao = models.ActionOff
		default:
			continue
		}
		result.Commands = append(result.Commands, &models.Command{
			AtuadorID: actuators[0].ID,
			Tipo:      actuators[0].Tipo,
			Acao:      acao,
			DataHora:  reading.DataHora,
		})
	}

	s.logger.Debug().
		Int("readings", len(result.Readings)).
		Int("commands", len(result.Commands)).
		Msg("Simulation cycle completed")

	return result
}

// Close releases both sources
func (s *Simulator) Close() error {
	err := s.source.Close()
	if s.fallback != s.source {
		if ferr := s.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
