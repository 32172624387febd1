package simulation

import (
	"fmt"

	"github.com/afroash/dht"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Sensor types a DHT11 can answer for.
const (
	TypeTemperature = "temperatura"
	TypeHumidity    = "umidade"
)

// DHTSensor reads temperature (°C) and relative humidity (%) from hardware.
type DHTSensor interface {
	Read() (temperature float64, humidity float64, err error)
	Close() error
}

// DHT11Reader implements DHTSensor for DHT11 hardware
type DHT11Reader struct {
	pin        int
	maxRetries int
	sensor     *dht.Sensor
}

// NewDHT11Reader opens the DHT11 on the given GPIO pin
func NewDHT11Reader(pin int) (*DHT11Reader, error) {
	sensor, err := dht.NewDHT11(pin)
	if err != nil {
		return nil, fmt.Errorf("failed to open DHT11 on pin %d: %w", pin, err)
	}
	return &DHT11Reader{
		pin:        pin,
		maxRetries: 3,
		sensor:     sensor,
	}, nil
}

// Read performs a reading with retries
func (d *DHT11Reader) Read() (float64, float64, error) {
	reading, err := d.sensor.ReadRetry(d.maxRetries)
	if err != nil {
		return 0, 0, fmt.Errorf("after %d retries, failed to read from sensor: %w", d.maxRetries, err)
	}
	if err := validateReading(reading.Temperature, reading.Humidity); err != nil {
		return 0, 0, fmt.Errorf("invalid reading: %w", err)
	}
	return reading.Temperature, reading.Humidity, nil
}

// Close releases the GPIO line
func (d *DHT11Reader) Close() error {
	return d.sensor.Close()
}

// validateReading rejects values a DHT11 cannot physically report
func validateReading(temp, humidity float64) error {
	const (
		minTemp     = -20.0
		maxTemp     = 60.0
		minHumidity = 0.0
		maxHumidity = 100.0
	)
	if temp < minTemp || temp > maxTemp {
		return fmt.Errorf("temperature %.1f°C outside [%.0f, %.0f]", temp, minTemp, maxTemp)
	}
	if humidity < minHumidity || humidity > maxHumidity {
		return fmt.Errorf("humidity %.1f%% outside [%.0f, %.0f]", humidity, minHumidity, maxHumidity)
	}
	return nil
}

// DHTSource answers temperature and humidity sensors from real hardware and
// delegates every other type to fallback.
type DHTSource struct {
	hw       DHTSensor
	fallback Source
}

// NewDHTSource wraps a hardware sensor
func NewDHTSource(hw DHTSensor, fallback Source) *DHTSource {
	return &DHTSource{hw: hw, fallback: fallback}
}

// Sample reads the hardware for temperatura/umidade sensors
func (s *DHTSource) Sample(sensor models.Sensor) (float64, error) {
	switch sensor.Tipo {
	case TypeTemperature, TypeHumidity:
		temp, humidity, err := s.hw.Read()
		if err != nil {
			return 0, err
		}
		if sensor.Tipo == TypeHumidity {
			return humidity, nil
		}
		return temp, nil
	default:
		return s.fallback.Sample(sensor)
	}
}

// Close releases the hardware and the fallback
func (s *DHTSource) Close() error {
	err := s.hw.Close()
	if ferr := s.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
