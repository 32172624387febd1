// Package ordering applies a deterministic display order to every collection
// fetched from the backend.
//
// Identity collections (sensors, actuators and the commands nested in each
// actuator) are shown most recently registered first. Time-series collections
// (readings, alerts and the flat command history) are stably sorted by
// dataHora, newest first. No function mutates its input.
package ordering

import (
	"fmt"
	"sort"
	"time"

	"github.com/afroash/hydro-monitor/internal/models"
)

// Policy describes the order in which the backend returns identity collections.
type Policy string

const (
	// PolicyReverse means the backend returns insertion order, oldest first.
	PolicyReverse Policy = "reverse"
	// PolicyPreserve means the backend already returns newest first.
	PolicyPreserve Policy = "preserve"
)

// ParsePolicy resolves a configured policy name. Empty selects PolicyReverse.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReverse:
		return PolicyReverse, nil
	case PolicyPreserve:
		return PolicyPreserve, nil
	default:
		return "", fmt.Errorf("unknown ordering policy %q (want reverse or preserve)", s)
	}
}

// Orderer orders fetched collections. The zero value reverses identity
// collections.
type Orderer struct {
	Identity Policy
}

// New creates an Orderer for the given identity policy.
func New(identity Policy) *Orderer {
	return &Orderer{Identity: identity}
}

func (o *Orderer) reverse() bool {
	return o == nil || o.Identity != PolicyPreserve
}

// Sensors returns the sensors most recently registered first.
func (o *Orderer) Sensors(in []models.Sensor) []models.Sensor {
	out := make([]models.Sensor, len(in))
	copy(out, in)
	if o.reverse() {
		reverseSlice(out)
	}
	return out
}

// Actuators returns the actuators most recently registered first, each with
// its nested command history in the same order.
func (o *Orderer) Actuators(in []models.Actuator) []models.Actuator {
	out := make([]models.Actuator, len(in))
	for i := range in {
		out[i] = *in[i].Copy()
		if o.reverse() {
			reverseSlice(out[i].Comandos)
		}
	}
	if o.reverse() {
		reverseSlice(out)
	}
	return out
}

// Commands returns the flat command history, newest first.
func (o *Orderer) Commands(in []models.Command) []models.Command {
	return byTimeDesc(in, func(c *models.Command) time.Time { return c.Time() })
}

// Readings returns the readings, newest first.
func (o *Orderer) Readings(in []models.Reading) []models.Reading {
	return byTimeDesc(in, func(r *models.Reading) time.Time { return r.Time() })
}

// Alerts returns the alerts, newest first.
func (o *Orderer) Alerts(in []models.Alert) []models.Alert {
	return byTimeDesc(in, func(a *models.Alert) time.Time { return a.Time() })
}

// byTimeDesc copies in and stably sorts the copy by descending timestamp.
// Unparsable timestamps resolve to the zero time, which places them last.
func byTimeDesc[T any](in []T, at func(*T) time.Time) []T {
	out := make([]T, len(in))
	copy(out, in)

	keys := make([]time.Time, len(out))
	for i := range out {
		keys[i] = at(&out[i])
	}
	sort.Stable(&timeSorter[T]{items: out, keys: keys})
	return out
}

type timeSorter[T any] struct {
	items []T
	keys  []time.Time
}

func (s *timeSorter[T]) Len() int           { return len(s.items) }
func (s *timeSorter[T]) Less(i, j int) bool { return s.keys[i].After(s.keys[j]) }
func (s *timeSorter[T]) Swap(i, j int) {
	s.items[i], s.items[j] = s.items[j], s.items[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}

func reverseSlice[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
