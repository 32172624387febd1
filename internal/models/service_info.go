package models

import "time"

// ServiceInfo describes the running backend for health checks
type ServiceInfo struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the service started
func (s *ServiceInfo) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// NewServiceInfo creates a new ServiceInfo with the current time as start time
func NewServiceInfo(name, version string) *ServiceInfo {
	return &ServiceInfo{
		Name:      name,
		Version:   version,
		StartTime: time.Now(),
	}
}
