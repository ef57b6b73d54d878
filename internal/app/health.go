// Package app provides application use cases.
package app

import "context"

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult represents the health check response.
type HealthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Driver   string `json:"driver,omitempty"`
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// HealthService implements HealthUsecase.
type HealthService struct {
	Version string
	DB      Pinger
}

// Handle returns the current health status. A failed ping degrades the
// status rather than failing the request.
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{
		Status:   "ok",
		Version:  s.Version,
		Database: "ok",
	}
	if s.DB == nil {
		res.Database = "unknown"
		return res, nil
	}
	res.Driver = s.DB.Driver()
	if err := s.DB.Ping(ctx); err != nil {
		res.Status = "degraded"
		res.Database = "unavailable"
	}
	return res, nil
}
