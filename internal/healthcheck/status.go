package healthcheck

import "time"

type Status struct {
	Target       string    `json:"target"`
	IsHealthy    bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastSuccess  time.Time `json:"last_success"`
	LastFailure  time.Time `json:"last_failure"`
	FailureCount int       `json:"failure_count"`
	LastError    string    `json:"last_error,omitempty"`
}

// Represents overall health of the collector
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Degraded
	Unhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}
