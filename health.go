package platform

import "time"

// ModuleHealth is the outcome of one health check for one module.
type ModuleHealth struct {
	ModuleID  string    `json:"moduleId"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checkedAt"`
	Error     string    `json:"error,omitempty"`
}

// HealthReport aggregates one sweep across the whole registry. Modules
// that are not loaded always count as unhealthy.
type HealthReport struct {
	Healthy   int                     `json:"healthy"`
	Unhealthy int                     `json:"unhealthy"`
	Total     int                     `json:"total"`
	Modules   map[string]ModuleHealth `json:"modules"`
}

// ModuleStatus is the JSON-serializable runtime state of one module, as
// exposed through the status API.
type ModuleStatus struct {
	Enabled         bool      `json:"enabled"`
	Loaded          bool      `json:"loaded"`
	Healthy         bool      `json:"healthy"`
	LastHealthCheck time.Time `json:"lastHealthCheck,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
}
