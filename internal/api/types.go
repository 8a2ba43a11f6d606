package api

import (
	"time"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	MappingRules  int    `json:"mapping_rules"`
	// Consumers counts exclusive and observing subscriptions per inspection topic.
	Consumers map[string]int `json:"consumers"`
}

// InspectionListResponse is returned by GET /inspections.
type InspectionListResponse struct {
	Inspections []*inspection.Record `json:"inspections"`
	Count       int                  `json:"count"`
}

// MappingListResponse is returned by GET /mappings.
type MappingListResponse struct {
	Rules  []analysis.Rule `json:"rules"`
	Count  int             `json:"count"`
	Active int             `json:"active"`
}

// ReloadResponse is returned by POST /mappings/reload.
type ReloadResponse struct {
	Loaded     int       `json:"loaded"`
	ReloadedAt time.Time `json:"reloaded_at"`
}
