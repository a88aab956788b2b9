package api

import (
	"time"

	"github.com/campusgraph/coursesync/pkg/db"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status             string           `json:"status"`
	Version            string           `json:"version"`
	Database           *db.HealthStatus `json:"database,omitempty"`
	WorkerPoolSize     int              `json:"worker_pool_size"`
	SchedulerLastCycle *time.Time       `json:"scheduler_last_cycle,omitempty"`
}

// DebugVarsResponse is returned by GET /debug/vars.
type DebugVarsResponse struct {
	Version           string `json:"version"`
	DBTotalConns      int32  `json:"db_total_conns"`
	DBAcquiredConns   int32  `json:"db_acquired_conns"`
	StreamConnections int    `json:"stream_connections"`
}

// ErrorResponse is the stable error envelope for every admin endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
