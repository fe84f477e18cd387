package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"sak/pkg/logger"
)

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

type SystemHandler struct {
	checks    map[string]Check
	logger    logger.Logger
	startTime time.Time
}

func NewSystemHandler(checks map[string]Check, log logger.Logger) *SystemHandler {
	return &SystemHandler{checks: checks, logger: log, startTime: time.Now()}
}

type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
}

// Health handles GET /health. It only reports that the process is serving.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready handles GET /ready: every dependency must answer within two seconds.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	services := make([]ServiceStatus, 0, len(names))
	for _, name := range names {
		start := time.Now()
		err := h.checks[name](ctx)
		latency := time.Since(start).Milliseconds()

		status := "operational"
		if err != nil {
			status = "outage"
			ready = false
			h.logger.Error("Readiness check failed", map[string]interface{}{
				"check": name,
				"error": err.Error(),
			})
		} else if latency > 200 {
			status = "degraded"
		}
		services = append(services, ServiceStatus{Name: name, Status: status, LatencyMs: latency})
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"ready":    ready,
		"services": services,
	})
}
