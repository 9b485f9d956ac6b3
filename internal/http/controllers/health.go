package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/hellocards/internal/http/helpers"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

// HealthCheck verifica una dependencia (db, redis, keystore).
type HealthCheck func(ctx context.Context) error

type HealthController struct {
	checks  map[string]HealthCheck
	version string
}

func NewHealthController(version string, checks map[string]HealthCheck) *HealthController {
	return &HealthController{checks: checks, version: version}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Healthz maneja GET /healthz
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ready", Version: c.version, Timestamp: time.Now().UTC()}
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if resp.Components == nil {
			resp.Components = make(map[string]string, len(names))
		}
		if err := c.checks[name](ctx); err != nil {
			resp.Status = "unavailable"
			resp.Components[name] = "error: " + err.Error()
			logger.From(ctx).Warn("health check failed", logger.Component(name), logger.Err(err))
			continue
		}
		resp.Components[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
