package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/httputil"
)

// ComponentCheck is one dependency's health probe result.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthStatus is the health endpoint response.
type HealthStatus struct {
	Status      string                    `json:"status"`
	Checks      map[string]ComponentCheck `json:"checks"`
	QueueDepth  int64                     `json:"queue_depth"`
	Connections int                       `json:"connections"`
}

// Health probes every configured dependency. Degraded beats unhealthy: a
// single down dependency marks the whole report unhealthy, a missing one
// only degrades it.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{Status: "healthy", Checks: make(map[string]ComponentCheck)}

	if h.health.DB != nil {
		status.Checks["postgres"] = probe(func() error { return h.health.DB.PingContext(ctx) })
	} else {
		status.Checks["postgres"] = ComponentCheck{Status: "not_configured"}
	}

	if h.health.Redis != nil {
		status.Checks["redis"] = probe(func() error { return h.health.Redis.Ping(ctx).Err() })
	} else {
		status.Checks["redis"] = ComponentCheck{Status: "not_configured"}
	}

	if h.health.Queue != nil {
		depth, err := h.health.Queue.Depth(ctx)
		if err != nil {
			status.Checks["condition_queue"] = ComponentCheck{Status: "down", Message: err.Error()}
		} else {
			status.QueueDepth = depth
			status.Checks["condition_queue"] = ComponentCheck{Status: "up"}
		}
	}

	if h.health.Hub != nil {
		status.Connections = h.health.Hub.ConnectionCount()
	}

	code := http.StatusOK
	for _, check := range status.Checks {
		if check.Status == "down" {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			break
		}
		if check.Status == "not_configured" && status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	httputil.JSON(w, code, status)
}

func probe(ping func() error) ComponentCheck {
	start := time.Now()
	if err := ping(); err != nil {
		return ComponentCheck{Status: "down", Message: err.Error()}
	}
	return ComponentCheck{Status: "up", Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds())}
}
