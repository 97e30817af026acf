package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/pool"
)

const healthPingTimeout = 2 * time.Second

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
	Pool    *pool.Stats       `json:"pool,omitempty"`
}

type HealthController struct {
	db      *database.Database
	pool    *pool.Pool
	scans   ScanRunner
	tasks   TaskStatus
	version string
}

func NewHealthController(db *database.Database, p *pool.Pool, version string) *HealthController {
	return &HealthController{
		db:      db,
		pool:    p,
		version: version,
	}
}

// WithBackground adds the scheduler and task queue to the reported checks.
func (h *HealthController) WithBackground(scans ScanRunner, tasks TaskStatus) *HealthController {
	h.scans = scans
	h.tasks = tasks
	return h
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	var stats *pool.Stats
	if h.pool != nil {
		s := h.pool.Stats()
		stats = &s
		if s.InUse >= s.Size {
			checks["pool"] = "saturated"
		} else {
			checks["pool"] = "ok"
		}
	}

	if h.scans != nil {
		checks["scheduler"] = runningLabel(h.scans.IsRunning())
	}
	if h.tasks != nil {
		checks["tasks"] = runningLabel(h.tasks.Running())
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
		Pool:    stats,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
