// Package health reports the coordinator's own operational readiness:
// the Postgres order store, the optional Redis response cache, and how
// many operators the presence registry currently holds a live socket
// for. It replaces a generic pluggable health-checker with checks tied
// directly to this service's dependencies.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pickflow/separation/internal/presence"
	"github.com/pickflow/separation/pkg/database"
	"github.com/pickflow/separation/pkg/observability"
)

// Status is the coarse health verdict for one component or the service
// as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker holds the live handles it reports on. redis may be nil if the
// optional cache connection never came up at startup.
type Checker struct {
	db        *database.DB
	redis     *database.RedisClient
	registry  *presence.Registry
	logger    *observability.Logger
	service   string
	version   string
	startTime time.Time
}

// NewChecker constructs a health checker over the coordinator's store,
// cache, and presence registry.
func NewChecker(db *database.DB, redis *database.RedisClient, registry *presence.Registry, logger *observability.Logger, service, version string) *Checker {
	return &Checker{
		db:        db,
		redis:     redis,
		registry:  registry,
		logger:    logger,
		service:   service,
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterRoutes mounts the health endpoints on router, unauthenticated.
func (c *Checker) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", c.Handle).Methods(http.MethodGet)
	router.HandleFunc("/health/live", c.Live).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", c.Ready).Methods(http.MethodGet)
}

// componentReport is one dependency's check result.
type componentReport struct {
	Status   Status `json:"status"`
	Enabled  bool   `json:"enabled"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// report is the full /health response shape.
type report struct {
	Status             Status               `json:"status"`
	Service            string               `json:"service"`
	Version            string               `json:"version"`
	Uptime             string               `json:"uptime"`
	Timestamp          time.Time            `json:"timestamp"`
	Database           componentReport      `json:"database"`
	Cache              componentReport      `json:"cache"`
	Pool               database.PoolMetrics `json:"pool"`
	ConnectedOperators int                  `json:"connected_operators"`
}

func (c *Checker) checkDatabase(ctx context.Context) componentReport {
	start := time.Now()
	if err := c.db.Health(ctx); err != nil {
		return componentReport{Status: StatusUnhealthy, Enabled: true, Error: err.Error(), Duration: time.Since(start).String()}
	}
	return componentReport{Status: StatusHealthy, Enabled: true, Duration: time.Since(start).String()}
}

// checkCache never fails the overall readiness verdict: the coordinator
// was designed to run without the cache (spec allows best-effort Redis),
// so a dead or absent cache is reported as degraded, not unhealthy.
func (c *Checker) checkCache(ctx context.Context) componentReport {
	if c.redis == nil {
		return componentReport{Status: StatusDegraded, Enabled: false}
	}
	start := time.Now()
	if err := c.redis.Health(ctx); err != nil {
		return componentReport{Status: StatusDegraded, Enabled: true, Error: err.Error(), Duration: time.Since(start).String()}
	}
	return componentReport{Status: StatusHealthy, Enabled: true, Duration: time.Since(start).String()}
}

func (c *Checker) build(ctx context.Context) report {
	db := c.checkDatabase(ctx)
	cache := c.checkCache(ctx)

	overall := StatusHealthy
	switch {
	case db.Status == StatusUnhealthy:
		overall = StatusUnhealthy
	case cache.Status != StatusHealthy:
		overall = StatusDegraded
	}

	return report{
		Status:             overall,
		Service:            c.service,
		Version:            c.version,
		Uptime:             time.Since(c.startTime).String(),
		Timestamp:          time.Now(),
		Database:           db,
		Cache:              cache,
		Pool:               c.db.PoolStats(),
		ConnectedOperators: c.registry.Count(),
	}
}

// Handle serves the full dependency report.
func (c *Checker) Handle(w http.ResponseWriter, r *http.Request) {
	rep := c.build(r.Context())

	statusCode := http.StatusOK
	if rep.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, rep)

	c.logger.Info(r.Context(), "health check performed", map[string]interface{}{
		"status":              rep.Status,
		"connected_operators": rep.ConnectedOperators,
	})
}

// Live answers the liveness probe: the process is scheduling requests
// at all, independent of its dependencies.
func (c *Checker) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "alive",
		"service": c.service,
	})
}

// Ready answers the readiness probe: only the database can take the
// coordinator out of rotation, since every mutation goes through it.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	rep := c.build(r.Context())
	ready := rep.Status != StatusUnhealthy

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":              rep.Status,
		"ready":               ready,
		"connected_operators": rep.ConnectedOperators,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
