package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/lifescope/internal/domain/profile"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// Opener opens one kind of window in a session
type Opener func(ctx context.Context, s *session.Session, opts ...session.OpenOption) (id.ResourceID, error)

// Handlers contains all HTTP handlers
type Handlers struct {
	manager  *session.Manager
	profiles *profile.Set
	catalog  profile.Catalog
	openers  map[string]Opener
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	logger   *logging.Logger
	started  time.Time
}

// Options configures NewHandlers. Only Manager is required.
type Options struct {
	Manager  *session.Manager
	Profiles *profile.Set
	Catalog  profile.Catalog
	// Openers maps the "kind" field of open-window requests to an opener.
	Openers  map[string]Opener
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(opts Options) *Handlers {
	h := &Handlers{
		manager:  opts.Manager,
		profiles: opts.Profiles,
		catalog:  opts.Catalog,
		openers:  opts.Openers,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		logger:   logging.OrNop(opts.Logger).Named("api"),
		started:  time.Now(),
	}
	if h.profiles == nil {
		h.profiles = profile.Empty()
	}
	if h.openers == nil {
		h.openers = map[string]Opener{}
	}
	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}
	return h
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/sessions", h.ListSessions)
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.CloseSession)
	r.GET("/sessions/:id/children", h.ListChildren)

	r.POST("/sessions/:id/windows", h.OpenWindow)
	r.DELETE("/sessions/:id/windows/:rid", h.CloseWindow)
	r.POST("/sessions/:id/windows/:rid/activate", h.ActivateWindow)
	r.POST("/sessions/:id/windows/:rid/closed", h.WindowClosed)

	r.GET("/resources", h.ListResources)
	r.GET("/profiles", h.ListProfiles)

	r.GET("/metrics", h.Metrics)
	r.GET("/metrics/json", h.MetricsJSON)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "lifescope",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"sessions": h.manager.Stats(),
	})
}

// ListProfiles lists the configured session profiles
func (h *Handlers) ListProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": h.profiles.Names()})
}

// Metrics serves the Prometheus exposition format
func (h *Handlers) Metrics(c *gin.Context) {
	h.metrics.UpdateUptime()
	promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

// MetricsJSON serves a compact JSON summary
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp": time.Now(),
		"metrics":   h.metrics.GetSnapshot(),
		"sessions":  h.manager.Stats(),
	})
}
