// Package httptransport exposes the sync pipeline over HTTP.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sestoltzf/strava-integration-at/internal/logging"
	"github.com/sestoltzf/strava-integration-at/internal/service"
)

const requestIDHeader = "X-Request-ID"

// Pipeline is the part of the sync service the HTTP surface drives
type Pipeline interface {
	BeginAuthorization(ctx context.Context) (string, error)
	CompleteAuthorization(ctx context.Context, code, state string) (*service.AuthorizationResult, error)
	ScheduledRefresh(ctx context.Context) (*service.RefreshResult, error)
}

// RouterConfig holds what the router needs besides the pipeline
type RouterConfig struct {
	// LandingURL is where the browser goes after a successful
	// authorization. Empty means respond with the JSON summary.
	LandingURL string

	// SchedulerHeader and SchedulerValue identify scheduled invocations
	SchedulerHeader string
	SchedulerValue  string

	AllowedOrigins []string
}

// NewRouter builds the gin engine serving the authorization callback, the
// scheduled trigger, health and metrics.
func NewRouter(cfg RouterConfig, pipeline Pipeline, logger logging.Logger) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), requestID(), accessLog(logger))

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length", requestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	h := &handler{
		pipeline:        pipeline,
		logger:          logger,
		landingURL:      cfg.LandingURL,
		schedulerHeader: cfg.SchedulerHeader,
		schedulerValue:  cfg.SchedulerValue,
	}

	router.GET("/", h.authorize)
	router.POST("/", h.scheduled)
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})

	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Query strings are left out, they carry authorization codes
		logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		)
	}
}
