package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mail-archivist/internal/handler"
	"mail-archivist/pkg/otel"
	"mail-archivist/pkg/trace"
)

type Router struct {
	Engine *gin.Engine
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	Rules    *handler.RuleHandler
	Pipeline *handler.PipelineHandler
	Logs     *handler.LogHandler
	Stats    *handler.StatsHandler
	Settings *handler.SettingsHandler
}

func NewRouter(h Handlers, checks ...ReadinessCheck) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(trace.GinMiddleware())
	r.Use(otel.GinMiddleware())

	// Rule keys are URL-encoded and may contain an escaped slash.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"status": check.Name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/stats", h.Stats.Dashboard)

		api.GET("/rules", h.Rules.List)
		api.POST("/rules", h.Rules.Create)
		api.DELETE("/rules/:key", h.Rules.Delete)

		api.POST("/pipeline", h.Pipeline.Start)
		api.GET("/pipeline/status", h.Pipeline.Status)

		api.GET("/logs", h.Logs.Drain)

		api.GET("/settings", h.Settings.Get)
		api.POST("/settings", h.Settings.Update)

		api.GET("/database/stats", h.Stats.Database)
		api.POST("/database/clear", h.Stats.Clear)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
