package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagehealth/api/handler"
	"github.com/use-agent/pagehealth/api/middleware"
	"github.com/use-agent/pagehealth/artifacts"
	"github.com/use-agent/pagehealth/config"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Runner   handler.Runner
	Stats    handler.StatsProvider
	Store    *artifacts.Store
	Notifier handler.Notifier
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and artifacts are outside auth: health checks and screenshot links in
// reports must work without a key. Background work started for the router
// stops when ctx is done.
func NewRouter(ctx context.Context, d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET(artifacts.URLPrefix+"/:run_id/:filename", handler.Artifact(d.Store))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Stats, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.POST("/run", handler.Run(d.Runner, d.Notifier))

	return r
}
