// Package api exposes a read-only HTTP surface over the running trading core:
// health, engine status, open positions, pending orders, last analysis results,
// and cache statistics. All state-changing activity stays inside the engine;
// the API only reports.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/candlecache"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/engine"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/internal/monitor"
	"github.com/DevStudio-infra/the-trade-tracker-sub002/pkg/db"
)

// Server wires HTTP endpoints around the engine.
type Server struct {
	Router    *gin.Engine
	Engine    *engine.Engine
	Cache     *candlecache.Cache
	DB        *db.Database
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	Broker     string
	Symbols    []string
	Timeframes []string
	Version    string
	StartedAt  string
}

// NewServer builds the router and registers all routes. An empty jwtSecret
// leaves the /api group unauthenticated, which is only acceptable behind a
// private listener.
func NewServer(eng *engine.Engine, cache *candlecache.Cache, database *db.Database, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Engine:    eng,
		Cache:     cache,
		DB:        database,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	if s.JWTSecret != "" {
		api.Use(AuthMiddleware(s.JWTSecret))
	}
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
		api.GET("/orders", s.getOrders)
		api.GET("/analysis", s.getAnalysis)
		api.GET("/cache/stats", s.getCacheStats)
		api.GET("/trades", s.getTrades)
		api.GET("/metrics", s.getMetrics)
	}
}
