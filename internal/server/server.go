// Package server provides the HTTP server for cubechat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/chat"
	"github.com/datales/cubechat/internal/config"
	"github.com/datales/cubechat/internal/metrics"
	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/session"
)

// Server represents the cubechat HTTP server.
type Server struct {
	cfg      *config.Config
	catalog  *schema.Manager
	chat     *chat.Router
	sessions session.Store
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	metrics  *metrics.Metrics
}

// New creates a new HTTP server.
func New(cfg *config.Config, catalog *schema.Manager, chatRouter *chat.Router, sessions session.Store, logger *zap.Logger) *Server {
	// Set Gin mode based on log level
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		chat:     chatRouter,
		sessions: sessions,
		logger:   logger,
		router:   router,
		metrics:  metrics.Default(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.securityHeadersMiddleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.corsMiddleware())

	s.router.Use(s.rateLimitMiddleware(s.cfg.Security.RateLimitRPS))
	s.router.Use(s.authMiddleware(s.cfg.Security.APIKey, []string{
		"/health",
		"/ready",
		"/metrics",
	}))

	s.router.Use(s.timeoutMiddleware())
}

// loggingMiddleware logs requests and records metrics.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		if s.metrics != nil {
			s.metrics.HTTPRequestsInFlight.Inc()
			defer s.metrics.HTTPRequestsInFlight.Dec()
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(method, path, status, latency.Seconds())
		}
	}
}

// corsMiddleware handles CORS.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, o := range s.cfg.Server.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// timeoutMiddleware adds request timeout.
func (s *Server) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Server.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	// Metrics endpoint (Prometheus)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := s.router.Group("/v1")
	{
		v1.POST("/chat", s.handleChat)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:id", s.getSession)
			sessions.DELETE("/:id", s.deleteSession)
		}

		cubes := v1.Group("/cubes")
		{
			cubes.GET("", s.listCubes)
			cubes.GET("/:name", s.getCube)
		}

		v1.GET("/stats", s.getStats)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", addr))

	if s.cfg.Security.EnableTLS {
		return s.server.ListenAndServeTLS(
			s.cfg.Security.TLSCertPath,
			s.cfg.Security.TLSKeyPath,
		)
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router returns the Gin router (for testing).
func (s *Server) Router() *gin.Engine {
	return s.router
}
