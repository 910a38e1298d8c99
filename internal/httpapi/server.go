// Package httpapi exposes the registry over REST and a websocket push
// channel. The API layer holds no state of its own: every response is a
// point-in-time copy obtained from the registry.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/config"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
	"github.com/randomizedcoder/go-hls-streamwatch/internal/registry"
)

// Server is the HTTP front of the monitor.
type Server struct {
	reg    *registry.Registry
	logger *slog.Logger
	server *http.Server
}

// NewServer builds the router and wraps it in an http.Server.
func NewServer(cfg *config.Config, reg *registry.Registry, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		reg:    reg,
		logger: logger,
	}

	api := router.Group("/api")
	api.Use(rateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	{
		api.GET("/streams", s.listStreams)
		api.POST("/streams", s.createStream)
		api.GET("/streams/:id", s.getStream)
		api.DELETE("/streams/:id", s.deleteStream)
		api.GET("/streams/:id/metrics/history", s.getHistory)
		api.GET("/streams/:id/timeline", s.getTimeline)

		api.GET("/incidents", s.listIncidents)
		api.GET("/incidents/:id", s.getIncident)
		api.POST("/incidents/:id/acknowledge", s.acknowledgeIncident)
	}

	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start starts the server in a goroutine. Returns immediately; use
// Shutdown to stop.
func (s *Server) Start() {
	s.logger.Info("http_server_starting", "addr", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http_server_error", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("http_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// --- stream handlers ---

func (s *Server) listStreams(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.ListStreams())
}

func (s *Server) createStream(c *gin.Context) {
	name := c.Query("name")
	manifestURL := c.Query("manifest_url")
	if name == "" {
		name = manifestURL
	}

	stream, err := s.reg.AddStream(c.Request.Context(), name, manifestURL)
	if err != nil {
		var verr config.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, registry.ErrDuplicateStream):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, stream)
}

func (s *Server) getStream(c *gin.Context) {
	detail, err := s.reg.GetStream(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) deleteStream(c *gin.Context) {
	if err := s.reg.RemoveStream(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "stream_id": c.Param("id")})
}

func (s *Server) getHistory(c *gin.Context) {
	minutes, err := strconv.Atoi(c.DefaultQuery("minutes", "30"))
	if err != nil || minutes < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
		return
	}

	payload, err := s.reg.GetHistory(c.Param("id"), minutes)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) getTimeline(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	events, err := s.reg.GetTimeline(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	if events == nil {
		events = []model.TimelineEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// --- incident handlers ---

func (s *Server) listIncidents(c *gin.Context) {
	activeOnly := c.DefaultQuery("active_only", "true") == "true"
	streamID := c.Query("stream_id")
	c.JSON(http.StatusOK, s.reg.ListIncidents(streamID, activeOnly))
}

func (s *Server) getIncident(c *gin.Context) {
	inc, ok := s.reg.GetIncident(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (s *Server) acknowledgeIncident(c *gin.Context) {
	inc, ok := s.reg.AcknowledgeIncident(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found or not active"})
		return
	}
	c.JSON(http.StatusOK, inc)
}

// --- process health ---

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.HealthCheck())
}

// requestLogger logs completed requests at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
