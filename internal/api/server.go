/**
 * HTTP Boundary for PharmaScan
 *
 * Thin gin layer over the scan pipeline, the scan history repository and
 * the dictionary lookup. It parses requests and shapes responses; every
 * decision about a scan is made by the processor.
 */

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/pharmascan/internal/dictionary"
	"github.com/adverant/nexus/pharmascan/internal/logging"
	"github.com/adverant/nexus/pharmascan/internal/processor"
	"github.com/adverant/nexus/pharmascan/internal/storage"
	"github.com/gin-gonic/gin"
)

// ServerConfig holds server dependencies
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
	Processor      processor.ScanProcessorInterface
	Repository     storage.Repository
	Dictionary     *dictionary.Store
	Logger         *logging.Logger
	// Release switches gin out of debug mode
	Release bool
}

// Server is the HTTP API
type Server struct {
	config *ServerConfig
	router *gin.Engine
	http   *http.Server
	logger *logging.Logger
}

// NewServer builds the router and registers every route
func NewServer(cfg *ServerConfig) *Server {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		config: cfg,
		router: router,
		logger: logger,
	}

	router.GET("/healthcheck", s.health)

	api := router.Group("/api")
	NewScanHandler(cfg.Processor, cfg.MaxUploadBytes, logger).RegisterRoutes(api.Group("/scan"))
	NewHistoryHandler(cfg.Repository).RegisterRoutes(api.Group("/history"))
	NewLookupHandler(cfg.Dictionary).RegisterRoutes(api.Group("/lookup"))

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.config.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	status := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.config.Dictionary != nil {
		status["dictionary"] = gin.H{
			"ready":   s.config.Dictionary.Ready(),
			"entries": s.config.Dictionary.Size(),
		}
	}
	c.JSON(http.StatusOK, status)
}

// requestLogger logs one line per request through the service logger
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("Request failed", kv...)
		case c.Writer.Status() >= 400:
			log.Warn("Request rejected", kv...)
		default:
			log.Debug("Request served", kv...)
		}
	}
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
