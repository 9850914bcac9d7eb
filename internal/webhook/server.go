// Package webhook serves the connector's pull endpoints to the catalog.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bit-broker/examples/pkg/entity"
)

const requestIDHeader = "X-Request-ID"

// Config describes the connector the webhook answers for.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr        string
	Name        string
	EntityType  string
	ConnectorID string
	// ShutdownTimeout bounds graceful shutdown (default: 5s).
	ShutdownTimeout time.Duration
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReadyHook registers a callback run once the listener is bound.
func WithReadyHook(fn func(addr string)) Option {
	return func(s *Server) { s.ready = append(s.ready, fn) }
}

// Server routes catalog pull requests to a Lookup.
type Server struct {
	cfg    Config
	lookup Lookup
	logger *slog.Logger
	engine *gin.Engine
	ready  []func(addr string)
	now    func() time.Time
}

// New builds the router. Handlers only read through lookup.
func New(cfg Config, lookup Lookup, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{cfg: cfg, lookup: lookup, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "webhook")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(s.requestID, s.accessLog, gin.CustomRecovery(s.panicked), cors)

	r.GET("/", s.announce)
	r.GET("/entity/:type/:id", s.entity)
	r.GET("/timeseries/:type/:id/:series", s.timeseries)
	r.HEAD("/", s.announce)
	r.HEAD("/entity/:type/:id", s.entity)
	r.HEAD("/timeseries/:type/:id/:series", s.timeseries)
	r.NoRoute(func(c *gin.Context) { status(c, http.StatusNotFound) })
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webhook listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	addr := ln.Addr().String()
	s.logger.Info("webhook is listening", "addr", addr, "entity", s.cfg.EntityType)
	for _, fn := range s.ready {
		fn(addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down webhook")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook forced to shutdown: %w", err)
	}
	return nil
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) announce(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        s.cfg.Name,
		"entity":      s.cfg.EntityType,
		"connectorId": s.cfg.ConnectorID,
		"now":         s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) entity(c *gin.Context) {
	entityType, id := c.Param("type"), c.Param("id")
	s.logger.Debug("heard entity request", "type", entityType, "id", id)

	rec, err := s.lookup.LookupEntity(c.Request.Context(), entityType, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			status(c, http.StatusNotFound)
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) timeseries(c *gin.Context) {
	entityType, id, series := c.Param("type"), c.Param("id"), c.Param("series")
	w, err := parseWindow(c)
	if err != nil {
		s.logger.Debug("bad timeseries query", "error", err, "query", c.Request.URL.RawQuery)
		status(c, http.StatusBadRequest)
		return
	}
	s.logger.Debug("heard timeseries request", "type", entityType, "id", id, "series", series,
		"start", c.Query("start"), "end", c.Query("end"), "limit", c.Query("limit"))

	points, err := s.lookup.LookupTimeseries(c.Request.Context(), entityType, id, series, w)
	if err != nil {
		s.fail(c, err)
		return
	}
	if points == nil {
		points = []entity.Point{}
	}
	c.JSON(http.StatusOK, points)
}

func parseWindow(c *gin.Context) (entity.Window, error) {
	var w entity.Window
	var err error
	if w.Start, err = entity.ParseTime(c.Query("start")); err != nil {
		return w, fmt.Errorf("start: %w", err)
	}
	if w.End, err = entity.ParseTime(c.Query("end")); err != nil {
		return w, fmt.Errorf("end: %w", err)
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return w, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		w.Limit = n
	}
	return w, nil
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Error("webhook handler failed", "path", c.Request.URL.Path,
		"request_id", c.GetString(requestIDHeader), "error", err)
	status(c, http.StatusInternalServerError)
}

func (s *Server) panicked(c *gin.Context, err any) {
	s.logger.Error("webhook handler panic", "path", c.Request.URL.Path,
		"request_id", c.GetString(requestIDHeader), "panic", err)
	status(c, http.StatusInternalServerError)
	c.Abort()
}

// status writes the plain text "<code>: <reason>" body the catalog expects.
func status(c *gin.Context, code int) {
	c.String(code, "%d: %s", code, http.StatusText(code))
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDHeader, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info("webhook request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
		"request_id", c.GetString(requestIDHeader))
}

func cors(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	if c.Request.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", "GET,HEAD,OPTIONS")
		if req := c.GetHeader("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
		}
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
