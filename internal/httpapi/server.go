// Package httpapi exposes the daemon's health, status, search and metrics
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/dshills/fsindex/internal/indexer"
	"github.com/dshills/fsindex/internal/searcher"
	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

const (
	// ServiceName names the server in traces
	ServiceName = "fsindex"

	// DefaultSearchRate is the sustained number of /search requests per second
	DefaultSearchRate = 20
	// DefaultSearchBurst is the number of /search requests allowed at once
	DefaultSearchBurst = 50

	shutdownTimeout = 5 * time.Second
)

// Engine is the view of the indexer needed by the status endpoint
type Engine interface {
	Index() string
	Roots() []string
	Phase() indexer.Phase
	LastRun() *indexer.RunStats
}

// Schedule is the view of the scheduler needed by the status endpoint
type Schedule interface {
	Interval() time.Duration
	Runs() int64
	NextRun() time.Time
}

// Options wires the server to the running engine. Schedule is nil outside
// daemon mode.
type Options struct {
	Engine   Engine
	Schedule Schedule
	Searcher *searcher.Searcher
	Backend  storage.Backend
	Logger   *slog.Logger

	SearchRate  float64 // Requests per second on /search (default: 20)
	SearchBurst int     // Default: 50
}

// Server serves the HTTP surface
type Server struct {
	opts    Options
	logger  *slog.Logger
	router  *gin.Engine
	limiter *rate.Limiter
}

// New creates a Server with all routes registered
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SearchRate <= 0 {
		opts.SearchRate = DefaultSearchRate
	}
	if opts.SearchBurst <= 0 {
		opts.SearchBurst = DefaultSearchBurst
	}
	s := &Server{
		opts:    opts,
		logger:  opts.Logger,
		limiter: rate.NewLimiter(rate.Limit(opts.SearchRate), opts.SearchBurst),
	}

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(ServiceName), s.requestLogger())
	s.registerRoutes(router)
	s.router = router
	return s
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/search", s.rateLimit(), s.handleSearch)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

// rateLimit rejects requests beyond the configured search rate
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	Index    string            `json:"index"`
	Roots    []string          `json:"roots"`
	State    indexer.Phase     `json:"state"`
	Runs     int64             `json:"runs"`
	Interval string            `json:"interval,omitempty"`
	NextRun  *time.Time        `json:"next_run,omitempty"`
	LastRun  *indexer.RunStats `json:"last_run,omitempty"`
	Backend  *BackendStatus    `json:"backend,omitempty"`
}

// BackendStatus describes the index as seen by the backend
type BackendStatus struct {
	Documents     int64     `json:"documents"`
	Files         int64     `json:"files"`
	Directories   int64     `json:"directories"`
	OldestEpoch   int64     `json:"oldest_epoch"`
	NewestEpoch   int64     `json:"newest_epoch"`
	QueryLog      bool      `json:"query_log"`
	RefreshedAt   time.Time `json:"refreshed_at"`
	DatabaseBytes int64     `json:"database_bytes"`
}

func (s *Server) handleStatus(c *gin.Context) {
	engine := s.opts.Engine
	resp := StatusResponse{
		Index:   engine.Index(),
		Roots:   engine.Roots(),
		State:   engine.Phase(),
		LastRun: engine.LastRun(),
	}

	if sched := s.opts.Schedule; sched != nil {
		resp.Runs = sched.Runs()
		resp.Interval = sched.Interval().String()
		if next := sched.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}

	st, err := s.opts.Backend.Status(c.Request.Context(), engine.Index())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// Index not created yet
	case err != nil:
		s.logger.Warn("failed to read backend status", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	default:
		resp.Backend = &BackendStatus{
			Documents:     st.Documents,
			Files:         st.Files,
			Directories:   st.Directories,
			OldestEpoch:   st.OldestEpoch,
			NewestEpoch:   st.NewestEpoch,
			QueryLog:      st.QueryLog,
			RefreshedAt:   st.RefreshedAt,
			DatabaseBytes: st.DatabaseBytes,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c *gin.Context) {
	req := searcher.Request{
		Term:       c.Query("q"),
		PathPrefix: c.Query("path"),
	}

	var err error
	if req.Limit, err = intQuery(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Offset, err = intQuery(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if v := c.Query("fulltext"); v != "" {
		if req.Fulltext, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fulltext must be a boolean"})
			return
		}
	}

	resp, err := s.opts.Searcher.Search(c.Request.Context(), req)
	switch {
	case errors.Is(err, types.ErrEmptyTerm), errors.Is(err, types.ErrInvalidLimit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, types.ErrBackendUnavailable), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// intQuery parses an optional integer query parameter, 0 when absent
func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
