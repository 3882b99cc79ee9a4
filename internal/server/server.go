// Package server exposes the mission controller over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pablasso/missionctl/internal/control"
	"github.com/pablasso/missionctl/internal/mission"
	"github.com/pablasso/missionctl/internal/plan"
	"github.com/pablasso/missionctl/internal/planner"
	"github.com/pablasso/missionctl/internal/version"
)

// Server serves the HTTP API.
type Server struct {
	ctrl     *mission.Controller
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	baseCtx  context.Context
	started  time.Time

	engine *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves gathered metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithBaseContext sets the context missions and commands run under. Missions
// outlive the request that started them, so a disconnecting client does not
// cancel its mission.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

// New creates a Server.
func New(ctrl *mission.Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:    ctrl,
		logger:  slog.Default(),
		baseCtx: context.Background(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/state", s.handleState)
		v1.GET("/history", s.handleHistory)
		v1.POST("/missions", s.handleStartMission)
		v1.POST("/commands", s.handleCommand)
		v1.POST("/pause", s.handleSignal(s.ctrl.RequestPause))
		v1.POST("/resume", s.handleSignal(s.ctrl.RequestResume))
		v1.POST("/cancel", s.handleSignal(s.ctrl.RequestCancel))
		v1.POST("/replan", s.handleReplan)
	}
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string        `json:"status"`
	State   control.State `json:"state"`
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		State:   s.ctrl.Machine().State(),
		Version: version.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Machine().Snapshot())
}

func (s *Server) handleHistory(c *gin.Context) {
	h := s.ctrl.History()
	c.JSON(http.StatusOK, gin.H{
		"missionId": h.MissionID(),
		"attempts":  h.Attempts(),
	})
}

// StartRequest is the body of POST /v1/missions. Empty fields fall back to
// the configured defaults.
type StartRequest struct {
	mission.Params
	FirstActionID *int `json:"firstActionId,omitempty"`
}

func (s *Server) handleStartMission(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.FirstActionID != nil && *req.FirstActionID < 0 {
		writeError(c, http.StatusBadRequest, errors.New("firstActionId must not be negative"))
		return
	}

	report, err := s.ctrl.RequestStartWith(s.baseCtx, req.Params, req.FirstActionID)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// CommandRequest is the body of POST /v1/commands.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

func (s *Server) handleCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if err := s.ctrl.HandleCommand(s.baseCtx, req.Command); err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, s.ctrl.Machine().Snapshot())
}

func (s *Server) handleSignal(fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			writeError(c, statusFor(err), err)
			return
		}
		c.JSON(http.StatusOK, s.ctrl.Machine().Snapshot())
	}
}

func (s *Server) handleReplan(c *gin.Context) {
	s.ctrl.OnReplanNotification()
	c.JSON(http.StatusAccepted, s.ctrl.Machine().Snapshot())
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, control.ErrBusy), errors.Is(err, control.ErrInvalidTransition),
		errors.Is(err, plan.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, planner.ErrInvalidTemplate), errors.Is(err, mission.ErrUnknownCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
		)
	}
}
