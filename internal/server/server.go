package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/audiolibrelab/voicechanger/internal/config"
	"github.com/audiolibrelab/voicechanger/internal/effects"
	"github.com/audiolibrelab/voicechanger/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the recording session over HTTP
type Server struct {
	session    *session.Session
	cfg        *config.Config
	advisories *AdvisoryLog
	engine     *gin.Engine
	upgrader   websocket.Upgrader

	// done is cancelled when the server shuts down; hijacked websocket
	// connections are not covered by http.Server.Shutdown
	done   context.Context
	cancel context.CancelFunc
}

// StatusResponse is returned by /status and pushed on /ws
type StatusResponse struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message,omitempty"`
	State         session.State      `json:"state"`
	Advisories    []session.Advisory `json:"advisories"`
	AdvisoryCount uint64             `json:"advisory_count"`
	Profile       string             `json:"profile"`
}

// EffectsResponse is returned by /effects
type EffectsResponse struct {
	Effects []effects.Effect `json:"effects"`
	Default string           `json:"default"`
}

type playRequest struct {
	Effect string `form:"effect" json:"effect" binding:"required"`
}

// New creates a server over sess. gatherer backs the /metrics endpoint and
// may be nil to disable it.
func New(sess *session.Session, cfg *config.Config, advisories *AdvisoryLog, gatherer prometheus.Gatherer) *Server {
	if advisories == nil {
		advisories = NewAdvisoryLog(0)
	}

	done, cancel := context.WithCancel(context.Background())
	s := &Server{
		session:    sess,
		cfg:        cfg,
		advisories: advisories,
		done:       done,
		cancel:     cancel,
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	if allowAll(cfg.Server.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), cors.New(corsConfig))

	engine.GET("/status", s.handleStatus)
	engine.GET("/effects", s.handleEffects)
	engine.GET("/ws", s.handleWebSocket)

	engine.POST("/permission", s.handlePermission)
	record := engine.Group("/record")
	{
		record.POST("/start", s.handleStartRecording)
		record.POST("/stop", s.handleStopRecording)
	}
	engine.POST("/play", s.handlePlay)
	engine.POST("/playback/stop", s.handleStopPlayback)
	engine.POST("/reset", s.handleReset)

	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.engine = engine
	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// tears the session down.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, port, _ := net.SplitHostPort(addr)
		slog.Info("Starting voicechanger control server",
			"addr", addr,
			"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
			"localhost_url", fmt.Sprintf("http://localhost:%s", port))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down control server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.cancel()
		err := srv.Shutdown(shutdownCtx)
		if terr := s.session.Teardown(shutdownCtx); terr != nil {
			slog.Error("Session teardown failed", "error", terr)
		}
		return err
	})

	return g.Wait()
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status(""))
}

func (s *Server) handleEffects(c *gin.Context) {
	catalog := s.session.Catalog()
	c.JSON(http.StatusOK, EffectsResponse{
		Effects: catalog.All(),
		Default: catalog.Default().ID,
	})
}

func (s *Server) handlePermission(c *gin.Context) {
	err := s.session.RequestPermission(c.Request.Context())
	s.respond(c, "request_permission", "Microphone access granted", err)
}

func (s *Server) handleStartRecording(c *gin.Context) {
	err := s.session.StartRecording(c.Request.Context())
	s.respond(c, "start_recording", "Recording started", err)
}

func (s *Server) handleStopRecording(c *gin.Context) {
	err := s.session.StopRecording(c.Request.Context())
	s.respond(c, "stop_recording", "Recording stopped", err)
}

func (s *Server) handlePlay(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBind(&req); err != nil {
		s.sendErrorResponse(c, http.StatusBadRequest, "Missing effect", "operation", "play", "error", err)
		return
	}

	effect, ok := s.session.Catalog().Lookup(req.Effect)
	if !ok {
		s.sendErrorResponse(c, http.StatusNotFound,
			fmt.Sprintf("Unknown effect '%s'", req.Effect), "operation", "play")
		return
	}

	err := s.session.PlayWithEffect(c.Request.Context(), effect)
	s.respond(c, "play", fmt.Sprintf("Playing with %s effect", effect.Name), err)
}

func (s *Server) handleStopPlayback(c *gin.Context) {
	err := s.session.StopPlayback(c.Request.Context())
	s.respond(c, "stop_playback", "Playback stopped", err)
}

func (s *Server) handleReset(c *gin.Context) {
	err := s.session.Reset(c.Request.Context())
	s.respond(c, "reset", "Ready to record", err)
}

// respond writes the session state after an operation, or the mapped error
func (s *Server) respond(c *gin.Context, operation, message string, err error) {
	if err != nil {
		s.sendErrorResponse(c, statusFor(err), err.Error(), "operation", operation)
		return
	}
	c.JSON(http.StatusOK, s.status(message))
}

func (s *Server) status(message string) StatusResponse {
	advisories, count := s.advisories.Recent()
	return StatusResponse{
		Success:       true,
		Message:       message,
		State:         s.session.Snapshot(),
		Advisories:    advisories,
		AdvisoryCount: count,
		Profile:       s.cfg.Profile,
	}
}

// statusFor maps session errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidPhase):
		return http.StatusConflict
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrInvalidEffect):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(c *gin.Context, statusCode int, errorMsg string, logContext ...any) {
	logFields := []any{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Warn("Sending error response to client", logFields...)
	}

	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   errorMsg,
		"state":   s.session.Snapshot(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || allowAll(s.cfg.Server.AllowedOrigins) {
		return true
	}
	return slices.Contains(s.cfg.Server.AllowedOrigins, origin)
}

func allowAll(origins []string) bool {
	return len(origins) == 0 || slices.Contains(origins, "*")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
