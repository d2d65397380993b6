// ABOUTME: HTTP status server for the visualizer
// ABOUTME: Serves /healthz, /api/v1/status and Prometheus /metrics with echo
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Status is the JSON body of /api/v1/status
type Status struct {
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	State      string        `json:"state"`
	Running    bool          `json:"running"`
	Format     string        `json:"format"`
	Server     string        `json:"server"`
	Transports []string      `json:"transports"`
	Color      string        `json:"color"`
	Brightness int           `json:"brightness"`
	Uptime     time.Duration `json:"uptime_ns"`
	Capture    CaptureStatus `json:"capture"`
	Sink       SinkStatus    `json:"sink"`
}

// CaptureStatus mirrors the engine counters
type CaptureStatus struct {
	BuffersFilled uint64   `json:"buffers_filled"`
	EmptyBuffers  uint64   `json:"empty_buffers"`
	Colors        uint64   `json:"colors"`
	FormatErrors  uint64   `json:"format_errors"`
	RearmFailures uint64   `json:"rearm_failures"`
	SlotFills     []uint64 `json:"slot_fills"`
}

// SinkStatus mirrors the delivery counters
type SinkStatus struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Config holds server configuration
type Config struct {
	Address string
	// Status is called per request
	Status  func() Status
	Metrics http.Handler
	Logger  zerolog.Logger
}

// Server wraps an echo instance
type Server struct {
	Echo     *echo.Echo
	config   Config
	log      zerolog.Logger
	listener net.Listener
	done     chan error
}

// New builds the server and its routes without listening
func New(config Config) (*Server, error) {
	if config.Status == nil {
		return nil, fmt.Errorf("status func is required")
	}

	s := &Server{
		Echo:   echo.New(),
		config: config,
		log:    config.Logger.With().Str("component", "http").Logger(),
		done:   make(chan error, 1),
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().
				Str("remote", v.RemoteIP).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.Echo.GET("/healthz", s.handleHealth)
	s.Echo.GET("/api/v1/status", s.handleStatus)
	if config.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(config.Metrics))
	}

	return s, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	st := s.config.Status()
	if !st.Running {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": st.State})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.config.Status())
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = ln
	s.Echo.Listener = ln

	s.log.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")

	go func() {
		err := s.Echo.Start("")
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	if err := s.Echo.Shutdown(ctx); err != nil {
		return err
	}
	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
