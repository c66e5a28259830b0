// Package shared holds the HTTP server lifecycle common to the portal and the development API.
package shared

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/lms-portal/core"
)

// Server wraps an echo app with the signals needed for a graceful shutdown.
type Server struct {
	App *echo.Echo

	address  string
	errors   chan error
	shutdown chan os.Signal
}

// NewServer returns an echo app configured the way both apps expect: trailing slashes removed,
// request logs unless disabled, and panics recovered outside debug and test modes.
func NewServer(conf *core.Config, address string, disableReqLogs bool) *Server {
	s := &Server{
		App:      echo.New(),
		address:  address,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	s.App.HideBanner = true
	s.App.Debug = conf.Debug
	s.App.Server.ReadTimeout = conf.Server.ReadTimeout
	s.App.Server.WriteTimeout = conf.Server.WriteTimeout

	s.App.Pre(middleware.RemoveTrailingSlash())
	if !disableReqLogs {
		s.App.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.App.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	return s
}

// Start listens until the server is shut down; failures are reported on Errors.
func (s *Server) Start() {
	if err := s.App.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown requests a graceful shutdown, as a SIGTERM would.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.App.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.App.ServeHTTP(w, r)
}

// WantsJSON reports whether the client asked for JSON rather than HTML.
func WantsJSON(ctx echo.Context) bool {
	return strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
