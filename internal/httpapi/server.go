// Package httpapi is the HTTP ingress for postd.
//
// It decodes and validates POST /posts bodies, hands each valid request to
// the write coordinator, and maps the outcome onto a status code. The server
// owns no database state; every write goes through the coordinator.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/postd/internal/store"
	"github.com/roach88/postd/internal/validate"
	"github.com/roach88/postd/internal/writer"
)

// DefaultRequestTimeout bounds how long a request waits for its write.
const DefaultRequestTimeout = 30 * time.Second

// maxBodySize caps request bodies; larger ones get 413.
const maxBodySize = "1M"

// Writer is the part of writer.Coordinator the ingress needs.
type Writer interface {
	Submit(requestID string, np store.NewPost) *writer.Future
	Stats() writer.Stats
}

// Server serves the postd HTTP API.
type Server struct {
	echo           *echo.Echo
	http           *http.Server
	writer         Writer
	validator      *validate.Validator
	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithRequestTimeout sets how long a request waits for the coordinator.
// When it elapses the client gets 503; the write itself still completes.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// New builds a Server that submits writes to w.
func New(w Writer, v *validate.Validator, opts ...Option) *Server {
	s := &Server{
		writer:         w,
		validator:      v,
		requestTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:     true,
		LogURI:        true,
		LogStatus:     true,
		LogLatency:    true,
		LogRequestID:  true,
		LogError:      true,
		HandleError:   true,
		LogValuesFunc: logRequest,
	}))
	e.Use(middleware.BodyLimit(maxBodySize))

	e.POST("/posts", s.createPost)
	e.GET("/healthz", s.health)

	s.echo = e
	s.http = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on l until Shutdown is called. A unix socket
// listener is the normal case. Returns nil after a clean shutdown.
func (s *Server) Serve(l net.Listener) error {
	slog.Info("http server listening", "network", l.Addr().Network(), "addr", l.Addr().String())

	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func logRequest(c echo.Context, v middleware.RequestLoggerValues) error {
	attrs := []slog.Attr{
		slog.String("request_id", v.RequestID),
		slog.String("method", v.Method),
		slog.String("uri", v.URI),
		slog.Int("status", v.Status),
		slog.Duration("latency", v.Latency),
	}

	level := slog.LevelDebug
	if v.Error != nil {
		attrs = append(attrs, slog.String("error", v.Error.Error()))
	}
	if v.Status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}

	slog.LogAttrs(c.Request().Context(), level, "http request", attrs...)
	return nil
}
