// Package server exposes the widget callbacks and the host state over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/factpane/internal/host"
	"github.com/ppiankov/factpane/internal/logging"
	"github.com/ppiankov/factpane/internal/timeline"
)

// Callbacks answers the widget callbacks. *timeline.Provider implements it.
type Callbacks interface {
	Placeholder(hctx timeline.Context, now time.Time) timeline.Entry
	Snapshot(ctx context.Context, hctx timeline.Context, now time.Time) (timeline.Entry, error)
	Timeline(ctx context.Context, hctx timeline.Context, now time.Time) (timeline.Timeline, error)
}

// Display is the running host loop. *host.Host implements it.
type Display interface {
	Current() (timeline.Entry, bool)
	Status() host.Status
	Trigger(origin string)
}

// Options configures a Server. Provider is required.
type Options struct {
	Provider      Callbacks
	Host          Display // nil disables /v1/entry and /v1/reload
	Configuration timeline.Configuration
	Gatherer      prometheus.Gatherer // nil uses the default registry
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Server is the HTTP surface.
type Server struct {
	e    *echo.Echo
	opts Options
}

type currentResponse struct {
	timeline.Entry
	Status host.Status `json:"status"`
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}

	s := &Server{e: e, opts: opts}
	logger := opts.Logger

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				logger.Debug("request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				logger.Warn("request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")
	v1.GET("/placeholder", s.handlePlaceholder)
	v1.GET("/snapshot", s.handleSnapshot)
	v1.GET("/timeline", s.handleTimeline)
	v1.GET("/entry", s.handleEntry)
	v1.POST("/reload", s.handleReload)

	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.opts.Logger.Info("http server listening", "addr", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) hostContext(c echo.Context) (timeline.Context, error) {
	hctx := timeline.Context{Configuration: s.opts.Configuration}
	if raw := c.QueryParam("preview"); raw != "" {
		preview, err := strconv.ParseBool(raw)
		if err != nil {
			return hctx, echo.NewHTTPError(http.StatusBadRequest, "preview must be a boolean")
		}
		hctx.IsPreview = preview
	}
	return hctx, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlaceholder(c echo.Context) error {
	hctx, err := s.hostContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.opts.Provider.Placeholder(hctx, s.opts.Clock()))
}

func (s *Server) handleSnapshot(c echo.Context) error {
	hctx, err := s.hostContext(c)
	if err != nil {
		return err
	}
	entry, err := s.opts.Provider.Snapshot(c.Request().Context(), hctx, s.opts.Clock())
	if err != nil {
		return cancelled(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) handleTimeline(c echo.Context) error {
	hctx, err := s.hostContext(c)
	if err != nil {
		return err
	}
	tl, err := s.opts.Provider.Timeline(c.Request().Context(), hctx, s.opts.Clock())
	if err != nil {
		return cancelled(err)
	}
	return c.JSON(http.StatusOK, tl)
}

func (s *Server) handleEntry(c echo.Context) error {
	if s.opts.Host == nil {
		return echo.NewHTTPError(http.StatusNotFound, "host loop is not running")
	}
	entry, ok := s.opts.Host.Current()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, currentResponse{Entry: entry, Status: s.opts.Host.Status()})
}

func (s *Server) handleReload(c echo.Context) error {
	if s.opts.Host == nil {
		return echo.NewHTTPError(http.StatusNotFound, "host loop is not running")
	}
	s.opts.Host.Trigger(host.OriginHTTP)
	return c.JSON(http.StatusAccepted, map[string]string{"status": "reload scheduled"})
}

// cancelled maps an abandoned callback to 503. Callbacks only fail when the
// request context ends.
func cancelled(err error) error {
	return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled").SetInternal(err)
}
