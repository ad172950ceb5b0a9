// Package httpapi serves Telegram webhooks, the Mini App JSON API and the
// diagnostic endpoints on a single net/http server.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/dispatch"
	"tma_demo_bot/internal/logging"
	"tma_demo_bot/internal/metrics"
)

const (
	storePingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
	listenPrefix      = ":"
	maxBodyBytes      = 1 << 20
)

// Dispatcher is the part of the update dispatcher the HTTP layer drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, update *models.Update) (dispatch.Result, error)
	APIPing(ctx context.Context, req dispatch.PingRequest) (dispatch.PingResponse, error)
	LookupUser(ctx context.Context, userID int64) (dispatch.UserView, error)
}

// MetricsSource produces metrics snapshots for /api/metrics and /health.
type MetricsSource interface {
	Snapshot(ctx context.Context) (metrics.Snapshot, error)
	LastSinkFailure() (metrics.SinkFailure, bool)
}

// SessionChecker is the subset of the session store used by health endpoints.
type SessionChecker interface {
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Options wires the server to the rest of the application.
type Options struct {
	Config     config.Config
	Dispatcher Dispatcher
	Metrics    MetricsSource
	Sessions   SessionChecker
	Logger     *logrus.Entry
	Now        func() time.Time
}

// Server owns the HTTP listener and its routes.
type Server struct {
	server     *http.Server
	logger     *logrus.Entry
	cfg        config.Config
	dispatcher Dispatcher
	metrics    MetricsSource
	sessions   SessionChecker
	validate   *validator.Validate
	now        func() time.Time
}

// NewServer constructs the server listening on cfg.HTTPPort. Webhook routes
// are mounted only for the webhook transport.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Logger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	srv := &Server{
		logger:     logger,
		cfg:        opts.Config,
		dispatcher: opts.Dispatcher,
		metrics:    opts.Metrics,
		sessions:   opts.Sessions,
		validate:   validator.New(),
		now:        now,
	}

	mux := http.NewServeMux()
	if opts.Config.Transport != config.TransportPolling {
		mux.HandleFunc("POST /{$}", srv.handleWebhook)
		mux.HandleFunc("POST /telegram-bot", srv.handleWebhook)
	}
	mux.HandleFunc("POST /api/bot/ping", srv.requireInitData(srv.handlePing))
	mux.HandleFunc("GET /api/user/{userId}", srv.requireInitData(srv.handleUser))
	mux.HandleFunc("GET /api/metrics", srv.requireInitData(srv.handleMetrics))
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", srv.handleNotFound)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, opts.Config.HTTPPort),
		Handler:           srv.withRequestID(srv.withCORS(srv.withRecovery(mux))),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler exposes the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
}
