// Package api exposes a read-mostly HTTP view of a machine: health,
// Prometheus metrics, controller state and task history.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randomizedcoder/go-docker-machine/internal/controller"
	"github.com/randomizedcoder/go-docker-machine/internal/store"
	"github.com/randomizedcoder/go-docker-machine/internal/stream"
	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 30 * time.Second
)

// Machine is the controller surface the API reads. *machine.Machine and
// *controller.Controller implement it.
type Machine interface {
	Name() string
	Snapshot() controller.Snapshot
	Env() map[string]string
	Records() []task.Record
	Pending() []task.Record
	Current() (task.Record, bool)
	Errors() error
	ClearErrors()
	Logs() string
	Stdout() *stream.Queue
	Stderr() *stream.Queue
}

// Config holds configuration for creating a Server.
type Config struct {
	Addr    string
	Machine Machine

	// History, when set, serves /v1/machine/history from the database
	// instead of the in-memory records.
	History store.Store

	// Gatherer backs /metrics; Registerer receives the HTTP request
	// metrics. Both default to the Prometheus default registry.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// Server provides the HTTP API.
type Server struct {
	router  *chi.Mux
	machine Machine
	history store.Store
	logger  *slog.Logger
	metrics *httpMetrics

	mu     sync.Mutex
	addr   string
	server *http.Server
}

// NewServer creates and configures a new HTTP server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	s := &Server{
		router:  chi.NewRouter(),
		machine: cfg.Machine,
		history: cfg.History,
		logger:  logger,
		metrics: newHTTPMetrics(registerer),
		addr:    cfg.Addr,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metrics.middleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	s.routes(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metrics)

	s.router.Route("/v1/machine", func(r chi.Router) {
		r.Get("/", s.handleMachine)
		r.Get("/env", s.handleEnv)
		r.Get("/history", s.handleHistory)
		r.Get("/errors", s.handleErrors)
		r.Post("/errors/clear", s.handleClearErrors)
		r.Get("/logs", s.handleLogs)
		r.Get("/queue", s.handleQueue)
	})
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start listens on the configured address and serves in a goroutine.
// Returns once the listener is open. Use Shutdown to stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("api_server_starting", "addr", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api_server_error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server. No-op if never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Debug("api_server_shutting_down")
	return srv.Shutdown(ctx)
}

// Run starts the server and shuts it down when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Addr returns the listen address; after Start it is the bound address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("api_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
