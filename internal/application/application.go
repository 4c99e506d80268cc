package application

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/ariel/internal/api"
	"github.com/eugenenazirov/ariel/internal/config"
	"github.com/eugenenazirov/ariel/internal/storage"
)

var signalNotify = signal.Notify

// App encapsulates the application dependencies and HTTP server.
type App struct {
	store   *storage.ConfigStore
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New opens the configured store and wires the /ariel HTTP surface around it.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.Open(cfg.DataFile, storage.WithLogger(logger))
	logger.Info("config store loaded",
		zap.String("path", store.Path()),
		zap.Strings("environments", store.ListEnvironments()),
	)

	handler := api.NewHandler(store)
	router := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		store:   store,
		handler: handler,
		router:  router,
		logger:  logger,
		server:  NewServer(cfg, router),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              listenAddr(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

func listenAddr(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	Serve(a.server, a.logger)
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Serve runs server.ListenAndServe in a goroutine. A listen failure is fatal.
func Serve(server *http.Server, logger *zap.Logger) {
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
}

// AwaitShutdown blocks until SIGINT or SIGTERM, then shuts server down within timeout,
// closing it forcibly if graceful shutdown fails.
func AwaitShutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
