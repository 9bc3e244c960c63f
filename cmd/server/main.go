package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/team-telnyx/demo-conference-node/internal/config"
	"github.com/team-telnyx/demo-conference-node/internal/handler"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 20 * time.Second

// Server represents the conference webhook server
type Server struct {
	config         *config.ConferenceConfig
	router         *mux.Router
	handlerManager *handler.HandlerManager
	httpServer     *http.Server
}

// NewServer creates a new conference server
func NewServer(ctx context.Context, cfg *config.ConferenceConfig) (*Server, error) {
	router := mux.NewRouter()

	// Initialize handler manager - it will create all services internally
	handlerManager, err := handler.NewHandlerManager(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handler manager: %w", err)
	}

	handlerManager.SetupAllRoutes(router)

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	logger.Base().Info("Starting server",
		zap.String("addr", s.httpServer.Addr),
		zap.String("app", s.config.AppName))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains queued webhook events and the lifecycle sinks.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.httpServer.Shutdown(ctx)
	if httpErr != nil {
		logger.Base().Warn("HTTP server shutdown incomplete", zap.Error(httpErr))
	}
	return errors.Join(httpErr, s.handlerManager.Shutdown(ctx))
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Base().Fatal("Failed to load configuration", zap.Error(err))
	}

	if _, err := logger.Init(cfg.LogEnv); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Base().Fatal("Failed to create server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Base().Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Base().Error("Server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Base().Warn("Graceful shutdown incomplete", zap.Error(err))
	}
	logger.Base().Info("Server stopped")
}
