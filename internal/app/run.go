package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"crm-tag-proxy/internal/common/logging"
	"crm-tag-proxy/internal/config"
	"crm-tag-proxy/internal/server"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logging
	logging.InitGlobalLogger()
	defer logging.MustSync()

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	logging.Info("Starting CRM tag proxy",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "api_domain", Value: cfg.APIDomain})

	// Initialize application
	application, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer application.Cleanup()

	// Set up routes and start the server
	router := mux.NewRouter()
	SetupRoutes(router, application.Handlers, cfg.JWTSecret)

	srv := server.New(router, cfg.Port)

	fatal := make(chan error, 1)
	srv.Start(func(err error) {
		logging.Error("Server failed", err)
		fatal <- err
	})

	// Wait for interrupt signal or fatal server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-fatal:
		return err
	case <-quit:
	}

	logging.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
