package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/callagent/adapters/llm"
	"github.com/satriahrh/arunika/callagent/internal/api"
	"github.com/satriahrh/arunika/callagent/internal/config"
	"github.com/satriahrh/arunika/callagent/internal/logging"
	"github.com/satriahrh/arunika/callagent/internal/websocket"
	"github.com/satriahrh/arunika/callagent/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)

	// Middleware
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Recover())

	// Initialize adapters
	completion, err := llm.New(ctx, cfg.LLM(), logger)
	if err != nil {
		logger.Fatal("Failed to create completion client", zap.Error(err))
	}

	// Initialize usecase services
	builder := usecase.NewInstructionBuilder(cfg.BuilderConfig())
	callFlow := usecase.NewCallFlowService(completion, builder, cfg.CallPrompts(), logger)

	var ws *api.WebsocketOptions
	if cfg.WS.Enabled {
		hub := websocket.NewHub(callFlow, builder.Config().ActionHook, logger)
		go hub.Run(ctx)

		ws = &api.WebsocketOptions{
			Hub:       hub,
			Path:      cfg.WS.Path,
			JWTSecret: []byte(cfg.WS.JWTSecret),
		}
	}

	// Initialize API routes
	api.InitRoutes(e, api.NewWebhookHandler(callFlow, cfg.Response.Format, builder.Config().ActionHook, logger), ws, logger)

	go func() {
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server listening",
		zap.Int("port", cfg.HTTP.Port),
		zap.String("provider", cfg.Completion.Provider),
		zap.Bool("websocket", cfg.WS.Enabled))

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
