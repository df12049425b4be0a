package main

import (
	"context"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"taskhub/internal/audit"
	"taskhub/internal/handler"
	"taskhub/internal/middleware"
	"taskhub/internal/quota"
	"taskhub/internal/sweep"
	"taskhub/pkg/config"
	"taskhub/pkg/database"
	"taskhub/pkg/jwtutil"
	"taskhub/pkg/logger"
	"taskhub/pkg/validate"
	"taskhub/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting taskhub...", zap.String("environment", cfg.Server.Env))

	// Open the storage handle; it is injected everywhere and closed at
	// shutdown, never referenced as ambient state.
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()
	log.Info("Database connection established")

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	if cfg.Sweep.RunOnStart {
		if _, err := sweep.New(db, log).Reconcile(context.Background()); err != nil {
			log.Error("Reconciliation sweep failed", zap.Error(err))
		}
	}

	h := handler.New(db, quota.NewEnforcer(db), audit.NewRecorder(db, log))

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true
	e.Validator = validate.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	handler.Register(e, h, db)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
