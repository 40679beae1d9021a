package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/caseloop/twofactor/internal/twofactor/http"
	"github.com/caseloop/twofactor/internal/twofactor/service"
	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/internal/twofactor/store/drivers/sqlite"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/jwtx"
	"github.com/caseloop/twofactor/pkg/slogx"
	"github.com/caseloop/twofactor/pkg/totp"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the second-factor service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	box    cryptox.SecretBox
	engine totp.Engine

	// Services
	enrollmentService   *service.EnrollmentService
	verificationService *service.VerificationService
	deviceTrustService  *service.DeviceTrustService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "twofactor-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		engine: totp.New(cfg.TOTPStep, cfg.TOTPSkew),
	}

	if cfg.ServiceTokenSecret == "" {
		return nil, errors.New("TWOFA_SERVICE_TOKEN_SECRET must be set")
	}

	box, err := cryptox.LoadSecretBox(cfg.MasterKeyPath, "TWOFA_MASTER_KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	app.box = box

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("twofactor service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down twofactor service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("twofactor service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.enrollmentService = &service.EnrollmentService{
		Store:  app.db,
		Box:    app.box,
		Engine: app.engine,
		Issuer: app.cfg.Issuer,
	}

	app.verificationService = &service.VerificationService{
		Store:    app.db,
		Box:      app.box,
		Engine:   app.engine,
		NonceTTL: app.cfg.NonceTTL,
	}

	app.deviceTrustService = &service.DeviceTrustService{
		Store:       app.db,
		TrustTTL:    app.cfg.TrustTTL,
		RotateAfter: app.cfg.TrustRotateAfter,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	verifier := jwtx.Verifier{
		Secret:   []byte(app.cfg.ServiceTokenSecret),
		Issuer:   app.cfg.ServiceTokenIssuer,
		Audience: app.cfg.ServiceTokenAudience,
	}

	router := httpapi.NewRouter(verifier, BuildVersion, app.db, app.logger)

	// Wire services to router
	router.EnrollmentService = app.enrollmentService
	router.VerificationService = app.verificationService
	router.DeviceTrustService = app.deviceTrustService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
