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

	"github.com/aussiebroadwan/gatehouse/internal/auth/audit"
	"github.com/aussiebroadwan/gatehouse/internal/auth/federation"
	httpapi "github.com/aussiebroadwan/gatehouse/internal/auth/http"
	"github.com/aussiebroadwan/gatehouse/internal/auth/metrics"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/lockx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	signers  signers
	metrics  *metrics.Metrics
	audit    audit.Sink
	notifier *notify.Async

	// Services
	settingsService     *service.SettingsService
	invitationService   *service.InvitationService
	resolver            *service.Resolver
	authenticator       *service.Authenticator
	mfaService          *service.MFAService
	userService         *service.UserService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService
	federation          *federation.Client

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	s, err := loadSigners(cfg)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.signers = s

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("gatehouse starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"driver", app.cfg.DatabaseDriver,
		"providers", len(app.federation.Providers),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown drains requests, waits for queued invitation notifications and
// closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.notifier.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations.
func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var pg *postgres.Store
		if pg, err = postgres.NewStore(ctx, app.cfg.DatabaseURL); err == nil {
			db = pg
		}
	default:
		var lite *sqlite.Store
		if lite, err = sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile)); err == nil {
			db = lite
		}
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadOrCreateSecret(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("load pepper: %w", err)
	}
	passwords := &service.PasswordVerifier{
		Store:  app.db,
		Hasher: cryptox.NewPasswordHasher(pepper),
	}

	app.audit = audit.Multi(audit.SlogSink{}, audit.StoreSink{Store: app.db})
	app.notifier = notify.NewAsync(notify.LogSender{}, app.cfg.NotifyTimeout)

	app.settingsService = &service.SettingsService{
		Store: app.db,
		Audit: app.audit,
		TTL:   app.cfg.SettingsCacheTTL,
	}
	app.invitationService = &service.InvitationService{
		Store:     app.db,
		Notifier:  app.notifier,
		Audit:     app.audit,
		Metrics:   app.metrics,
		TokenSize: app.cfg.InvitationTokenBytes,
	}
	app.resolver = &service.Resolver{
		Store:    app.db,
		Settings: app.settingsService,
		Locks:    lockx.New(),
		Audit:    app.audit,
		Metrics:  app.metrics,
	}
	app.mfaService = &service.MFAService{
		Store:  app.db,
		Issuer: app.cfg.Issuer,
	}
	app.authenticator = &service.Authenticator{
		Resolver:  app.resolver,
		Settings:  app.settingsService,
		Passwords: passwords,
		MFA:       app.mfaService,
		Signer:    app.signers.session,
	}
	app.userService = &service.UserService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{
		Store:     app.db,
		Passwords: passwords,
		Audit:     app.audit,
		Token:     app.cfg.BootstrapToken,
	}
	app.federation = &federation.Client{
		Providers:  app.cfg.providers(),
		State:      app.signers.state,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AuditRetention,
	)

	for name := range app.federation.Providers {
		app.logger.Info("identity provider enabled", "provider", name)
	}
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	// Limits are read when routes are registered.
	httpx.StrictLimit = app.cfg.StrictLimit
	httpx.ModerateLimit = app.cfg.ModerateLimit

	router := httpapi.NewRouter(
		app.signers.session,
		BuildVersion,
		app.db,
		app.metrics,
		app.logger,
	)
	router.CookieSecure = app.cfg.CookieSecure
	router.PostLoginRedirect = app.cfg.PostLoginRedirect

	router.Authenticator = app.authenticator
	router.Resolver = app.resolver
	router.InvitationService = app.invitationService
	router.SettingsService = app.settingsService
	router.MFAService = app.mfaService
	router.UserService = app.userService
	router.BootstrapService = app.bootstrapService
	if len(app.federation.Providers) > 0 {
		router.Federation = app.federation
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
