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

	"github.com/gorilla/handlers"

	httpapi "github.com/aussiebroadwan/purse/internal/auth/http"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/aussiebroadwan/purse/pkg/totpx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	hasher     *cryptox.Hasher
	cipher     *cryptox.SecretCipher

	// Services
	authService         *service.AuthService
	audit               *service.AuditDispatcher
	housekeepingService *service.HousekeepingService // nil when disabled

	// HTTP server
	server  *http.Server
	handler http.Handler
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	return NewWithLogger(cfg, slogx.New(slogx.Config{
		Service: "purse-auth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}))
}

// NewWithLogger is New with a caller supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{cfg: cfg, logger: logger}
	ctx := context.Background()

	if err := app.initCrypto(); err != nil {
		return nil, err
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	// Keys come after the database for persistent mode
	keyManager, err := InitAuthKeys(ctx, app.cfg, app.db, app.cipher, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the fully wrapped HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.handler
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
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

// Shutdown stops the server, then the background workers, then closes the
// database. Audit events still buffered are written before the close.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.Close()

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases everything but the HTTP server. Tests that never call Run
// use it directly.
func (app *Application) Close() {
	if app.housekeepingService != nil {
		app.housekeepingService.Stop()
		app.housekeepingService = nil
	}
	app.audit.Close()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
	}
}

// initCrypto loads the pepper and the secret encryption key. In dev a
// missing key is generated per process, so TOTP secrets do not survive a
// restart.
func (app *Application) initCrypto() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewHasher(cryptox.HasherConfig{
		Pepper:      pepper,
		Concurrency: app.cfg.HashConcurrency,
	})

	var key []byte
	if app.cfg.EncryptionKey == "" && app.cfg.EncryptionKeyFile == "" {
		app.logger.Warn("no encryption key configured, generating one for this process only")
		key, err = cryptox.GenerateSecretKey()
	} else {
		key, err = cryptox.LoadSecretKey(app.cfg.EncryptionKey, app.cfg.EncryptionKeyFile)
	}
	if err != nil {
		return fmt.Errorf("failed to load encryption key: %w", err)
	}

	app.cipher, err = cryptox.NewSecretCipher(key)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db      store.Store
		migrate func() error
	)

	switch app.cfg.DatabaseDriver {
	case "postgres":
		s, err := postgres.NewStore(ctx, app.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db, migrate = s, s.ApplyMigrations
	default:
		s, err := sqlite.NewStore(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db, migrate = s, s.ApplyMigrations
	}

	if err := migrate(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.db = db

	app.logger.Info("database migrations applied", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initServices wires the auth components together
func (app *Application) initServices() {
	codec := totpx.NewCodec(app.cfg.Issuer)

	sessions := &service.SessionIssuer{
		Store:           app.db,
		Signer:          app.keyManager,
		Issuer:          app.cfg.Issuer,
		Audience:        app.cfg.Audience,
		AccessTTL:       app.cfg.AccessTTL,
		RefreshTTL:      app.cfg.RefreshTTL,
		RefreshShortTTL: app.cfg.RefreshShortTTL,
	}
	vault := &service.BackupCodeVault{Store: app.db, Hasher: app.hasher}
	devices := &service.DeviceRegistry{Store: app.db, TTL: app.cfg.RememberedDeviceTTL}
	challenges := &service.ChallengeEngine{
		Store:       app.db,
		Cipher:      app.cipher,
		Codec:       codec,
		Vault:       vault,
		Devices:     devices,
		Sessions:    sessions,
		MaxAttempts: app.cfg.MFAMaxAttempts,
	}

	app.audit = service.NewAuditDispatcher(service.AuditConfig{
		BufferSize: app.cfg.AuditBufferSize,
		DropIfFull: true,
	}, app.db.AuditEvents(), app.logger)

	app.authService = &service.AuthService{
		Store:      app.db,
		Hasher:     app.hasher,
		Codec:      codec,
		Sessions:   sessions,
		Challenges: challenges,
		Devices:    devices,
		Vault:      vault,
		Mailer: &service.LogMailer{
			BaseURL:      app.cfg.MailerBaseURL,
			IncludeLinks: app.cfg.MailerLogLinks,
		},
		Audit: app.audit,
	}

	if app.cfg.HousekeepingInterval <= 0 {
		app.logger.Info("housekeeping disabled")
		return
	}
	app.housekeepingService = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingInterval)
	app.housekeepingService.Retention = app.cfg.HousekeepingRetention
	if app.cfg.KeyStorageMode == "persistent" {
		app.housekeepingService.Keys = app.keyManager
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		BuildVersion,
		app.db,
		app.logger,
		app.cfg.RateLimits,
	)
	router.AuthService = app.authService
	router.Cookies = httpapi.CookieConfig{
		Secure: app.cfg.CookieSecure,
		Domain: app.cfg.CookieDomain,
	}
	router.ApplyRoutes()

	var h http.Handler = router
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(app.logger.Handler(), slog.LevelError)),
	)(h)
	if app.cfg.TrustProxy {
		h = handlers.ProxyHeaders(h)
	}
	app.handler = h

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
