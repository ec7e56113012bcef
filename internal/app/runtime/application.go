// Package runtime assembles the whole service from configuration: stores,
// cache, object store, provider client, the application core, and the two
// HTTP listeners.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/proteinlens/proteinlens/internal/app"
	"github.com/proteinlens/proteinlens/internal/app/httpapi"
	analysissvc "github.com/proteinlens/proteinlens/internal/app/services/analysis"
	"github.com/proteinlens/proteinlens/internal/app/services/breach"
	profilessvc "github.com/proteinlens/proteinlens/internal/app/services/profiles"
	"github.com/proteinlens/proteinlens/internal/app/services/scheduler"
	"github.com/proteinlens/proteinlens/internal/app/services/vision"
	"github.com/proteinlens/proteinlens/internal/app/storage/postgres"
	"github.com/proteinlens/proteinlens/internal/app/storage/rediscache"
	"github.com/proteinlens/proteinlens/internal/config"
	"github.com/proteinlens/proteinlens/internal/logging"
	"github.com/proteinlens/proteinlens/internal/middleware"
	"github.com/proteinlens/proteinlens/internal/platform/migrations"
	"github.com/proteinlens/proteinlens/internal/storage/objectstore"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg *config.Config
	log *logger.Logger

	app          *app.Application
	publicServer *http.Server
	opsServer    *http.Server
	db           *sql.DB
	cache        *rediscache.Cache
}

// NewApplication loads configuration from the environment and builds the
// service.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(cfg)
}

// New builds the service from an explicit configuration.
func New(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores, db, err := buildStores(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	cache := buildCache(cfg, log)

	objects, err := buildObjectStore(cfg.Objects)
	if err != nil {
		return nil, fmt.Errorf("configure object store: %w", err)
	}

	analyzer, err := buildAnalyzer(cfg.Vision, log)
	if err != nil {
		return nil, fmt.Errorf("configure vision client: %w", err)
	}

	var checker *breach.Checker
	if cfg.Breach.Enabled {
		checker = breach.New(breach.Config{
			BaseURL:   cfg.Breach.BaseURL,
			UserAgent: cfg.Breach.UserAgent,
			Timeout:   cfg.Breach.Timeout,
			FailOpen:  cfg.Breach.FailOpen,
		}, cache, log.WithField("service", "breach"))
	}

	var catalog *profilessvc.Catalog
	if cfg.Profiles.CatalogPath != "" {
		catalog, err = profilessvc.LoadCatalog(cfg.Profiles.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load profile catalog: %w", err)
		}
	}

	application, err := app.New(stores, app.Options{
		Objects:            objects,
		Analyzer:           analyzer,
		Cache:              cache,
		Breach:             checker,
		Catalog:            catalog,
		MaxSessionsPerUser: cfg.Capture.MaxSessionsPerUser,
		SessionTTL:         cfg.Capture.SessionTTL,
		Analysis: analysissvc.Config{
			Workers:        cfg.Analysis.Workers,
			QueueSize:      cfg.Analysis.QueueSize,
			AttemptTimeout: cfg.Analysis.AttemptTimeout,
		},
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}

	if cfg.Jobs.Enabled {
		sched := scheduler.New(scheduler.Config{
			SessionReaperSpec: cfg.Jobs.SessionReaperSpec,
			SummaryWarmupSpec: cfg.Jobs.SummaryWarmupSpec,
			BreachSweepSpec:   cfg.Jobs.BreachSweepSpec,
		}, scheduler.Deps{
			Registry:   application.Registry,
			SessionTTL: application.SessionTTL,
			Meals:      application.Meals,
			Breach:     application.Breach,
		}, log.WithField("service", "scheduler"))
		if err := application.Attach(sched); err != nil {
			return nil, fmt.Errorf("attach scheduler: %w", err)
		}
	}

	handler, err := httpapi.NewHandler(application, httpapi.Config{
		MaxUploadBytes: cfg.Capture.MaxUploadBytes,
		AuditPath:      cfg.Server.AuditLogPath,
	}, logging.New("httpapi", cfg.Logging.Level, cfg.Logging.Format))
	if err != nil {
		return nil, fmt.Errorf("build handler: %w", err)
	}

	chain, err := buildMiddleware(cfg, handler, logging.New("middleware", cfg.Logging.Level, cfg.Logging.Format))
	if err != nil {
		return nil, fmt.Errorf("build middleware: %w", err)
	}

	publicServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var opsServer *http.Server
	if cfg.Ops.Enabled {
		opsServer = &http.Server{
			Addr:        cfg.Ops.Addr(),
			Handler:     newOpsHandler(db, cache),
			ReadTimeout: cfg.Server.ReadTimeout,
			IdleTimeout: cfg.Server.IdleTimeout,
		}
	}

	return &Application{
		cfg:          cfg,
		log:          log,
		app:          application,
		publicServer: publicServer,
		opsServer:    opsServer,
		db:           db,
		cache:        cache,
	}, nil
}

// App exposes the wired application core, mainly for integration tests.
func (a *Application) App() *app.Application {
	return a.app
}

// Handler exposes the public HTTP handler with its middleware chain.
func (a *Application) Handler() http.Handler {
	return a.publicServer.Handler
}

// Run starts the background services and HTTP listeners, then blocks until
// the context is cancelled or a listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 2)

	go func() {
		a.log.Infof("HTTP server listening on %s", a.cfg.Server.Addr())
		if err := a.publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if a.opsServer != nil {
		go func() {
			a.log.Infof("ops server listening on %s", a.cfg.Ops.Addr())
			if err := a.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the listeners, the background services, and the
// storage connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var firstErr error
	if err := a.publicServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if a.opsServer != nil {
		if err := a.opsServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Warn("error closing redis client")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}

	return firstErr
}

func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return app.Stores{}, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return app.Stores{}, nil, err
	}

	if cfg.Database.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := postgres.New(db)
	reporting := postgres.NewReporting(sqlx.NewDb(db, cfg.Database.Driver))

	return app.Stores{
		Meals:     store,
		Analyses:  store,
		Goals:     store,
		Profiles:  store,
		Reporting: reporting,
	}, db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func buildCache(cfg *config.Config, log *logger.Logger) *rediscache.Cache {
	if cfg.Redis.Addr == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cache, err := rediscache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; running without cache")
		return nil
	}
	return cache
}

func buildObjectStore(cfg config.ObjectStoreConfig) (objectstore.ObjectStore, error) {
	var store objectstore.ObjectStore
	var err error
	switch cfg.Backend {
	case "memory":
		store = objectstore.NewMemory()
	case "fs":
		store, err = objectstore.NewFS(cfg.FSRoot)
	case "supabase":
		store, err = objectstore.NewSupabase(objectstore.SupabaseConfig{
			URL:        cfg.SupabaseURL,
			Bucket:     cfg.SupabaseBucket,
			ServiceKey: cfg.SupabaseServiceKey,
		})
	default:
		err = fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	key, err := resolveStorageKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage encryption key: %w", err)
	}
	if key != nil {
		store, err = objectstore.NewEncrypted(store, key)
		if err != nil {
			return nil, err
		}
	}
	return store, nil
}

func buildAnalyzer(cfg config.VisionConfig, log *logger.Logger) (vision.Analyzer, error) {
	if !cfg.Configured() {
		return nil, nil
	}

	vcfg := vision.Config{
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		MaxTokens:  cfg.MaxTokens,
	}
	if cfg.APIKey != "" {
		vcfg.APIKey = cfg.APIKey
	} else {
		cred, err := azidentity.NewClientSecretCredential(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		vcfg.Credential = cred
		vcfg.Scope = cfg.AzureScope
	}

	return vision.NewClient(vcfg, log.WithField("service", "vision"))
}

// buildMiddleware composes the public chain. Outermost first: panic
// recovery, CORS, tracing, metrics, auth, rate limiting. Rate limiting sits
// inside auth so authenticated users are limited per user rather than per
// client address.
func buildMiddleware(cfg *config.Config, handler http.Handler, log *logging.Logger) (http.Handler, error) {
	h := handler

	if cfg.RateLimit.Enabled {
		h = middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log).Handler(h)
	}

	authKey, err := resolveAuthKey(cfg.Auth)
	if err != nil {
		return nil, err
	}
	if authKey != nil {
		h = middleware.NewAuthMiddleware(authKey, log, cfg.Auth.SkipPathList()).Handler(h)
	} else {
		log.Warn("no JWT key configured; requests run as the anonymous development user")
		h = devIdentity(h)
	}

	h = middleware.MetricsMiddleware()(h)
	h = middleware.NewTracingMiddleware(log).Handler(h)
	h = middleware.NewCORSMiddleware(cfg.CORS.OriginList()).Handler(h)
	h = middleware.NewRecoveryMiddleware(log).Handler(h)

	return h, nil
}

func resolveAuthKey(cfg config.AuthConfig) (interface{}, error) {
	if cfg.JWTPublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, fmt.Errorf("parse JWT public key: %w", err)
		}
		return key, nil
	}
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	return nil, nil
}

// devIdentity stamps every request with a fixed user so the API is usable
// before auth is configured. Never intended for production.
func devIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithUserID(r.Context(), "dev-user")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
