package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/techpack/backend/internal/application/rendering"
	"github.com/techpack/backend/internal/domain/techpack"
	"github.com/techpack/backend/internal/infrastructure/admission"
	"github.com/techpack/backend/internal/infrastructure/cache"
	"github.com/techpack/backend/internal/infrastructure/config"
	"github.com/techpack/backend/internal/infrastructure/logger"
	"github.com/techpack/backend/internal/infrastructure/persistence"
	"github.com/techpack/backend/internal/infrastructure/printing"
	"github.com/techpack/backend/internal/infrastructure/storage"
	"github.com/techpack/backend/internal/infrastructure/telemetry"
	"github.com/techpack/backend/internal/interfaces/http/handler"
	"github.com/techpack/backend/internal/interfaces/http/middleware"
	"github.com/techpack/backend/internal/interfaces/http/router"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	configFile := pflag.StringP("config", "c", "", "path to a TOML config file")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration: "+err.Error())
		os.Exit(1)
	}

	// Bootstrap logger for the telemetry providers; replaced once the OTLP
	// log core exists.
	bootLog, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger: "+err.Error())
		os.Exit(1)
	}

	_, _ = maxprocs.Set(maxprocs.Logger(bootLog.Sugar().Infof))

	ctx := context.Background()

	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize OTLP logs", zap.Error(err))
	}
	level, _ := logger.ParseLevel(cfg.Log.Level)
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, logProvider.Core(level))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Tech Pack render service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// =========================================================================
	// Telemetry
	// =========================================================================

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiler.Enabled,
		ServerAddress:     cfg.Profiler.ServerAddress,
		ApplicationName:   cfg.Profiler.ApplicationName,
		BasicAuthUser:     cfg.Profiler.BasicAuthUser,
		BasicAuthPassword: cfg.Profiler.BasicAuthPassword,
	}, log)
	if err != nil {
		log.Warn("Continuous profiling unavailable", zap.Error(err))
	}
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	// =========================================================================
	// Storage
	// =========================================================================

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
			logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbSystem := "postgresql"
	if db.Driver == persistence.DriverSQLite {
		dbSystem = "sqlite"
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", db.Driver))

	objects, err := storage.New(ctx, &cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		} else {
			defer func() { _ = redisClient.Close() }()
		}
	}

	cacheOpts := []cache.ArtifactCacheFactoryOption{cache.WithLogger(log)}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, cache.WithRedisClient(redisClient))
	}
	artifacts, err := cache.NewArtifactCacheFactory(cfg.Cache, cfg.Redis, cacheOpts...).Create(ctx)
	if err != nil {
		log.Fatal("Failed to initialize artifact cache", zap.Error(err))
	}
	defer func() { _ = artifacts.Close() }()

	subCtx, stopSubscription := context.WithCancel(ctx)
	defer stopSubscription()
	if tiered, ok := artifacts.(*cache.TieredArtifactCache); ok {
		go func() {
			if err := tiered.StartInvalidationSubscription(subCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Cache invalidation subscription stopped", zap.Error(err))
			}
		}()
	}

	admissionStore, closeStore := newAdmissionStore(cfg, redisClient, log)
	defer closeStore()
	controller, err := admission.NewControllerFromConfig(cfg.Admission, admissionStore, admission.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize admission control", zap.Error(err))
	}

	// =========================================================================
	// Render pipeline
	// =========================================================================

	var collector *telemetry.PipelineCollector
	pool := printing.NewRenderPool(printing.PoolConfig{
		Size:                   cfg.Renderer.PoolSize,
		SubmitTimeout:          cfg.Renderer.SubmitTimeout,
		JobTimeout:             cfg.Renderer.JobTimeout,
		MaxConsecutiveFailures: cfg.Renderer.MaxConsecutiveFailures,
		HealthCheckInterval:    cfg.Renderer.HealthCheckInterval,
		OnJobDone: func(outcome string, elapsed time.Duration) {
			if collector != nil {
				collector.ObserveJob(outcome, elapsed)
			}
		},
		Logger: log,
	}, engineFactory(cfg.Renderer, log))

	service := rendering.NewRenderService(
		persistence.NewGormSnapshotRepository(db.DB),
		pool,
		artifacts,
		objects,
		rendering.Config{
			Mode:             cfg.Renderer.Mode,
			Pagination:       paginationRules(cfg.Pagination),
			Logos:            cfg.Renderer.Logos,
			TTL:              cache.TTLPolicyFrom(cfg.Cache),
			MaxBulkDocuments: cfg.Bulk.MaxDocuments,
			Logger:           log,
		},
	)

	collectorOpts := []telemetry.CollectorOption{
		telemetry.WithPoolStats(pool),
		telemetry.WithCacheStats(artifacts),
		telemetry.WithAdmissionStats(controller),
	}
	if sqlDB, err := db.SQL(); err == nil {
		collectorOpts = append(collectorOpts, telemetry.WithDBStats(sqlDB, db.Driver))
	}
	collector = telemetry.NewPipelineCollector(collectorOpts...)

	log.Info("Render pipeline ready",
		zap.String("engine", cfg.Renderer.Engine),
		zap.String("mode", cfg.Renderer.Mode),
		zap.Int("pool_size", pool.Size()),
		zap.String("cache", artifacts.Stats().Backend),
		zap.Bool("admission", controller.Enabled()),
	)

	// =========================================================================
	// HTTP
	// =========================================================================

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies", zap.Error(err))
	}

	var meter metric.Meter
	if meterProvider.IsEnabled() {
		meter = meterProvider.Meter("techpack-http")
	}
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	secureCfg := middleware.DefaultSecurityConfig()
	secureCfg.HSTSEnabled = cfg.App.Env == "production"

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
			Filter:      skipProbes,
		}),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(meter, log),
		middleware.Profiling(profiler.IsEnabled()),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.CORSWithConfig(corsCfg),
		middleware.SecureWithConfig(secureCfg),
		middleware.Identity(middleware.IdentityConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
			Logger: log,
		}),
	)

	health := handler.NewHealthHandler(version, map[string]handler.Check{
		"database": db.Ping,
		"pool": func(context.Context) error {
			if stats := pool.Stats(); stats.Quarantined >= stats.Size {
				return errors.New("every render slot is quarantined")
			}
			return nil
		},
		"cache": func(ctx context.Context) error {
			_, err := artifacts.Fence(ctx, "readiness-probe")
			return err
		},
	})
	admin := handler.NewAdminHandler(service, pool,
		handler.WithCacheStats(artifacts.Stats),
		handler.WithAdmissionStats(controller.Stats),
	)

	var admitter middleware.Admitter
	if controller.Enabled() {
		admitter = controller
	}
	r := router.NewRouter(engine)
	r.Register(handler.TechPackRoutes(handler.NewTechPackHandler(service), admitter)).
		Register(handler.AdminRoutes(admin)).
		Register(handler.HealthRoutes(health, collector.Handler())).
		Setup()
	for _, route := range r.Routes() {
		log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stopSubscription()
	if err := pool.Close(shutdownCtx); err != nil {
		log.Error("Render pool did not drain", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error flushing traces", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	// Flushed last so the lines above still reach the collector.
	_ = logProvider.Shutdown(shutdownCtx)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend == cache.BackendRedis ||
		cfg.Cache.Backend == cache.BackendTiered ||
		(cfg.Admission.Enabled && cfg.Admission.Store == "redis")
}

// newAdmissionStore picks the configured budget counter store. A missing
// Redis client falls back to process-local counters.
func newAdmissionStore(cfg *config.Config, client *redis.Client, log *zap.Logger) (admission.Store, func()) {
	if cfg.Admission.Store == "redis" {
		if client != nil {
			return admission.NewRedisStore(client), func() {}
		}
		log.Warn("Redis unavailable, admission budgets are per instance")
	}
	store := admission.NewMemoryStore(time.Minute)
	return store, func() { _ = store.Close() }
}

func engineFactory(cfg config.RendererConfig, log *zap.Logger) printing.EngineFactory {
	if cfg.Engine == "wkhtmltopdf" {
		return printing.NewWkhtmltopdfEngineFactory(printing.WkhtmltopdfConfig{
			BinaryPath:      cfg.WkhtmltopdfPath,
			ImageBinaryPath: cfg.WkhtmltoimagePath,
			TempDir:         cfg.TempDir,
			Logger:          log,
		})
	}
	return printing.NewChromedpEngineFactory(printing.ChromedpConfig{
		ExecPath:  cfg.ChromeExecPath,
		RemoteURL: cfg.ChromeRemoteURL,
		NoSandbox: cfg.ChromeNoSandbox,
		Logger:    log,
	})
}

func paginationRules(cfg config.PaginationConfig) techpack.PaginationRules {
	return techpack.PaginationRules{
		BOMRowsPerPage:             cfg.BOMRowsPerPage,
		MeasurementRowsPerPage:     cfg.MeasurementRowsPerPage,
		ConstructionEntriesPerPage: cfg.ConstructionEntriesPerPage,
		ColorwaysPerPage:           cfg.ColorwaysPerPage,
		NoteBlocksPerPage:          cfg.NoteBlocksPerPage,
	}
}

// skipProbes keeps health checks and scrapes out of traces
func skipProbes(r *http.Request) bool {
	return !strings.Contains(r.URL.Path, "/health") && !strings.HasSuffix(r.URL.Path, "/metrics")
}
