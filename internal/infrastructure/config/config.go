package config

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

// Config holds all application configuration
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Telemetry  TelemetryConfig
	Profiler   ProfilerConfig
	Renderer   RendererConfig
	Pagination PaginationConfig
	Cache      CacheConfig
	Admission  AdmissionConfig
	Storage    StorageConfig
	Bulk       BulkConfig
	JWT        JWTConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RequestTimeout   time.Duration // per-request context deadline
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	LogsEnabled       bool
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// ProfilerConfig holds Pyroscope continuous profiling settings
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// RendererConfig holds render pool and engine settings
type RendererConfig struct {
	Engine                 string // chromedp, wkhtmltopdf
	Mode                   string // page, document
	PoolSize               int
	SubmitTimeout          time.Duration
	JobTimeout             time.Duration
	MaxConsecutiveFailures int
	HealthCheckInterval    time.Duration
	ChromeExecPath         string
	ChromeRemoteURL        string
	ChromeNoSandbox        bool
	WkhtmltopdfPath        string
	WkhtmltoimagePath      string
	TempDir                string
	// Logos maps a brand or supplier name to an asset storage key
	Logos map[string]string
}

// PaginationConfig holds per-block row thresholds
type PaginationConfig struct {
	BOMRowsPerPage             int
	MeasurementRowsPerPage     int
	ConstructionEntriesPerPage int
	ColorwaysPerPage           int
	NoteBlocksPerPage          int
}

// CacheConfig holds artifact cache settings
type CacheConfig struct {
	Backend             string // memory, redis, tiered
	KeyPrefix           string
	DocumentTTL         time.Duration
	PreviewTTL          time.Duration
	MetaTTL             time.Duration
	L1TTL               time.Duration
	CleanupInterval     time.Duration
	InvalidationChannel string
	// FenceTTL is how long an invalidation fence outlives its last bump.
	// Entry TTLs are clamped to it.
	FenceTTL time.Duration
}

// BudgetConfig is one request class budget
type BudgetConfig struct {
	Window      time.Duration
	MaxRequests int
}

// AdmissionConfig holds per-class request budgets
type AdmissionConfig struct {
	Enabled   bool
	Store     string // memory, redis
	KeyPrefix string
	Single    BudgetConfig
	Bulk      BudgetConfig
	Preview   BudgetConfig
}

// StorageConfig holds asset and artifact storage settings
type StorageConfig struct {
	Backend           string // local, s3
	BasePath          string
	BaseURL           string
	Bucket            string
	AccessKey         string
	SecretKey         string
	Region            string
	Endpoint          string
	UseSSL            bool
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// BulkConfig holds bulk orchestration limits
type BulkConfig struct {
	MaxDocuments int
}

// JWTConfig holds the settings used to read the caller identity from bearer tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with TECHPACK_ prefix (e.g., TECHPACK_RENDERER_POOL_SIZE)
// 2. config file (explicit path, or config.toml in the search paths)
// 3. Built-in defaults
func Load(configFile ...string) (*Config, error) {
	v := viper.New()

	if len(configFile) > 0 && configFile[0] != "" {
		v.SetConfigFile(configFile[0])
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/techpack")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TECHPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiler: ProfilerConfig{
			Enabled:           v.GetBool("profiler.enabled"),
			ServerAddress:     v.GetString("profiler.server_address"),
			ApplicationName:   v.GetString("profiler.application_name"),
			BasicAuthUser:     v.GetString("profiler.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiler.basic_auth_password"),
		},
		Renderer: RendererConfig{
			Engine:                 v.GetString("renderer.engine"),
			Mode:                   v.GetString("renderer.mode"),
			PoolSize:               v.GetInt("renderer.pool_size"),
			SubmitTimeout:          v.GetDuration("renderer.submit_timeout"),
			JobTimeout:             v.GetDuration("renderer.job_timeout"),
			MaxConsecutiveFailures: v.GetInt("renderer.max_consecutive_failures"),
			HealthCheckInterval:    v.GetDuration("renderer.health_check_interval"),
			ChromeExecPath:         v.GetString("renderer.chrome_exec_path"),
			ChromeRemoteURL:        v.GetString("renderer.chrome_remote_url"),
			ChromeNoSandbox:        v.GetBool("renderer.chrome_no_sandbox"),
			WkhtmltopdfPath:        v.GetString("renderer.wkhtmltopdf_path"),
			WkhtmltoimagePath:      v.GetString("renderer.wkhtmltoimage_path"),
			TempDir:                v.GetString("renderer.temp_dir"),
			Logos:                  v.GetStringMapString("renderer.logos"),
		},
		Pagination: PaginationConfig{
			BOMRowsPerPage:             v.GetInt("pagination.bom_rows_per_page"),
			MeasurementRowsPerPage:     v.GetInt("pagination.measurement_rows_per_page"),
			ConstructionEntriesPerPage: v.GetInt("pagination.construction_entries_per_page"),
			ColorwaysPerPage:           v.GetInt("pagination.colorways_per_page"),
			NoteBlocksPerPage:          v.GetInt("pagination.note_blocks_per_page"),
		},
		Cache: CacheConfig{
			Backend:             v.GetString("cache.backend"),
			KeyPrefix:           v.GetString("cache.key_prefix"),
			DocumentTTL:         v.GetDuration("cache.document_ttl"),
			PreviewTTL:          v.GetDuration("cache.preview_ttl"),
			MetaTTL:             v.GetDuration("cache.meta_ttl"),
			L1TTL:               v.GetDuration("cache.l1_ttl"),
			CleanupInterval:     v.GetDuration("cache.cleanup_interval"),
			InvalidationChannel: v.GetString("cache.invalidation_channel"),
			FenceTTL:            v.GetDuration("cache.fence_ttl"),
		},
		Admission: AdmissionConfig{
			Enabled:   !v.IsSet("admission.enabled") || v.GetBool("admission.enabled"),
			Store:     v.GetString("admission.store"),
			KeyPrefix: v.GetString("admission.key_prefix"),
			Single:    loadBudget(v, "admission.single"),
			Bulk:      loadBudget(v, "admission.bulk"),
			Preview:   loadBudget(v, "admission.preview"),
		},
		Storage: StorageConfig{
			Backend:           v.GetString("storage.backend"),
			BasePath:          v.GetString("storage.base_path"),
			BaseURL:           v.GetString("storage.base_url"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			Region:            v.GetString("storage.region"),
			Endpoint:          v.GetString("storage.endpoint"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Bulk: BulkConfig{
			MaxDocuments: v.GetInt("bulk.max_documents"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadBudget(v *viper.Viper, prefix string) BudgetConfig {
	return BudgetConfig{
		Window:      v.GetDuration(prefix + ".window"),
		MaxRequests: v.GetInt(prefix + ".max_requests"),
	}
}

// DefaultPoolSize is GOMAXPROCS/2 clamped to [1, 8]
func DefaultPoolSize() int {
	n := runtime.GOMAXPROCS(0) / 2
	if n < 1 {
		n = 1
	}
	if n > 8 {
		n = 8
	}
	return n
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "techpack-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// bulk requests hold the connection while the whole batch renders
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 || cfg.HTTP.RequestTimeout > cfg.HTTP.WriteTimeout {
		cfg.HTTP.RequestTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "techpack"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "techpack.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.Profiler.ServerAddress == "" {
		cfg.Profiler.ServerAddress = "http://localhost:4040"
	}
	if cfg.Profiler.ApplicationName == "" {
		cfg.Profiler.ApplicationName = cfg.App.Name
	}

	if cfg.Renderer.Engine == "" {
		cfg.Renderer.Engine = "chromedp"
	}
	if cfg.Renderer.Mode == "" {
		cfg.Renderer.Mode = "page"
	}
	if cfg.Renderer.PoolSize == 0 {
		cfg.Renderer.PoolSize = DefaultPoolSize()
	}
	if cfg.Renderer.SubmitTimeout == 0 {
		cfg.Renderer.SubmitTimeout = 5 * time.Second
	}
	if cfg.Renderer.JobTimeout == 0 {
		cfg.Renderer.JobTimeout = 30 * time.Second
	}
	if cfg.Renderer.MaxConsecutiveFailures == 0 {
		cfg.Renderer.MaxConsecutiveFailures = 3
	}
	if cfg.Renderer.HealthCheckInterval == 0 {
		cfg.Renderer.HealthCheckInterval = 30 * time.Second
	}
	if cfg.Renderer.Logos == nil {
		cfg.Renderer.Logos = map[string]string{}
	}

	if cfg.Pagination.BOMRowsPerPage == 0 {
		cfg.Pagination.BOMRowsPerPage = 10
	}
	if cfg.Pagination.MeasurementRowsPerPage == 0 {
		cfg.Pagination.MeasurementRowsPerPage = 20
	}
	if cfg.Pagination.ConstructionEntriesPerPage == 0 {
		cfg.Pagination.ConstructionEntriesPerPage = 8
	}
	if cfg.Pagination.ColorwaysPerPage == 0 {
		cfg.Pagination.ColorwaysPerPage = 4
	}
	if cfg.Pagination.NoteBlocksPerPage == 0 {
		cfg.Pagination.NoteBlocksPerPage = 1
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "techpack:"
	}
	if cfg.Cache.DocumentTTL == 0 {
		cfg.Cache.DocumentTTL = 24 * time.Hour
	}
	if cfg.Cache.PreviewTTL == 0 {
		cfg.Cache.PreviewTTL = 6 * time.Hour
	}
	if cfg.Cache.MetaTTL == 0 {
		cfg.Cache.MetaTTL = time.Hour
	}
	if cfg.Cache.L1TTL == 0 {
		cfg.Cache.L1TTL = 5 * time.Minute
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = time.Minute
	}
	if cfg.Cache.InvalidationChannel == "" {
		cfg.Cache.InvalidationChannel = "techpack:cache:invalidate"
	}
	if cfg.Cache.FenceTTL == 0 {
		cfg.Cache.FenceTTL = 7 * 24 * time.Hour
	}

	if cfg.Admission.Store == "" {
		cfg.Admission.Store = "memory"
	}
	if cfg.Admission.KeyPrefix == "" {
		cfg.Admission.KeyPrefix = "techpack:admission:"
	}
	applyBudgetDefaults(&cfg.Admission.Single, time.Minute, 30)
	applyBudgetDefaults(&cfg.Admission.Bulk, time.Minute, 3)
	applyBudgetDefaults(&cfg.Admission.Preview, time.Minute, 120)

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "./data/artifacts"
	}
	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "/files"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = time.Hour
	}

	if cfg.Bulk.MaxDocuments == 0 {
		cfg.Bulk.MaxDocuments = 50
	}

	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = defaultJWTSecret
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = cfg.App.Name
	}
}

func applyBudgetDefaults(b *BudgetConfig, window time.Duration, max int) {
	if b.Window == 0 {
		b.Window = window
	}
	if b.MaxRequests == 0 {
		b.MaxRequests = max
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Renderer.Engine {
	case "chromedp", "wkhtmltopdf":
	default:
		return fmt.Errorf("renderer.engine must be chromedp or wkhtmltopdf, got %q", c.Renderer.Engine)
	}
	switch c.Renderer.Mode {
	case "page", "document":
	default:
		return fmt.Errorf("renderer.mode must be page or document, got %q", c.Renderer.Mode)
	}
	if c.Renderer.PoolSize < 1 {
		return fmt.Errorf("renderer.pool_size must be at least 1, got %d", c.Renderer.PoolSize)
	}
	if c.Renderer.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("renderer.max_consecutive_failures must be at least 1")
	}

	if c.Pagination.BOMRowsPerPage < 1 || c.Pagination.MeasurementRowsPerPage < 1 ||
		c.Pagination.ConstructionEntriesPerPage < 1 || c.Pagination.ColorwaysPerPage < 1 ||
		c.Pagination.NoteBlocksPerPage < 1 {
		return fmt.Errorf("pagination thresholds must be positive")
	}

	switch c.Cache.Backend {
	case "memory", "redis", "tiered":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or tiered, got %q", c.Cache.Backend)
	}
	for name, ttl := range map[string]time.Duration{
		"document_ttl": c.Cache.DocumentTTL,
		"preview_ttl":  c.Cache.PreviewTTL,
		"meta_ttl":     c.Cache.MetaTTL,
	} {
		if ttl > c.Cache.FenceTTL {
			return fmt.Errorf("cache.%s (%s) must not exceed cache.fence_ttl (%s)", name, ttl, c.Cache.FenceTTL)
		}
	}

	switch c.Admission.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("admission.store must be memory or redis, got %q", c.Admission.Store)
	}
	for name, b := range map[string]BudgetConfig{
		"single":  c.Admission.Single,
		"bulk":    c.Admission.Bulk,
		"preview": c.Admission.Preview,
	} {
		if b.Window <= 0 || b.MaxRequests <= 0 {
			return fmt.Errorf("admission.%s budget needs a positive window and max_requests", name)
		}
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or s3, got %q", c.Storage.Backend)
	}

	if c.Bulk.MaxDocuments < 1 {
		return fmt.Errorf("bulk.max_documents must be at least 1")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == defaultJWTSecret || len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be set to at least 32 characters in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
