package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Dispatch     DispatchConfig
	Reconcile    ReconcileConfig
	Vendor       VendorConfig
	Storage      StorageConfig
	Renderer     RendererConfig
	Queue        QueueConfig
	Suppression  SuppressionConfig
	Pricing      PricingConfig
	Notification NotificationConfig
	Telemetry    TelemetryConfig
	Profiling    ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. An empty host disables Redis
// and the in-memory dispatch claim store is used instead.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for verifying bearer tokens issued by the identity provider
type JWTConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
	// ImportRateLimit caps recipient imports per tenant within ImportRateWindow
	ImportRateLimit  int
	ImportRateWindow time.Duration
}

// DispatchConfig controls the per-campaign dispatch task runner
type DispatchConfig struct {
	Workers        int
	QueueSize      int
	JobTimeout     time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	InterCallDelay time.Duration // pause between vendor calls within one campaign
	ClaimTTL       time.Duration // how long a campaign dispatch claim is held
	ScheduleCheck  time.Duration // how often due scheduled campaigns are released
}

// ReconcileConfig controls the periodic status reconciler
type ReconcileConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// VendorConfig holds mail-fulfillment vendor API settings
type VendorConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	MaxResponseSize int64
	UseType         string
}

// StorageConfig holds S3-compatible object storage settings for artwork
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	UseSSL          bool
	PresignExpiry   time.Duration
	// PublicURLEnabled is false in environments the vendor cannot reach (local
	// MinIO); uploaded artwork then cannot be sent.
	PublicURLEnabled bool
}

// RendererConfig configures the headless Chrome proof renderer
type RendererConfig struct {
	Enabled   bool
	RemoteURL string // ws:// URL of a remote Chrome; empty starts a local one
	Timeout   time.Duration
}

// QueueConfig holds the optional AMQP dispatch queue settings
type QueueConfig struct {
	Enabled   bool
	URL       string
	QueueName string
	Prefetch  int
}

// SuppressionConfig holds tenant defaults used until a tenant saves its own settings
type SuppressionConfig struct {
	RecentOrderDays  int
	RecentMailDays   int
	DoNotMailEnabled bool
}

// PricingConfig holds postage rate overrides in cents keyed "<class>/<size>"
type PricingConfig struct {
	Rates map[string]int64
}

// NotificationConfig holds the campaign-result webhook settings. Without a
// URL results are only logged.
type NotificationConfig struct {
	WebhookURL    string
	WebhookSecret string
	Timeout       time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	LogsEnabled       bool    // Also export zap entries through the OTLP logs pipeline
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string   // e.g. "http://pyroscope:4040"
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string // cpu, alloc_space, inuse_space, goroutines, mutex, block
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with POSTCARD_ prefix (e.g., POSTCARD_VENDOR_API_KEY)
// 2. config.toml
// 3. Built-in defaults
//
// A .env file in the working directory, when present, is loaded into the
// process environment first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("POSTCARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Settings whose zero value is meaningful get their defaults here
	v.SetDefault("suppression.recent_order_days", 30)
	v.SetDefault("suppression.recent_mail_days", 14)
	v.SetDefault("suppression.dnm_enabled", true)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("storage.public_url_enabled", true)
	v.SetDefault("jwt.enabled", true)

	rates, err := parseRates(v.GetStringMap("pricing.rates"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
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
		JWT: JWTConfig{
			Enabled: v.GetBool("jwt.enabled"),
			Secret:  v.GetString("jwt.secret"),
			Issuer:  v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			ImportRateLimit:  v.GetInt("http.import_rate_limit"),
			ImportRateWindow: v.GetDuration("http.import_rate_window"),
		},
		Dispatch: DispatchConfig{
			Workers:        v.GetInt("dispatch.workers"),
			QueueSize:      v.GetInt("dispatch.queue_size"),
			JobTimeout:     v.GetDuration("dispatch.job_timeout"),
			RetryAttempts:  v.GetInt("dispatch.retry_attempts"),
			RetryDelay:     v.GetDuration("dispatch.retry_delay"),
			InterCallDelay: v.GetDuration("dispatch.inter_call_delay"),
			ClaimTTL:       v.GetDuration("dispatch.claim_ttl"),
			ScheduleCheck:  v.GetDuration("dispatch.schedule_check"),
		},
		Reconcile: ReconcileConfig{
			Enabled:   v.GetBool("reconcile.enabled"),
			Interval:  v.GetDuration("reconcile.interval"),
			BatchSize: v.GetInt("reconcile.batch_size"),
		},
		Vendor: VendorConfig{
			BaseURL:         v.GetString("vendor.base_url"),
			APIKey:          v.GetString("vendor.api_key"),
			Timeout:         v.GetDuration("vendor.timeout"),
			MaxResponseSize: v.GetInt64("vendor.max_response_size"),
			UseType:         v.GetString("vendor.use_type"),
		},
		Storage: StorageConfig{
			Enabled:          v.GetBool("storage.enabled"),
			Endpoint:         v.GetString("storage.endpoint"),
			Region:           v.GetString("storage.region"),
			Bucket:           v.GetString("storage.bucket"),
			AccessKeyID:      v.GetString("storage.access_key_id"),
			SecretAccessKey:  v.GetString("storage.secret_access_key"),
			UsePathStyle:     v.GetBool("storage.use_path_style"),
			UseSSL:           v.GetBool("storage.use_ssl"),
			PresignExpiry:    v.GetDuration("storage.presign_expiry"),
			PublicURLEnabled: v.GetBool("storage.public_url_enabled"),
		},
		Renderer: RendererConfig{
			Enabled:   v.GetBool("renderer.enabled"),
			RemoteURL: v.GetString("renderer.remote_url"),
			Timeout:   v.GetDuration("renderer.timeout"),
		},
		Queue: QueueConfig{
			Enabled:   v.GetBool("queue.enabled"),
			URL:       v.GetString("queue.url"),
			QueueName: v.GetString("queue.queue_name"),
			Prefetch:  v.GetInt("queue.prefetch"),
		},
		Suppression: SuppressionConfig{
			RecentOrderDays:  v.GetInt("suppression.recent_order_days"),
			RecentMailDays:   v.GetInt("suppression.recent_mail_days"),
			DoNotMailEnabled: v.GetBool("suppression.dnm_enabled"),
		},
		Pricing: PricingConfig{Rates: rates},
		Notification: NotificationConfig{
			WebhookURL:    v.GetString("notification.webhook_url"),
			WebhookSecret: v.GetString("notification.webhook_secret"),
			Timeout:       v.GetDuration("notification.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseRates(raw map[string]interface{}) (map[string]int64, error) {
	rates := make(map[string]int64, len(raw))
	for k, val := range raw {
		switch n := val.(type) {
		case int:
			rates[k] = int64(n)
		case int64:
			rates[k] = n
		case float64:
			rates[k] = int64(n)
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("pricing.rates.%s: %w", k, err)
			}
			rates[k] = parsed
		default:
			return nil, fmt.Errorf("pricing.rates.%s: unsupported value %v", k, val)
		}
	}
	return rates, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "postcard-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "postcard"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
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
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "postcard-backend"
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
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB, CSV imports
	}
	if cfg.HTTP.ImportRateLimit == 0 {
		cfg.HTTP.ImportRateLimit = 10
	}
	if cfg.HTTP.ImportRateWindow == 0 {
		cfg.HTTP.ImportRateWindow = time.Minute
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 2
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 100
	}
	if cfg.Dispatch.JobTimeout == 0 {
		cfg.Dispatch.JobTimeout = 2 * time.Hour
	}
	if cfg.Dispatch.RetryAttempts == 0 {
		cfg.Dispatch.RetryAttempts = 3
	}
	if cfg.Dispatch.RetryDelay == 0 {
		cfg.Dispatch.RetryDelay = 30 * time.Second
	}
	if cfg.Dispatch.InterCallDelay == 0 {
		cfg.Dispatch.InterCallDelay = 100 * time.Millisecond
	}
	if cfg.Dispatch.ClaimTTL == 0 {
		cfg.Dispatch.ClaimTTL = 6 * time.Hour
	}
	if cfg.Dispatch.ScheduleCheck == 0 {
		cfg.Dispatch.ScheduleCheck = time.Minute
	}
	if cfg.Reconcile.Interval == 0 {
		cfg.Reconcile.Interval = time.Hour
	}
	if cfg.Reconcile.BatchSize == 0 {
		cfg.Reconcile.BatchSize = 200
	}
	if cfg.Vendor.BaseURL == "" {
		cfg.Vendor.BaseURL = "https://api.lob.com/v1"
	}
	if cfg.Notification.Timeout == 0 {
		cfg.Notification.Timeout = 10 * time.Second
	}
	if cfg.Vendor.Timeout == 0 {
		cfg.Vendor.Timeout = 30 * time.Second
	}
	if cfg.Vendor.MaxResponseSize == 0 {
		cfg.Vendor.MaxResponseSize = 1 << 20
	}
	if cfg.Vendor.UseType == "" {
		cfg.Vendor.UseType = "marketing"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "postcard-artwork"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 7 * 24 * time.Hour
	}
	if cfg.Renderer.Timeout == 0 {
		cfg.Renderer.Timeout = 30 * time.Second
	}
	if cfg.Queue.QueueName == "" {
		cfg.Queue.QueueName = "postcard_campaign_dispatch"
	}
	if cfg.Queue.Prefetch == 0 {
		cfg.Queue.Prefetch = 1
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "postcard-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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
	if c.Suppression.RecentOrderDays < 0 || c.Suppression.RecentMailDays < 0 {
		return fmt.Errorf("suppression lookback days cannot be negative")
	}
	if c.Dispatch.InterCallDelay < 0 {
		return fmt.Errorf("dispatch.inter_call_delay cannot be negative")
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("queue.url is required when queue.enabled is true")
	}

	if c.App.Env == "production" {
		if c.JWT.Enabled && len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if !c.JWT.Enabled {
			return fmt.Errorf("jwt.enabled cannot be false in production")
		}
		if c.Vendor.APIKey == "" {
			return fmt.Errorf("vendor.api_key is required in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.LogsEnabled && !c.Telemetry.Enabled {
		return fmt.Errorf("telemetry.logs_enabled requires telemetry.enabled")
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling.enabled is true")
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
