package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	HTTP     HTTPConfig
	FBR      FBRConfig
	Vault     VaultConfig
	RefData   RefDataConfig
	Telemetry TelemetryConfig
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
	TraceEnabled    bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings for the tenant-context middleware
type JWTConfig struct {
	Secret string
	Issuer string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
}

// FBRConfig holds the submission engine knobs. The retry ceiling, backoff
// base, and batch size are deployment-tunable rather than hard-coded.
type FBRConfig struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	BackoffJitter  float64
	BatchSize      int
	LeaseDuration  time.Duration
	SubmitTimeout  time.Duration
	RunDeadline    time.Duration
	// WorkerEnabled runs the worker on a ticker inside the API server in
	// addition to the external cron trigger. Safe to enable alongside it.
	WorkerEnabled  bool
	WorkerInterval time.Duration
}

// VaultConfig holds credential-vault master key settings. Exactly one of
// MasterKeyHex or Passphrase must be set; the key is loaded at process start
// and never logged.
type VaultConfig struct {
	MasterKeyHex string
	Passphrase   string
	KeySalt      string
}

// RefDataConfig holds reference-data cache settings
type RefDataConfig struct {
	MemoryTTL time.Duration
	RedisTTL  time.Duration
	// RedisEnabled turns on the shared redis tier between memory and DB
	RedisEnabled bool
}

// TelemetryConfig holds OpenTelemetry trace export settings. When disabled
// the global tracer provider stays a no-op and instrumented code costs nothing.
type TelemetryConfig struct {
	Enabled       bool
	Endpoint      string
	SamplingRatio float64
	Insecure      bool
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with POS_ prefix (e.g., POS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
			TraceEnabled:    v.GetBool("database.trace_enabled"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
			MaxBodySize:  v.GetInt64("http.max_body_size"),
		},
		FBR: FBRConfig{
			MaxAttempts:    v.GetInt("fbr.max_attempts"),
			BaseBackoff:    v.GetDuration("fbr.base_backoff"),
			MaxBackoff:     v.GetDuration("fbr.max_backoff"),
			BackoffJitter:  v.GetFloat64("fbr.backoff_jitter"),
			BatchSize:      v.GetInt("fbr.batch_size"),
			LeaseDuration:  v.GetDuration("fbr.lease_duration"),
			SubmitTimeout:  v.GetDuration("fbr.submit_timeout"),
			RunDeadline:    v.GetDuration("fbr.run_deadline"),
			WorkerEnabled:  v.GetBool("fbr.worker_enabled"),
			WorkerInterval: v.GetDuration("fbr.worker_interval"),
		},
		Vault: VaultConfig{
			MasterKeyHex: v.GetString("vault.master_key_hex"),
			Passphrase:   v.GetString("vault.passphrase"),
			KeySalt:      v.GetString("vault.key_salt"),
		},
		RefData: RefDataConfig{
			MemoryTTL:    v.GetDuration("refdata.memory_ttl"),
			RedisTTL:     v.GetDuration("refdata.redis_ttl"),
			RedisEnabled: v.GetBool("refdata.redis_enabled"),
		},
		Telemetry: TelemetryConfig{
			Enabled:       v.GetBool("telemetry.enabled"),
			Endpoint:      v.GetString("telemetry.endpoint"),
			SamplingRatio: v.GetFloat64("telemetry.sampling_ratio"),
			Insecure:      v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pos-backend"
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
		cfg.Database.DBName = "pos"
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
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "pos-backend"
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
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.FBR.MaxAttempts == 0 {
		cfg.FBR.MaxAttempts = 5
	}
	if cfg.FBR.BaseBackoff == 0 {
		cfg.FBR.BaseBackoff = 30 * time.Second
	}
	if cfg.FBR.MaxBackoff == 0 {
		cfg.FBR.MaxBackoff = time.Hour
	}
	if cfg.FBR.BackoffJitter == 0 {
		cfg.FBR.BackoffJitter = 0.2
	}
	if cfg.FBR.BatchSize == 0 {
		cfg.FBR.BatchSize = 25
	}
	if cfg.FBR.LeaseDuration == 0 {
		cfg.FBR.LeaseDuration = 5 * time.Minute
	}
	if cfg.FBR.SubmitTimeout == 0 {
		cfg.FBR.SubmitTimeout = 30 * time.Second
	}
	if cfg.FBR.RunDeadline == 0 {
		cfg.FBR.RunDeadline = 10 * time.Minute
	}
	if cfg.FBR.WorkerInterval == 0 {
		cfg.FBR.WorkerInterval = 2 * time.Minute
	}
	if cfg.RefData.MemoryTTL == 0 {
		cfg.RefData.MemoryTTL = 15 * time.Minute
	}
	if cfg.RefData.RedisTTL == 0 {
		cfg.RefData.RedisTTL = time.Hour
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
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
	if c.FBR.MaxAttempts < 1 {
		return fmt.Errorf("fbr.max_attempts must be at least 1")
	}
	if c.FBR.BackoffJitter < 0 || c.FBR.BackoffJitter >= 1 {
		return fmt.Errorf("fbr.backoff_jitter must be in [0, 1), got %f", c.FBR.BackoffJitter)
	}
	if c.FBR.LeaseDuration <= c.FBR.SubmitTimeout {
		return fmt.Errorf("fbr.lease_duration (%s) must exceed fbr.submit_timeout (%s)",
			c.FBR.LeaseDuration, c.FBR.SubmitTimeout)
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Vault.MasterKeyHex == "" && c.Vault.Passphrase == "" {
			return fmt.Errorf("vault.master_key_hex or vault.passphrase is required in production")
		}
		if c.Vault.Passphrase != "" && c.Vault.KeySalt == "" {
			return fmt.Errorf("vault.key_salt is required when vault.passphrase is used")
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
