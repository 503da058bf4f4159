package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Request   RequestConfig   `mapstructure:"request"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Retention RetentionConfig `mapstructure:"retention"`
	API       APIConfig       `mapstructure:"api"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Inbound   InboundConfig   `mapstructure:"inbound"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections" validate:"min=1"`
	MinConnections  int           `mapstructure:"min_connections" validate:"min=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RateLimitConfig holds the outbound request ceilings for the text-generation service
type RateLimitConfig struct {
	MaxRPM   int           `mapstructure:"max_rpm" validate:"min=1"`
	MaxRPH   int           `mapstructure:"max_rph" validate:"min=1"`
	Cooldown time.Duration `mapstructure:"cooldown" validate:"min=0"`
}

// QueueConfig bounds the persistent queue
type QueueConfig struct {
	MaxSize        int `mapstructure:"max_size" validate:"min=1"`
	ChunkSizeLimit int `mapstructure:"chunk_size_limit" validate:"min=1"`
}

// RequestConfig controls calls to the text-generation service
type RequestConfig struct {
	MaxRetries    int           `mapstructure:"max_retries" validate:"min=1"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"min=0"`
	BackoffFactor float64       `mapstructure:"backoff_factor" validate:"gt=0"`
	BackoffUnit   time.Duration `mapstructure:"backoff_unit" validate:"min=0"`
}

// DispatchConfig controls the dispatch loop
type DispatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ChunkTimeout time.Duration `mapstructure:"chunk_timeout" validate:"min=0"`
}

// CallbackConfig controls webhook delivery
type CallbackConfig struct {
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	AuthToken      string        `mapstructure:"auth_token"`
	RetryLimit     int           `mapstructure:"retry_limit" validate:"min=1"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" validate:"min=0"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// SweeperConfig controls the completed-job sweep
type SweeperConfig struct {
	Interval               time.Duration `mapstructure:"interval"`
	MaxConcurrentCallbacks int           `mapstructure:"max_concurrent_callbacks" validate:"min=1"`
}

// RetentionConfig controls purging of completed chunk results
type RetentionConfig struct {
	Days     int           `mapstructure:"days" validate:"min=0"`
	Interval time.Duration `mapstructure:"interval"`
}

// APIConfig seeds the text-generation credentials when none are stored in the database
type APIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	TokenLimit int    `mapstructure:"token_limit" validate:"min=0"`
}

// AdminConfig holds the key guarding the configuration endpoints
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// InboundConfig throttles the public HTTP surface
type InboundConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int `mapstructure:"burst" validate:"min=0"`
}

// StorageConfig holds result archive configuration
type StorageConfig struct {
	Type     string   `mapstructure:"type" validate:"oneof=none local s3"`
	BasePath string   `mapstructure:"base_path"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config holds the object storage settings used when storage.type is s3
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CacheConfig holds the final-result cache settings; an empty RedisURL disables it
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format" validate:"oneof=json pretty"`
	NoColor bool   `mapstructure:"no_color"`
}

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CHUNK_SERVICE")
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags on the loaded configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// loadEnvFile loads the first .env file found into the process environment
func loadEnvFile() error {
	for _, dir := range []string{".", "./config"} {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("no .env file found")
}

// bindEnvVars binds the unprefixed environment variables the service has always honoured
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	v.BindEnv("logging.level", "LOG_LEVEL")

	v.BindEnv("admin.api_key", "ADMIN_API_ACCESS_KEY")
	v.BindEnv("callback.allowed_domains", "ALLOWED_CALLBACK_DOMAINS")
	v.BindEnv("callback.auth_token", "CALLBACK_AUTH_TOKEN")

	v.BindEnv("api.api_key", "CLAUDE_API_KEY")
	v.BindEnv("api.base_url", "CLAUDE_BASE_URL")
	v.BindEnv("api.model", "CLAUDE_MODEL")

	v.BindEnv("cache.redis_url", "REDIS_URL")
	v.BindEnv("storage.base_path", "STORAGE_PATH")
	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("rate_limit.max_rpm", 60)
	v.SetDefault("rate_limit.max_rph", 1000)
	v.SetDefault("rate_limit.cooldown", 30*time.Second)

	v.SetDefault("queue.max_size", 1000)
	v.SetDefault("queue.chunk_size_limit", 5000)

	v.SetDefault("request.max_retries", 3)
	v.SetDefault("request.timeout", 30*time.Second)
	v.SetDefault("request.backoff_factor", 1.5)
	v.SetDefault("request.backoff_unit", time.Second)

	v.SetDefault("dispatch.poll_interval", 30*time.Second)
	v.SetDefault("dispatch.chunk_timeout", 10*time.Minute)

	v.SetDefault("callback.allowed_domains", []string{"*"})
	v.SetDefault("callback.retry_limit", 3)
	v.SetDefault("callback.retry_delay", 5*time.Second)
	v.SetDefault("callback.timeout", 10*time.Second)

	v.SetDefault("sweeper.interval", 10*time.Second)
	v.SetDefault("sweeper.max_concurrent_callbacks", 4)

	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.interval", 24*time.Hour)

	v.SetDefault("api.base_url", "https://api.anthropic.com/v1/messages")
	v.SetDefault("api.token_limit", 1024)

	v.SetDefault("inbound.requests_per_second", 50)
	v.SetDefault("inbound.burst", 100)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_path", "./data/results")

	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chunk-service")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}
