package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Minio     MinioConfig     `mapstructure:"minio"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Assets    AssetsConfig    `mapstructure:"assets"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	BodyLimitMB  int `mapstructure:"body_limit_mb"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Enabled      bool   `mapstructure:"enabled"`
}

// MinioConfig locates the bucket holding reading images. PublicURL is the
// base that stored object paths are appended to.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
	Folder    string `mapstructure:"folder"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type WeatherConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	TTLSeconds     int     `mapstructure:"ttl_seconds"`
}

type TilesConfig struct {
	URLTemplate string `mapstructure:"url_template"`
	Zoom        int    `mapstructure:"zoom"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type AssetsConfig struct {
	PendingTTLHours int `mapstructure:"pending_ttl_hours"`
	StaleMinutes    int `mapstructure:"stale_minutes"`
}

// Load reads configuration from .env, an optional config file and
// environment variables, in increasing order of precedence.
func Load(service string) (*Config, error) {
	_ = godotenv.Load() // OK if missing

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.body_limit_mb", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agri")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "agrimonitor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "agrimonitor")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.public_url", "http://localhost:9000")
	v.SetDefault("minio.folder", "field_data")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash-latest")
	v.SetDefault("gemini.timeout_seconds", 30)
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("weather.timeout_seconds", 10)
	v.SetDefault("weather.rps", 1.0)
	v.SetDefault("weather.burst", 5)
	v.SetDefault("weather.ttl_seconds", 900)
	v.SetDefault("tiles.url_template", "https://mt1.google.com/vt/lyrs=y&x={x}&y={y}&z={z}")
	v.SetDefault("tiles.zoom", 17)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "asset-reattach")
	v.SetDefault("assets.pending_ttl_hours", 72)
	v.SetDefault("assets.stale_minutes", 15)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: AGRIMONITOR_GEMINI_API_KEY → gemini.api_key
	v.SetEnvPrefix("AGRIMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
// Missing collaborator credentials are not errors: the service degrades.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.BodyLimitMB <= 0 {
		errs = append(errs, "server.body_limit_mb must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Minio.Bucket == "" {
		errs = append(errs, "minio.bucket is required")
	}
	if c.Weather.TTLSeconds <= 0 {
		errs = append(errs, "weather.ttl_seconds must be positive")
	}
	if c.Weather.RPS <= 0 {
		errs = append(errs, "weather.rps must be positive")
	}
	if c.Weather.Burst <= 0 {
		errs = append(errs, "weather.burst must be positive")
	}
	if c.Tiles.Zoom < 1 || c.Tiles.Zoom > 22 {
		errs = append(errs, fmt.Sprintf("tiles.zoom must be 1-22, got %d", c.Tiles.Zoom))
	}
	if !strings.Contains(c.Tiles.URLTemplate, "{x}") || !strings.Contains(c.Tiles.URLTemplate, "{y}") {
		errs = append(errs, "tiles.url_template must contain {x} and {y}")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
