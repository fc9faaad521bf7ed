package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leafsii/blog-bff/internal/db"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env             string        `mapstructure:"BLOG_ENV"`
	HTTPAddr        string        `mapstructure:"BLOG_HTTP_ADDR"`
	ShutdownTimeout time.Duration `mapstructure:"BLOG_SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"BLOG_REQUEST_TIMEOUT"`

	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Log      LogConfig      `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type DBConfig struct {
	Type           string        `mapstructure:"DB_TYPE"` // "postgres", "memory"
	WriterURL      string        `mapstructure:"DATABASE_URL"`
	ReaderURL      string        `mapstructure:"DATABASE_URL_READER"`
	AuroraWarmup   bool          `mapstructure:"AURORA_WARMUP"`
	MaxRetries     int           `mapstructure:"DB_MAX_RETRIES"`
	RetryBaseDelay time.Duration `mapstructure:"DB_RETRY_BASE_DELAY"`
	ConnectTimeout time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`
	HealthTimeout  time.Duration `mapstructure:"DB_HEALTH_TIMEOUT"`
	MaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	MinConns       int32         `mapstructure:"DB_MIN_CONNS"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"CACHE_ENABLED"`
	RedisAddr string        `mapstructure:"REDIS_ADDR"`
	TTL       time.Duration `mapstructure:"CACHE_TTL"`
}

type LogConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
	File  string `mapstructure:"LOG_FILE"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"BLOG_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"BLOG_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Every key needs a default so Unmarshal picks it up from the environment.
	v.SetDefault("BLOG_ENV", "dev")
	v.SetDefault("BLOG_HTTP_ADDR", "")
	v.SetDefault("BLOG_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("BLOG_REQUEST_TIMEOUT", "15s")
	v.SetDefault("DB_TYPE", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_URL_READER", "")
	v.SetDefault("AURORA_WARMUP", false)
	v.SetDefault("DB_MAX_RETRIES", 5)
	v.SetDefault("DB_RETRY_BASE_DELAY", "1s")
	v.SetDefault("DB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("DB_HEALTH_TIMEOUT", "2s")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("BLOG_RATE_LIMIT_RPM", 600)
	v.SetDefault("BLOG_CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	// Handle array parsing for comma-separated values
	if origins := v.GetString("BLOG_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("BLOG_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills values that depend on other settings.
func (c *Config) applyDefaults() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))

	if c.HTTPAddr == "" {
		if c.IsProd() {
			c.HTTPAddr = ":8082"
		} else {
			c.HTTPAddr = ":3003"
		}
	}
	if c.Log.Level == "" {
		if c.IsProd() {
			c.Log.Level = "info"
		} else {
			c.Log.Level = "debug"
		}
	}
	if c.Database.ReaderURL == "" {
		c.Database.ReaderURL = c.Database.WriterURL
	}
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid BLOG_ENV %q (must be dev or prod)", c.Env)
	}
	switch c.Database.Type {
	case "postgres":
		if c.Database.WriterURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_TYPE=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid DB_TYPE %q (must be postgres or memory)", c.Database.Type)
	}
	if c.Database.RetryBaseDelay <= 0 {
		return fmt.Errorf("DB_RETRY_BASE_DELAY must be positive")
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS and DB_MIN_CONNS must not be negative")
	}
	if c.Security.RateLimitRPM < 0 {
		return fmt.Errorf("BLOG_RATE_LIMIT_RPM must not be negative")
	}
	return nil
}

// Manager converts the database settings into a connection manager config.
func (c DBConfig) Manager() db.Config {
	return db.Config{
		WriterDSN:      c.WriterURL,
		ReaderDSN:      c.ReaderURL,
		MaxRetries:     c.MaxRetries,
		RetryBaseDelay: c.RetryBaseDelay,
		ConnectTimeout: c.ConnectTimeout,
		HealthTimeout:  c.HealthTimeout,
		Warmup:         c.AuroraWarmup,
		MaxConns:       c.MaxConns,
		MinConns:       c.MinConns,
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
