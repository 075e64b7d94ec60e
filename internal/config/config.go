package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const ReleaseMode = "release"

type DatabaseOptions struct {
	Host         string `env:"DB_HOST" envDefault:"localhost"`
	Port         string `env:"DB_PORT" envDefault:"5432"`
	User         string `env:"DB_USER" envDefault:"postgres"`
	Password     string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name         string `env:"DB_NAME" envDefault:"postgres"`
	SSLMode      string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

// DSN renders a postgres URL. Credentials are escaped.
func (d DatabaseOptions) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type HTTPOptions struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"15s"`
}

type AuthOptions struct {
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"default_super_secret_key_please_change"`
	Issuer          string        `env:"JWT_ISSUER" envDefault:"orgadmin"`
	AccessTTL       time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL      time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	LoginRatePerMin int           `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginBurst      int           `env:"LOGIN_RATE_BURST" envDefault:"5"`
}

type SeedOptions struct {
	AdminUsername   string `env:"SEED_ADMIN_USERNAME" envDefault:"admin"`
	AdminEmail      string `env:"SEED_ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword   string `env:"SEED_ADMIN_PASSWORD" envDefault:"admin123"`
	RootOrgFullName string `env:"SEED_ROOT_ORG_FULL_NAME" envDefault:"Head Office"`
	RootOrgShort    string `env:"SEED_ROOT_ORG_SHORT_NAME" envDefault:"HQ"`
	RootOrgTIN      string `env:"SEED_ROOT_ORG_TIN" envDefault:"0000000000"`
}

type JobOptions struct {
	TokenPurgeSpec string `env:"TOKEN_PURGE_CRON" envDefault:"@every 10m"`
}

type TelemetryOptions struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsEnabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	MetricsPath    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
	OTelEnabled    bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"orgadmin"`
}

type Config struct {
	Database  DatabaseOptions
	HTTP      HTTPOptions
	Auth      AuthOptions
	Seed      SeedOptions
	Jobs      JobOptions
	Telemetry TelemetryOptions
	GinMode   string `env:"GIN_MODE" envDefault:"debug"`
}

// Load reads the given .env files (missing ones are skipped) and then the
// process environment. It reports whether any file was found.
func Load(envFiles ...string) (*Config, bool, error) {
	found := false
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, false, fmt.Errorf("load %s: %w", f, err)
		}
		found = true
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, found, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return cfg, found, nil
}

func (c *Config) Validate() error {
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return errors.New("JWT_REFRESH_TTL must not be shorter than JWT_ACCESS_TTL")
	}
	if c.GinMode == ReleaseMode && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultSecret) {
		return errors.New("JWT_SECRET must be set in release mode")
	}
	if c.Auth.LoginRatePerMin <= 0 || c.Auth.LoginBurst <= 0 {
		return errors.New("LOGIN_RATE_PER_MINUTE and LOGIN_RATE_BURST must be positive")
	}
	return nil
}

const defaultSecret = "default_super_secret_key_please_change"
