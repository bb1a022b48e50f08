package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string `env:"BACKEND_ADDR" envDefault:":18111"`

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// JWTSecret verifies the HS256 access tokens issued by the auth provider.
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// AppBaseURL is used to build redirect URLs when a request carries no Origin header.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:5173"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Stripe   StripeConfig
	Gemini   GeminiConfig
	Sheets   SheetsConfig
	Redis    RedisConfig
	FreeRead FreeReadConfig
	Refresh  RefreshConfig

	// TrustProxyHeaders takes the client address from X-Forwarded-For/X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// ChatRatePerMinute bounds AI chat requests per client.
	ChatRatePerMinute int `env:"AI_CHAT_RATE_PER_MINUTE" envDefault:"20"`
}

// StripeConfig holds the payment provider settings. An empty SecretKey is not a
// load error; billing operations report it when they run.
type StripeConfig struct {
	SecretKey    string `env:"STRIPE_SECRET_KEY"`
	APIBase      string `env:"STRIPE_API_BASE" envDefault:"https://api.stripe.com/v1"`
	PriceBasic   string `env:"STRIPE_PRICE_BASIC" envDefault:"price_1S1FNwIIaptXZgSJsu4YI4XZ"`
	PricePremium string `env:"STRIPE_PRICE_PREMIUM" envDefault:"price_1RGbRPIIaptXZgSJLTf0L24w"`
}

type GeminiConfig struct {
	APIKey  string `env:"GEMINI_API_KEY"`
	Model   string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	APIBase string `env:"GEMINI_API_BASE" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
}

type SheetsConfig struct {
	APIKey        string `env:"GOOGLE_SHEETS_API_KEY"`
	SpreadsheetID string `env:"GOOGLE_SHEETS_SPREADSHEET_ID" envDefault:"1r25EvBjJqTxQAn9Y3FhzduwbQ2vwGbfGsLJ2xAWOSyk"`
	Range         string `env:"GOOGLE_SHEETS_RANGE" envDefault:"Sheet1"`
	APIBase       string `env:"GOOGLE_SHEETS_API_BASE" envDefault:"https://sheets.googleapis.com/v4"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

// FreeReadConfig drives the daily free-read gate for non-subscribers.
type FreeReadConfig struct {
	Wait     time.Duration `env:"FREE_READ_WAIT" envDefault:"30s"`
	Timezone string        `env:"FREE_READ_TIMEZONE" envDefault:"America/Sao_Paulo"`
}

// RefreshConfig drives the background refresh of lapsed entitlements.
type RefreshConfig struct {
	Enabled       bool          `env:"ENTITLEMENT_REFRESH_ENABLED" envDefault:"true"`
	Interval      time.Duration `env:"ENTITLEMENT_REFRESH_INTERVAL" envDefault:"15m"`
	BatchSize     int           `env:"ENTITLEMENT_REFRESH_BATCH" envDefault:"50"`
	MaxConcurrent int           `env:"ENTITLEMENT_REFRESH_CONCURRENCY" envDefault:"3"`
	Grace         time.Duration `env:"ENTITLEMENT_REFRESH_GRACE" envDefault:"1h"`
}

const (
	envDatabaseURL   = "DATABASE_URL"
	envServerAddress = "BACKEND_ADDR"
	envJWTSecret     = "AUTH_JWT_SECRET"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDatabase reads only the values needed by tooling that talks to the database.
func LoadDatabase() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("%s is required", envJWTSecret)
	}
	if c.FreeRead.Wait < 0 {
		return errors.New("FREE_READ_WAIT must not be negative")
	}
	if _, err := time.LoadLocation(c.FreeRead.Timezone); err != nil {
		return fmt.Errorf("invalid FREE_READ_TIMEZONE %q: %w", c.FreeRead.Timezone, err)
	}
	if c.ChatRatePerMinute <= 0 {
		return errors.New("AI_CHAT_RATE_PER_MINUTE must be positive")
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return errors.New("ENTITLEMENT_REFRESH_INTERVAL must be positive")
	}
	return nil
}
