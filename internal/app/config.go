package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (MARKET_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (MARKET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (MARKET_API_KEY_PEPPER)" flag:"api-key-pepper"`

	Stock      StockConfig
	Payment    PaymentConfig
	Pricing    PricingConfig
	Settlement SettlementConfig
	Blob       BlobConfig
	SMTP       SMTPConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Graceful   GracefulConfig
}

// StockConfig bounds reservation lifetimes.
type StockConfig struct {
	// ReservationTTL is the hold window reset on every cart mutation.
	ReservationTTL time.Duration `default:"30m" usage:"Stock reservation hold window" flag:"reservation-ttl"`
	// SweepInterval is how often expired holds are reclaimed.
	SweepInterval time.Duration `default:"1m" usage:"Expired reservation sweep interval" flag:"sweep-interval"`
}

// PaymentConfig bounds the payment state machine.
type PaymentConfig struct {
	MaxAttempts    int           `default:"3" usage:"Failed payment attempts before the cart is blocked" flag:"max-attempts"`
	ProcessingHold time.Duration `default:"2m" usage:"Reservation extension while an attempt is processing" flag:"processing-hold"`
}

// PricingConfig holds the delivery fee rule. Amounts are whole FCFA.
type PricingConfig struct {
	DeliveryFee           int64 `default:"2500" usage:"Flat delivery fee in FCFA" flag:"delivery-fee"`
	FreeDeliveryThreshold int64 `default:"50000" usage:"Subtotal at which delivery becomes free" flag:"free-delivery-threshold"`
}

// SettlementConfig points at the payment provider. An empty URL selects the
// static development gateway.
type SettlementConfig struct {
	URL     string        `usage:"Settlement provider endpoint; empty uses the static dev gateway" flag:"settlement-url"`
	Timeout time.Duration `default:"30s" usage:"Settlement resolution deadline" flag:"settlement-timeout"`
}

// BlobConfig holds the document store settings. An empty endpoint selects the
// in-memory store.
type BlobConfig struct {
	Endpoint  string `usage:"S3-compatible endpoint for artisan documents; empty uses the in-memory store" flag:"blob-endpoint"`
	AccessKey string `flag:"blob-access-key"`
	SecretKey string `flag:"blob-secret-key"`
	Bucket    string `default:"artisan-documents" flag:"blob-bucket"`
	UseSSL    bool   `default:"false" flag:"blob-ssl"`
}

// SMTPConfig holds notification mail settings. An empty host disables
// dispatch.
type SMTPConfig struct {
	Host     string `flag:"smtp-host"`
	Port     int    `default:"587" flag:"smtp-port"`
	From     string `flag:"smtp-from"`
	Username string `flag:"smtp-username"`
	Password string `flag:"smtp-password"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MARKET",
		Files:     []string{"config.yaml", "/etc/market/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set MARKET_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's MARKET_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
