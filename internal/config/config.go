package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full gateway configuration. Values come from the process
// environment, optionally seeded from a .env file.
type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	Logging    LoggingConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Pricing    PricingConfig
	Settlement SettlementConfig
	Signing    SigningConfig

	CatalogPath string `env:"TOKEN_CATALOG_PATH"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int           `env:"SERVER_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS"`
	RateLimitPerSec int           `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=40"`
	AuditLogPath    string        `env:"AUDIT_LOG_PATH"`
	SessionCacheTTL time.Duration `env:"SESSION_CACHE_TTL,default=30s"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Origins splits the comma separated CORS origin list.
func (s ServerConfig) Origins() []string {
	return splitList(s.AllowedOrigins)
}

// BackendConfig points at the Splito REST backend.
type BackendConfig struct {
	BaseURL      string        `env:"SPLITO_API_URL,default=http://localhost:8000"`
	ServiceToken string        `env:"SPLITO_SERVICE_TOKEN"`
	Timeout      time.Duration `env:"SPLITO_API_TIMEOUT,default=15s"`
	MaxRetries   int           `env:"SPLITO_API_MAX_RETRIES,default=2"`
	SessionName  string        `env:"SPLITO_SESSION_COOKIE,default=splito.session"`
	RateLimit    float64       `env:"SPLITO_API_RATE_LIMIT,default=0"`
	RateBurst    int           `env:"SPLITO_API_RATE_BURST,default=0"`
}

// LoggingConfig mirrors logger.LoggingConfig.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

// DatabaseConfig selects the settlement store. An empty DSN keeps records in
// memory.
type DatabaseConfig struct {
	Driver          string `env:"DATABASE_DRIVER,default=postgres"`
	DSN             string `env:"DATABASE_URL"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300"`
	Migrate         bool   `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig enables the shared cache and invalidation fan-out.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
	Channel  string `env:"REDIS_EVENTS_CHANNEL,default=splito:invalidate"`
}

// CacheConfig sets read-through cache lifetimes.
type CacheConfig struct {
	BalanceTTL time.Duration `env:"BALANCE_CACHE_TTL,default=30s"`
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// PricingConfig tunes the price converter.
type PricingConfig struct {
	QuoteTTL     time.Duration `env:"PRICING_QUOTE_TTL,default=60s"`
	MaxParallel  int           `env:"PRICING_MAX_PARALLEL,default=8"`
	WarmSchedule string        `env:"PRICING_WARM_SCHEDULE,default=@every 1m"`
	WarmPairs    string        `env:"PRICING_WARM_PAIRS"` // "stellar:USD,aptos:EUR"
}

// Pairs parses WarmPairs into token/currency pairs.
func (p PricingConfig) Pairs() [][2]string {
	var out [][2]string
	for _, item := range splitList(p.WarmPairs) {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out = append(out, [2]string{parts[0], strings.ToUpper(parts[1])})
	}
	return out
}

// SettlementConfig tunes the confirmation poller.
type SettlementConfig struct {
	PollInterval   time.Duration `env:"SETTLEMENT_POLL_INTERVAL,default=5s"`
	ConfirmTimeout time.Duration `env:"SETTLEMENT_CONFIRM_TIMEOUT,default=10m"`
}

// SigningConfig lists keys for wallets the gateway signs for itself
// (treasury / organization wallets). Client wallets sign externally.
type SigningConfig struct {
	StellarSeeds string `env:"STELLAR_SIGNER_SEEDS"` // comma separated S... seeds
	AptosKeys    string `env:"APTOS_SIGNER_KEYS"`    // comma separated hex ed25519 seeds
}

// StellarSeedList splits the configured seeds.
func (s SigningConfig) StellarSeedList() []string { return splitList(s.StellarSeeds) }

// AptosKeyList splits the configured keys.
func (s SigningConfig) AptosKeyList() []string { return splitList(s.AptosKeys) }

// Load reads .env (when present) and decodes the environment.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("SPLITO_API_URL is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port)
	}
	if c.Pricing.MaxParallel <= 0 {
		c.Pricing.MaxParallel = 8
	}
	if c.Pricing.QuoteTTL <= 0 {
		c.Pricing.QuoteTTL = time.Minute
	}
	if c.Cache.BalanceTTL <= 0 {
		c.Cache.BalanceTTL = 30 * time.Second
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("SPLITO_API_RATE_LIMIT must not be negative")
	}
	if c.Settlement.PollInterval <= 0 {
		c.Settlement.PollInterval = 5 * time.Second
	}
	if c.Settlement.ConfirmTimeout <= 0 {
		c.Settlement.ConfirmTimeout = 10 * time.Minute
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
