package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aman-churiwal/x402-gateway/internal/models"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Postgres  PostgresConfig  `json:"postgres"`
	Backend   BackendConfig   `json:"backend"`
	Payment   PaymentConfig   `json:"payment"`
	Tiers     []TierConfig    `json:"tiers"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Admin     AdminConfig     `json:"admin"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
	LogLevel    string `json:"log_level"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Enabled selects redis-backed stores; off means single-process
	// in-memory stores.
	Enabled bool `json:"enabled"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type PostgresConfig struct {
	DSN     string `json:"dsn"`
	Enabled bool   `json:"enabled"`
}

type BackendConfig struct {
	Targets    []string `json:"targets"`
	TimeoutSec int      `json:"timeout_seconds"`
	MaxRetries int      `json:"max_retries"`
}

func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.TimeoutSec) * time.Second
}

// PaymentConfig is the static x402 discovery data: where to pay and on
// what network. TrustSecret signs/verifies payment proofs and only ever
// comes from the environment.
type PaymentConfig struct {
	Wallet      string `json:"wallet"`
	Network     string `json:"network"`
	Token       string `json:"token"`
	Facilitator string `json:"facilitator"`
	TrustSecret string `json:"-"`
}

type TierConfig struct {
	Name       string `json:"name"`
	Price      string `json:"price"`
	Currency   string `json:"currency"`
	PeriodDays int    `json:"period_days"`
	Limit      int64  `json:"limit"` // -1 for unlimited
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

type AdminConfig struct {
	JWTSecret string `json:"-"`
	// Bootstrap credentials for the first operator account, env only.
	Email    string `json:"-"`
	Password string `json:"-"`
}

// Load reads the JSON config file and applies environment overrides.
// Secrets are never read from the file.
func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if len(cfg.Backend.Targets) == 0 {
		return nil, fmt.Errorf("at least one backend target is required")
	}
	if cfg.Payment.TrustSecret == "" {
		return nil, fmt.Errorf("TRUST_ROOT_SECRET is required")
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		if host, port, ok := strings.Cut(v, ":"); ok {
			c.Redis.Host, c.Redis.Port = host, port
			c.Redis.Enabled = true
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
		c.Postgres.Enabled = true
	}
	if v := os.Getenv("BACKEND_TARGETS"); v != "" {
		c.Backend.Targets = strings.Split(v, ",")
	}
	if v := os.Getenv("X402_WALLET"); v != "" {
		c.Payment.Wallet = v
	}
	c.Payment.TrustSecret = os.Getenv("TRUST_ROOT_SECRET")
	c.Admin.JWTSecret = os.Getenv("ADMIN_JWT_SECRET")
	c.Admin.Email = os.Getenv("ADMIN_EMAIL")
	c.Admin.Password = os.Getenv("ADMIN_PASSWORD")
}

// TierDefinitions converts the configured tiers into catalog entries.
func (c *Config) TierDefinitions() ([]models.TierDefinition, error) {
	defs := make([]models.TierDefinition, 0, len(c.Tiers))
	for _, tc := range c.Tiers {
		tier, ok := models.ParseTier(tc.Name)
		if !ok {
			return nil, fmt.Errorf("unknown tier %q in config", tc.Name)
		}
		defs = append(defs, models.TierDefinition{
			Tier:       tier,
			Price:      tc.Price,
			Currency:   tc.Currency,
			PeriodDays: tc.PeriodDays,
			Limit:      tc.Limit,
		})
	}
	return defs, nil
}
