// Package config handles loading and validation of service configuration.
// Supports both development (env vars, optional .env file) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"square-pos/internal/model"
)

// Config holds all service configuration.
// Environment determines whether merchant settings load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port           string
	Environment    string // "development" or "production"
	LogLevel       string // "debug", "info", "warn", "error"
	AllowedOrigins []string

	// MinClientVersion rejects POS clients older than this semver. Empty disables the gate.
	MinClientVersion string

	// GCP settings (required in production)
	GCPProject string
	MerchantID string

	Square SquareConfig

	// RedisAddr enables Redis cart snapshots; empty keeps them in memory.
	RedisAddr   string
	SnapshotTTL time.Duration

	// PreviewTimeout bounds each background price calculation.
	PreviewTimeout time.Duration

	// Merchant-specific configuration (loaded from secrets in production)
	Merchant MerchantConfig
}

// SquareConfig tunes the outbound Square API client.
type SquareConfig struct {
	BaseURL         string        `json:"base_url"`
	APIVersion      string        `json:"api_version"`
	Timeout         time.Duration `json:"-"`
	RateLimit       float64       `json:"rate_limit"`
	Burst           int           `json:"burst"`
	BreakerFailures uint32        `json:"breaker_failures"`
	BreakerCooldown time.Duration `json:"-"`
	Fingerprint     string        `json:"fingerprint"` // "go" or "chrome"
}

// MerchantConfig contains merchant-specific settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type MerchantConfig struct {
	LocationID string `json:"location_id"`
	Currency   string `json:"currency"`

	// Order-level choices offered to the cashier. Missing uids are generated at load.
	OrderDiscounts []model.OrderDiscountOption `json:"order_discounts,omitempty"`
	OrderTaxes     []model.OrderTaxOption      `json:"order_taxes,omitempty"`
}

// Defaults for settings with no explicit value.
const (
	DefaultPort           = "8080"
	DefaultSquareBaseURL  = "https://connect.squareup.com"
	DefaultSquareVersion  = "2024-10-17"
	DefaultCurrency       = "USD"
	DefaultRateLimit      = 10
	DefaultBurst          = 20
	DefaultBreakerFailure = 5
)

// DefaultOrderDiscounts are offered when none are configured.
func DefaultOrderDiscounts() []model.OrderDiscountOption {
	return []model.OrderDiscountOption{{Name: "Summer Sale: 10% off", Percentage: "10"}}
}

// DefaultOrderTaxes are offered when none are configured.
func DefaultOrderTaxes() []model.OrderTaxOption {
	return []model.OrderTaxOption{{Name: "Trade Tax", Percentage: "11"}}
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV_FILE + ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	// Variables already in the environment win over the file.
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", DefaultPort),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AllowedOrigins:   splitList(os.Getenv("ALLOWED_ORIGINS")),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		MerchantID:       os.Getenv("MERCHANT_ID"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		Square: SquareConfig{
			BaseURL:     envOrDefault("SQUARE_BASE_URL", DefaultSquareBaseURL),
			APIVersion:  envOrDefault("SQUARE_API_VERSION", DefaultSquareVersion),
			Fingerprint: envOrDefault("SQUARE_TLS_FINGERPRINT", "go"),
		},
	}

	var err error
	if cfg.Square.Timeout, err = envDuration("SQUARE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Square.BreakerCooldown, err = envDuration("SQUARE_BREAKER_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SnapshotTTL, err = envDuration("SNAPSHOT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PreviewTimeout, err = envDuration("PREVIEW_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.Square.RateLimit, err = envFloat("SQUARE_RATE_LIMIT", DefaultRateLimit); err != nil {
		return nil, err
	}
	if cfg.Square.Burst, err = envInt("SQUARE_BURST", DefaultBurst); err != nil {
		return nil, err
	}
	failures, err := envInt("SQUARE_BREAKER_FAILURES", DefaultBreakerFailure)
	if err != nil {
		return nil, err
	}
	cfg.Square.BreakerFailures = uint32(failures)

	// Load merchant config based on environment
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.MerchantID == "" {
			return nil, fmt.Errorf("MERCHANT_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading merchant config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port             string         `json:"port"`
		Environment      string         `json:"environment"`
		LogLevel         string         `json:"log_level"`
		AllowedOrigins   []string       `json:"allowed_origins"`
		MinClientVersion string         `json:"min_client_version"`
		RedisAddr        string         `json:"redis_addr"`
		SnapshotTTL      string         `json:"snapshot_ttl"`
		PreviewTimeout   string         `json:"preview_timeout"`
		Square           SquareConfig   `json:"square"`
		SquareTimeout    string         `json:"square_timeout"`
		BreakerCooldown  string         `json:"square_breaker_cooldown"`
		Merchant         MerchantConfig `json:"merchant"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, DefaultPort),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		AllowedOrigins:   fileConfig.AllowedOrigins,
		MinClientVersion: fileConfig.MinClientVersion,
		RedisAddr:        fileConfig.RedisAddr,
		Square:           fileConfig.Square,
		Merchant:         fileConfig.Merchant,
	}

	durations := []struct {
		field string
		raw   string
		def   time.Duration
		dst   *time.Duration
	}{
		{"snapshot_ttl", fileConfig.SnapshotTTL, 24 * time.Hour, &cfg.SnapshotTTL},
		{"preview_timeout", fileConfig.PreviewTimeout, 15 * time.Second, &cfg.PreviewTimeout},
		{"square_timeout", fileConfig.SquareTimeout, 30 * time.Second, &cfg.Square.Timeout},
		{"square_breaker_cooldown", fileConfig.BreakerCooldown, 30 * time.Second, &cfg.Square.BreakerCooldown},
	}
	for _, d := range durations {
		v, err := parseDuration(d.field, d.raw, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches merchant config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{merchant_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.MerchantID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Merchant); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads merchant config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Merchant = MerchantConfig{
		LocationID: os.Getenv("LOCATION_ID"),
		Currency:   os.Getenv("CURRENCY"),
	}

	// Parse order-level catalogs JSON if provided
	if raw := os.Getenv("ORDER_LEVEL_DISCOUNTS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Merchant.OrderDiscounts); err != nil {
			return fmt.Errorf("parsing ORDER_LEVEL_DISCOUNTS JSON: %w", err)
		}
	}
	if raw := os.Getenv("ORDER_LEVEL_TAXES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Merchant.OrderTaxes); err != nil {
			return fmt.Errorf("parsing ORDER_LEVEL_TAXES JSON: %w", err)
		}
	}

	return nil
}

// applyDefaults fills unset optional fields and assigns option uids.
func (c *Config) applyDefaults() {
	c.Square.BaseURL = withDefault(c.Square.BaseURL, DefaultSquareBaseURL)
	c.Square.APIVersion = withDefault(c.Square.APIVersion, DefaultSquareVersion)
	c.Square.Fingerprint = withDefault(c.Square.Fingerprint, "go")
	if c.Square.RateLimit <= 0 {
		c.Square.RateLimit = DefaultRateLimit
	}
	if c.Square.Burst <= 0 {
		c.Square.Burst = DefaultBurst
	}
	if c.Square.BreakerFailures == 0 {
		c.Square.BreakerFailures = DefaultBreakerFailure
	}

	c.Merchant.Currency = strings.ToUpper(withDefault(c.Merchant.Currency, DefaultCurrency))
	if c.Merchant.OrderDiscounts == nil {
		c.Merchant.OrderDiscounts = DefaultOrderDiscounts()
	}
	if c.Merchant.OrderTaxes == nil {
		c.Merchant.OrderTaxes = DefaultOrderTaxes()
	}
	for i := range c.Merchant.OrderDiscounts {
		if c.Merchant.OrderDiscounts[i].UID == "" {
			c.Merchant.OrderDiscounts[i].UID = uuid.NewString()
		}
	}
	for i := range c.Merchant.OrderTaxes {
		if c.Merchant.OrderTaxes[i].UID == "" {
			c.Merchant.OrderTaxes[i].UID = uuid.NewString()
		}
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Merchant.LocationID == "" {
		return fmt.Errorf("location_id is required")
	}
	if len(c.Merchant.Currency) != 3 {
		return fmt.Errorf("currency must be an ISO 4217 code, got %q", c.Merchant.Currency)
	}

	u, err := url.Parse(c.Square.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid square base_url %q", c.Square.BaseURL)
	}

	switch c.Square.Fingerprint {
	case "go", "chrome":
	default:
		return fmt.Errorf("unknown square TLS fingerprint %q (want go or chrome)", c.Square.Fingerprint)
	}

	for _, d := range c.Merchant.OrderDiscounts {
		if _, ok := model.Percentage(d.Percentage).Decimal(); !ok || d.Name == "" {
			return fmt.Errorf("invalid order-level discount %q: percentage %q", d.Name, d.Percentage)
		}
	}
	for _, t := range c.Merchant.OrderTaxes {
		if _, ok := model.Percentage(t.Percentage).Decimal(); !ok || t.Name == "" {
			return fmt.Errorf("invalid order-level tax %q: percentage %q", t.Name, t.Percentage)
		}
	}

	return nil
}

// OrderOptions returns the order-level choices offered to the cashier.
func (c *Config) OrderOptions() model.OrderOptions {
	return model.OrderOptions{
		Discounts: c.Merchant.OrderDiscounts,
		Taxes:     c.Merchant.OrderTaxes,
	}
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), def)
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parsing %s: %q is not a non-negative integer", key, raw)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return f, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
