// Package config handles loading and validation of service configuration.
// Supports both development (env vars, optional .env) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"

	"atd-sync/internal/pricing"
	"atd-sync/internal/soap"
	"atd-sync/internal/transport"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort          = "8080"
	DefaultSecretID      = "atd-sync"
	DefaultSweepLookback = 30 * 24 * time.Hour
	DefaultSOAPTimeout   = 60 * time.Second
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretID   string

	// Storage. An empty DatabaseURL selects the in-memory store, seeded
	// from StoreSeedFile when set.
	DatabaseURL   string
	StoreSeedFile string

	// Admin surface
	AdminToken   string
	OrderEditURL string

	// Tracking sweep. A zero interval disables the in-process schedule.
	SweepInterval time.Duration
	SweepLookback time.Duration

	ATD         ATDConfig
	WooCommerce WooCommerceConfig

	// Pricing is nil when no table is configured; prices are then left alone.
	Pricing *pricing.Table
}

// ATDConfig is the distributor connection. Credentials may be missing; the
// service then runs unconfigured and reports what is absent.
type ATDConfig struct {
	Username          string  `json:"username"`
	Password          string  `json:"password"`
	APIKey            string  `json:"api_key"`
	ClientID          string  `json:"client_id,omitempty"`
	LocationNumber    string  `json:"location_number,omitempty"`
	ProductsURL       string  `json:"products_url,omitempty"`
	OrderStatusURL    string  `json:"order_status_url,omitempty"`
	PlaceOrderURL     string  `json:"place_order_url,omitempty"`
	Transport         string  `json:"transport,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	TimeoutSeconds    int     `json:"timeout_seconds,omitempty"`
}

// WooCommerceConfig enables publishing tracking and completion to the
// storefront REST API. All three fields or none.
type WooCommerceConfig struct {
	StoreURL  string `json:"store_url"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Enabled reports whether any WooCommerce setting is present.
func (w WooCommerceConfig) Enabled() bool {
	return w.StoreURL != "" || w.APIKey != "" || w.APISecret != ""
}

// secrets is the production Secret Manager payload.
type secrets struct {
	Username    string            `json:"username"`
	Password    string            `json:"password"`
	APIKey      string            `json:"api_key"`
	AdminToken  string            `json:"admin_token,omitempty"`
	WooCommerce WooCommerceConfig `json:"woocommerce"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Outside production a .env file (ENV_FILE, default ".env") is loaded first;
// variables already set in the process win.
func Load(ctx context.Context) (*Config, error) {
	if os.Getenv("ENVIRONMENT") != "production" {
		if err := loadDotEnv(envOrDefault("ENV_FILE", ".env")); err != nil {
			return nil, err
		}
	}

	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:          envOrDefault("PORT", DefaultPort),
		Environment:   envOrDefault("ENVIRONMENT", "development"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		GCPProject:    os.Getenv("GCP_PROJECT"),
		SecretID:      envOrDefault("SECRET_ID", DefaultSecretID),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StoreSeedFile: os.Getenv("STORE_SEED_FILE"),
		OrderEditURL:  os.Getenv("ORDER_EDIT_URL"),
	}

	var err error
	if cfg.SweepInterval, err = envDuration("SWEEP_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.SweepLookback, err = envDuration("SWEEP_LOOKBACK", DefaultSweepLookback); err != nil {
		return nil, err
	}
	if err := cfg.loadATDFromEnv(); err != nil {
		return nil, err
	}

	if path := os.Getenv("PRICING_FILE"); path != "" {
		if cfg.Pricing, err = pricing.LoadFile(path); err != nil {
			return nil, err
		}
	}

	// Secrets come from Secret Manager in production, env otherwise
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadSecretsFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads a .env file when one exists.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port          string            `json:"port"`
		Environment   string            `json:"environment"`
		LogLevel      string            `json:"log_level"`
		DatabaseURL   string            `json:"database_url"`
		StoreSeedFile string            `json:"store_seed_file"`
		AdminToken    string            `json:"admin_token"`
		OrderEditURL  string            `json:"order_edit_url"`
		SweepInterval string            `json:"sweep_interval"`
		SweepLookback string            `json:"sweep_lookback"`
		PricingFile   string            `json:"pricing_file"`
		Pricing       *pricing.Table    `json:"pricing"`
		ATD           ATDConfig         `json:"atd"`
		WooCommerce   WooCommerceConfig `json:"woocommerce"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:          withDefault(fileConfig.Port, DefaultPort),
		Environment:   withDefault(fileConfig.Environment, "development"),
		LogLevel:      withDefault(fileConfig.LogLevel, "info"),
		SecretID:      DefaultSecretID,
		DatabaseURL:   fileConfig.DatabaseURL,
		StoreSeedFile: fileConfig.StoreSeedFile,
		AdminToken:    fileConfig.AdminToken,
		OrderEditURL:  fileConfig.OrderEditURL,
		ATD:           fileConfig.ATD,
		WooCommerce:   fileConfig.WooCommerce,
		Pricing:       fileConfig.Pricing,
	}

	if cfg.SweepInterval, err = parseDuration("sweep_interval", fileConfig.SweepInterval, 0); err != nil {
		return nil, err
	}
	if cfg.SweepLookback, err = parseDuration("sweep_lookback", fileConfig.SweepLookback, DefaultSweepLookback); err != nil {
		return nil, err
	}

	switch {
	case fileConfig.PricingFile != "" && fileConfig.Pricing != nil:
		return nil, fmt.Errorf("set pricing or pricing_file, not both")
	case fileConfig.PricingFile != "":
		if cfg.Pricing, err = pricing.LoadFile(fileConfig.PricingFile); err != nil {
			return nil, err
		}
	case cfg.Pricing != nil:
		if err := cfg.Pricing.Validate(); err != nil {
			return nil, fmt.Errorf("invalid pricing: %w", err)
		}
	}

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

// loadFromSecretManager fetches credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecrets(result.Payload.Data)
}

// applySecrets overlays the secret JSON payload on c.
func (c *Config) applySecrets(data []byte) error {
	var s secrets
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.ATD.Username = s.Username
	c.ATD.Password = s.Password
	c.ATD.APIKey = s.APIKey
	c.WooCommerce = s.WooCommerce
	if s.AdminToken != "" {
		c.AdminToken = s.AdminToken
	}
	return nil
}

// loadATDFromEnv reads the non-secret distributor settings.
func (c *Config) loadATDFromEnv() error {
	c.ATD = ATDConfig{
		ClientID:       os.Getenv("ATD_CLIENT_ID"),
		LocationNumber: os.Getenv("ATD_LOCATION_NUMBER"),
		ProductsURL:    os.Getenv("ATD_PRODUCTS_URL"),
		OrderStatusURL: os.Getenv("ATD_ORDER_STATUS_URL"),
		PlaceOrderURL:  os.Getenv("ATD_PLACE_ORDER_URL"),
		Transport:      os.Getenv("ATD_TRANSPORT"),
	}
	if v := os.Getenv("ATD_REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ATD_REQUESTS_PER_SECOND %q", v)
		}
		c.ATD.RequestsPerSecond = rps
	}
	if v := os.Getenv("ATD_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ATD_TIMEOUT_SECONDS %q", v)
		}
		c.ATD.TimeoutSeconds = n
	}
	return nil
}

// loadSecretsFromEnv reads credentials from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadSecretsFromEnv() {
	c.ATD.Username = os.Getenv("ATD_USERNAME")
	c.ATD.Password = os.Getenv("ATD_PASSWORD")
	c.ATD.APIKey = os.Getenv("ATD_API_KEY")
	c.AdminToken = os.Getenv("ADMIN_TOKEN")
	c.WooCommerce = WooCommerceConfig{
		StoreURL:  os.Getenv("WOOCOMMERCE_STORE_URL"),
		APIKey:    os.Getenv("WOOCOMMERCE_API_KEY"),
		APISecret: os.Getenv("WOOCOMMERCE_API_SECRET"),
	}
}

// validate checks settings that would otherwise fail at first use.
// Missing ATD credentials are not an error.
func (c *Config) validate() error {
	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("environment must be development or production, got %q", c.Environment)
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if _, err := transport.ParseKind(c.ATD.Transport); err != nil {
		return err
	}
	if c.ATD.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.ATD.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	for name, raw := range map[string]string{
		"products_url":     c.ATD.ProductsURL,
		"order_status_url": c.ATD.OrderStatusURL,
		"place_order_url":  c.ATD.PlaceOrderURL,
	} {
		if raw == "" {
			continue
		}
		if err := checkURL(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative")
	}
	if c.SweepLookback <= 0 {
		return fmt.Errorf("sweep_lookback must be positive")
	}
	if c.OrderEditURL != "" && strings.Count(c.OrderEditURL, "%d") != 1 {
		return fmt.Errorf("order_edit_url must contain exactly one %%d")
	}

	if w := c.WooCommerce; w.Enabled() {
		if w.StoreURL == "" {
			return fmt.Errorf("woocommerce store_url is required")
		}
		if w.APIKey == "" {
			return fmt.Errorf("woocommerce api_key is required")
		}
		if w.APISecret == "" {
			return fmt.Errorf("woocommerce api_secret is required")
		}
		if err := checkURL(w.StoreURL); err != nil {
			return fmt.Errorf("invalid woocommerce store_url: %w", err)
		}
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// SOAPConfig builds the distributor client configuration. The caller
// supplies the HTTP client, observer and logger.
func (c *Config) SOAPConfig() soap.Config {
	return soap.Config{
		Credentials: soap.Credentials{
			Username: c.ATD.Username,
			Password: c.ATD.Password,
			APIKey:   c.ATD.APIKey,
		},
		ClientID:          c.ATD.ClientID,
		LocationNumber:    c.ATD.LocationNumber,
		ProductsURL:       c.ATD.ProductsURL,
		OrderStatusURL:    c.ATD.OrderStatusURL,
		PlaceOrderURL:     c.ATD.PlaceOrderURL,
		RequestsPerSecond: c.ATD.RequestsPerSecond,
	}
}

// TransportKind returns the validated outbound transport selection.
func (c *Config) TransportKind() transport.Kind {
	kind, _ := transport.ParseKind(c.ATD.Transport)
	return kind
}

// SOAPTimeout is the per-request timeout for distributor calls.
func (c *Config) SOAPTimeout() time.Duration {
	if c.ATD.TimeoutSeconds > 0 {
		return time.Duration(c.ATD.TimeoutSeconds) * time.Second
	}
	return DefaultSOAPTimeout
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

// parseDuration accepts Go durations ("15m", "720h"). Empty returns def.
func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}
