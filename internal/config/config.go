// Package config handles loading and validation of service configuration.
// Supports both development (env vars or CONFIG_FILE) and production (Secret Manager) modes.
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
)

// Config holds all service configuration.
// Environment determines whether tenant secrets come from Secret Manager (production)
// or sealed values in the tenant config (development).
type Config struct {
	// Server settings
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`   // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string `json:"gcp_project"`

	// SecretBoxKey is the hex-encoded 32-byte key used to open sealed tenant
	// secrets in development. Never read from CONFIG_FILE.
	SecretBoxKey string `json:"-"`

	Database    DatabaseConfig    `json:"database"`
	Redis       RedisConfig       `json:"redis"`
	Remote      RemoteConfig      `json:"remote"`
	Cache       CacheConfig       `json:"cache"`
	Engine      EngineConfig      `json:"engine"`
	CatalogFile string            `json:"catalog_file"`
	Tenants     map[string]Tenant `json:"tenants"`
}

// DatabaseConfig configures the durable local order store.
type DatabaseConfig struct {
	Path         string `json:"path"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// RedisConfig configures the shared cache tier. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// RemoteConfig configures the remote commerce API client.
type RemoteConfig struct {
	BaseURL       string   `json:"base_url"`
	Timeout       Duration `json:"timeout"`        // per attempt
	MaxRetries    int      `json:"max_retries"`    // retries after the first attempt
	BaseBackoff   Duration `json:"base_backoff"`   // first retry delay
	MaxBackoff    Duration `json:"max_backoff"`    // cap for backoff and Retry-After
	MaxConcurrent int      `json:"max_concurrent"` // outstanding requests, all tenants
	MaxPerTenant  int      `json:"max_per_tenant"` // outstanding requests, one tenant
	QueueWait     Duration `json:"queue_wait"`     // how long a request may wait for a slot
	MinAPIVersion string   `json:"min_api_version"`
	ChromeTLS     bool     `json:"chrome_tls"`
}

// CacheConfig configures TTLs and size bounds of the engine caches.
type CacheConfig struct {
	CatalogTTL    Duration `json:"catalog_ttl"`
	ProductTTL    Duration `json:"product_ttl"`
	CredentialTTL Duration `json:"credential_ttl"`
	MaxEntries    int      `json:"max_entries"`
}

// EngineConfig configures conversation handling.
type EngineConfig struct {
	SessionTTL       Duration `json:"session_ttl"`
	MaxQuantity      int      `json:"max_quantity"`
	ResubmitInterval Duration `json:"resubmit_interval"` // 0 disables background resubmission
}

// Tenant holds per-business settings.
type Tenant struct {
	Subdomain     string             `json:"subdomain"`
	Name          string             `json:"name,omitempty"`
	RemoteCatalog bool               `json:"remote_catalog"`
	RemoteOrders  bool               `json:"remote_orders"`
	Currency      string             `json:"currency"`
	TaxRate       string             `json:"tax_rate"`     // decimal fraction, e.g. "0.08"
	DeliveryFee   string             `json:"delivery_fee"` // major units, e.g. "3.50"
	PromoCodes    map[string]float64 `json:"promo_codes,omitempty"`

	// LegacyMap translates legacy composite ids ("{category}_{index}") to canonical product ids.
	LegacyMap map[string]string `json:"legacy_map,omitempty"`

	// SecretName is the Secret Manager secret holding the API secret (production).
	SecretName string `json:"secret_name,omitempty"`
	// SealedSecret is a base64 secretbox-sealed API secret (development).
	SealedSecret string `json:"sealed_secret,omitempty"`
}

// Duration unmarshals from a Go duration string ("30s") or a number of seconds.
type Duration time.Duration

// UnmarshalJSON accepts "1m30s" style strings and plain seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults returns a configuration with every optional value filled in.
func Defaults() *Config {
	return &Config{
		Port:        "8080",
		Environment: "development",
		LogLevel:    "info",
		Database: DatabaseConfig{
			Path:         "orders.db",
			MaxOpenConns: 8,
			MaxIdleConns: 4,
		},
		Redis: RedisConfig{
			PoolSize: 20,
		},
		Remote: RemoteConfig{
			Timeout:       Duration(10 * time.Second),
			MaxRetries:    3,
			BaseBackoff:   Duration(200 * time.Millisecond),
			MaxBackoff:    Duration(5 * time.Second),
			MaxConcurrent: 64,
			MaxPerTenant:  8,
			QueueWait:     Duration(2 * time.Second),
			MinAPIVersion: "v1.0.0",
		},
		Cache: CacheConfig{
			CatalogTTL:    Duration(10 * time.Minute),
			ProductTTL:    Duration(5 * time.Minute),
			CredentialTTL: Duration(15 * time.Minute),
			MaxEntries:    5000,
		},
		Engine: EngineConfig{
			SessionTTL:       Duration(30 * time.Minute),
			MaxQuantity:      50,
			ResubmitInterval: Duration(time.Minute),
		},
		Tenants: map[string]Tenant{},
	}
}

// Load reads configuration from file or environment.
// Priority: CONFIG_FILE (if set) → ENV vars. Tenant secrets are resolved lazily by
// the credential cache, so Load never talks to Secret Manager except to fetch the
// tenant table itself when TENANTS_SECRET is set in production.
func Load(ctx context.Context) (*Config, error) {
	var cfg *Config
	var err error
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		cfg, err = loadFromFile(configPath)
	} else {
		cfg, err = loadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if secretName := os.Getenv("TENANTS_SECRET"); secretName != "" {
			if err := cfg.loadTenantsFromSecretManager(ctx, secretName); err != nil {
				return nil, fmt.Errorf("loading tenants: %w", err)
			}
		}
	}

	cfg.SecretBoxKey = os.Getenv("SECRET_BOX_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file layered over Defaults.
// Used for local development to avoid many ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Tenants == nil {
		cfg.Tenants = map[string]Tenant{}
	}
	return cfg, nil
}

// loadFromEnv reads configuration from individual environment variables.
func loadFromEnv() (*Config, error) {
	cfg := Defaults()
	cfg.Port = envOrDefault("PORT", cfg.Port)
	cfg.Environment = envOrDefault("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.GCPProject = os.Getenv("GCP_PROJECT")
	cfg.CatalogFile = os.Getenv("CATALOG_FILE")
	cfg.Database.Path = envOrDefault("DATABASE_PATH", cfg.Database.Path)
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Remote.BaseURL = os.Getenv("REMOTE_BASE_URL")
	cfg.Remote.MinAPIVersion = envOrDefault("REMOTE_MIN_API_VERSION", cfg.Remote.MinAPIVersion)
	cfg.Remote.ChromeTLS = os.Getenv("REMOTE_CHROME_TLS") == "true"

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns},
		{"REDIS_DB", &cfg.Redis.DB},
		{"REDIS_POOL_SIZE", &cfg.Redis.PoolSize},
		{"REMOTE_MAX_RETRIES", &cfg.Remote.MaxRetries},
		{"REMOTE_MAX_CONCURRENT", &cfg.Remote.MaxConcurrent},
		{"REMOTE_MAX_PER_TENANT", &cfg.Remote.MaxPerTenant},
		{"CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries},
		{"MAX_QUANTITY", &cfg.Engine.MaxQuantity},
	}
	for _, v := range ints {
		if err := envInt(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"REMOTE_TIMEOUT", &cfg.Remote.Timeout},
		{"REMOTE_BASE_BACKOFF", &cfg.Remote.BaseBackoff},
		{"REMOTE_MAX_BACKOFF", &cfg.Remote.MaxBackoff},
		{"REMOTE_QUEUE_WAIT", &cfg.Remote.QueueWait},
		{"CATALOG_TTL", &cfg.Cache.CatalogTTL},
		{"PRODUCT_TTL", &cfg.Cache.ProductTTL},
		{"CREDENTIAL_TTL", &cfg.Cache.CredentialTTL},
		{"SESSION_TTL", &cfg.Engine.SessionTTL},
		{"RESUBMIT_INTERVAL", &cfg.Engine.ResubmitInterval},
	}
	for _, v := range durations {
		if err := envDuration(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	// Tenant table as JSON, keyed by tenant id
	if tenantsJSON := os.Getenv("TENANTS"); tenantsJSON != "" {
		if err := json.Unmarshal([]byte(tenantsJSON), &cfg.Tenants); err != nil {
			return nil, fmt.Errorf("parsing TENANTS JSON: %w", err)
		}
	}

	return cfg, nil
}

// loadTenantsFromSecretManager fetches the tenant table from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func (c *Config) loadTenantsFromSecretManager(ctx context.Context, name string) error {
	if c.GCPProject == "" {
		return fmt.Errorf("GCP_PROJECT required in production environment")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, name)
	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Tenants); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// validate checks that all configuration values are usable.
func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote max_retries must be >= 0")
	}
	if c.Remote.MaxConcurrent <= 0 || c.Remote.MaxPerTenant <= 0 {
		return fmt.Errorf("remote concurrency bounds must be > 0")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote timeout must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be > 0")
	}
	if c.Engine.MaxQuantity <= 0 {
		return fmt.Errorf("max_quantity must be > 0")
	}

	needsRemote := false
	for id, t := range c.Tenants {
		if t.Subdomain == "" {
			return fmt.Errorf("tenant %s: subdomain is required", id)
		}
		if t.RemoteCatalog || t.RemoteOrders {
			needsRemote = true
			if t.SecretName == "" && t.SealedSecret == "" {
				return fmt.Errorf("tenant %s: secret_name or sealed_secret required for remote access", id)
			}
		}
		if t.TaxRate != "" {
			if _, err := strconv.ParseFloat(t.TaxRate, 64); err != nil {
				return fmt.Errorf("tenant %s: invalid tax_rate: %w", id, err)
			}
		}
		for code, pct := range t.PromoCodes {
			if pct <= 0 || pct > 100 {
				return fmt.Errorf("tenant %s: promo code %s percent must be in (0, 100]", id, code)
			}
		}
	}

	if needsRemote {
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote base_url is required when a tenant enables remote access")
		}
		if _, err := url.Parse(c.Remote.BaseURL); err != nil {
			return fmt.Errorf("invalid remote base_url: %w", err)
		}
	}
	return nil
}

// Tenant returns the settings for a tenant id.
func (c *Config) Tenant(id string) (Tenant, bool) {
	t, ok := c.Tenants[id]
	return t, ok
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// envInt overwrites dst when key is set.
func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

// envDuration overwrites dst when key is set. Accepts "30s" or plain seconds.
func envDuration(key string, dst *Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}
