package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
	"github.com/spf13/viper"
)

// Config holds all configuration for the pdfgate server and CLI.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Quota    QuotaConfig
	Engine   EngineConfig
	Firebase FirebaseConfig
	Stripe   StripeConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	TrustProxy     bool
	CORSOrigins    []string
	MaxUploadBytes int64
	UpgradeURL     string
	AdminToken     string
	PublicURL      string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

// RedisConfig is optional. Without a URL the burst throttle runs in memory.
type RedisConfig struct {
	URL string
}

type QuotaConfig struct {
	Mode           string
	FailOpen       bool
	RetryAfter     time.Duration
	BurstPerMinute int
	MonthlyLimits  map[models.Plan]int
}

type EngineConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// FirebaseConfig enables the identity-verified account endpoints when
// ProjectID is set.
type FirebaseConfig struct {
	ProjectID string
	JWKSURL   string
}

// StripeConfig enables billing endpoints when SecretKey is set.
type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	APIBaseURL        string
	PortalReturnURL   string
	PriceToPlan       map[string]models.Plan
	RequestsPerSecond float64
	WebhookTolerance  time.Duration
}

const defaultPricePlans = "price_1T1gglJW4PGBAbQ7Ftp5pcxA:starter," +
	"price_1T1ggvJW4PGBAbQ7BqWrSsiX:pro," +
	"price_1T1ggwJW4PGBAbQ7B1JyhAW1:business"

var validQuotaModes = map[string]bool{
	"soft":   true,
	"strict": true,
}

// Load reads configuration from a .env file (if present), an optional
// config file named by PDFGATE_CONFIG, and environment variables, and
// returns a validated Config.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	limits, err := monthlyLimits(v)
	if err != nil {
		return nil, err
	}
	prices, err := parsePricePlans(v.GetString("STRIPE_PRICE_PLANS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("PDFGATE_PORT"),
			Env:            v.GetString("PDFGATE_ENV"),
			TrustProxy:     v.GetBool("PDFGATE_TRUST_PROXY"),
			CORSOrigins:    splitList(v.GetString("PDFGATE_CORS_ORIGINS")),
			MaxUploadBytes: v.GetInt64("PDFGATE_MAX_UPLOAD_BYTES"),
			UpgradeURL:     v.GetString("PDFGATE_UPGRADE_URL"),
			AdminToken:     v.GetString("PDFGATE_ADMIN_TOKEN"),
			PublicURL:      v.GetString("PDFGATE_PUBLIC_URL"),
		},
		Database: databaseConfig(v),
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Quota: QuotaConfig{
			Mode:           v.GetString("QUOTA_MODE"),
			FailOpen:       v.GetBool("QUOTA_FAIL_OPEN"),
			RetryAfter:     v.GetDuration("QUOTA_RETRY_AFTER"),
			BurstPerMinute: v.GetInt("QUOTA_BURST_PER_MINUTE"),
			MonthlyLimits:  limits,
		},
		Engine: EngineConfig{
			BaseURL:  strings.TrimRight(v.GetString("DOCUMENT_ENGINE_URL"), "/"),
			APIToken: v.GetString("DOCUMENT_ENGINE_TOKEN"),
			Timeout:  v.GetDuration("DOCUMENT_ENGINE_TIMEOUT"),
		},
		Firebase: FirebaseConfig{
			ProjectID: v.GetString("FIREBASE_PROJECT_ID"),
			JWKSURL:   v.GetString("FIREBASE_JWKS_URL"),
		},
		Stripe: StripeConfig{
			SecretKey:         v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:     v.GetString("STRIPE_WEBHOOK_SECRET"),
			APIBaseURL:        strings.TrimRight(v.GetString("STRIPE_API_BASE_URL"), "/"),
			PortalReturnURL:   v.GetString("STRIPE_PORTAL_RETURN_URL"),
			PriceToPlan:       prices,
			RequestsPerSecond: v.GetFloat64("STRIPE_REQUESTS_PER_SECOND"),
			WebhookTolerance:  v.GetDuration("STRIPE_WEBHOOK_TOLERANCE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StorageConfig is the subset of Config needed by the admin CLI, which
// never talks to the document engine.
type StorageConfig struct {
	Database      DatabaseConfig
	MonthlyLimits map[models.Plan]int
}

// LoadStorage reads only the database and plan settings.
func LoadStorage() (*StorageConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	limits, err := monthlyLimits(v)
	if err != nil {
		return nil, err
	}
	cfg := &StorageConfig{Database: databaseConfig(v), MonthlyLimits: limits}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func newViper() (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("PDFGATE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

func databaseConfig(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		URL:             v.GetString("DATABASE_URL"),
		MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
		ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
		MigrationsDir:   v.GetString("DATABASE_MIGRATIONS_DIR"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PDFGATE_PORT", 8080)
	v.SetDefault("PDFGATE_ENV", "development")
	v.SetDefault("PDFGATE_CORS_ORIGINS", "*")
	v.SetDefault("PDFGATE_MAX_UPLOAD_BYTES", 50<<20)
	v.SetDefault("PDFGATE_UPGRADE_URL", "https://www.editpdfree.com/api#pricing")
	v.SetDefault("PDFGATE_PUBLIC_URL", "http://localhost:8080")

	v.SetDefault("DATABASE_URL", "pdfgate.db")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DATABASE_MIGRATIONS_DIR", "migrations")

	v.SetDefault("QUOTA_MODE", "soft")
	v.SetDefault("QUOTA_FAIL_OPEN", false)
	v.SetDefault("QUOTA_RETRY_AFTER", time.Hour)
	v.SetDefault("QUOTA_BURST_PER_MINUTE", 120)

	v.SetDefault("DOCUMENT_ENGINE_TIMEOUT", 60*time.Second)

	v.SetDefault("FIREBASE_JWKS_URL",
		"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com")

	v.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	v.SetDefault("STRIPE_PORTAL_RETURN_URL", "https://api.editpdfree.com")
	v.SetDefault("STRIPE_PRICE_PLANS", defaultPricePlans)
	v.SetDefault("STRIPE_REQUESTS_PER_SECOND", 20.0)
	v.SetDefault("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PDFGATE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("PDFGATE_MAX_UPLOAD_BYTES must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if !validQuotaModes[c.Quota.Mode] {
		return fmt.Errorf("QUOTA_MODE must be one of soft, strict; got %q", c.Quota.Mode)
	}
	if c.Quota.RetryAfter <= 0 {
		return fmt.Errorf("QUOTA_RETRY_AFTER must be positive")
	}
	if c.Quota.BurstPerMinute < 0 {
		return fmt.Errorf("QUOTA_BURST_PER_MINUTE must not be negative, got %d", c.Quota.BurstPerMinute)
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("DOCUMENT_ENGINE_URL is required")
	}
	if !isHTTPURL(c.Engine.BaseURL) {
		return fmt.Errorf("DOCUMENT_ENGINE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("DOCUMENT_ENGINE_TIMEOUT must be positive")
	}

	if c.Stripe.SecretKey != "" && !isHTTPURL(c.Stripe.APIBaseURL) {
		return fmt.Errorf("STRIPE_API_BASE_URL must start with http:// or https://, got %q", c.Stripe.APIBaseURL)
	}
	if c.Stripe.RequestsPerSecond <= 0 {
		return fmt.Errorf("STRIPE_REQUESTS_PER_SECOND must be positive")
	}

	return nil
}

// monthlyLimits collects PLAN_<NAME>_MONTHLY_LIMIT overrides.
func monthlyLimits(v *viper.Viper) (map[models.Plan]int, error) {
	out := map[models.Plan]int{}
	for _, p := range models.Plans {
		key := "PLAN_" + strings.ToUpper(string(p)) + "_MONTHLY_LIMIT"
		raw := v.GetString(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
		}
		out[p] = n
	}
	return out, nil
}

// parsePricePlans parses "price_id:plan,price_id:plan".
func parsePricePlans(raw string) (map[string]models.Plan, error) {
	out := map[string]models.Plan{}
	for _, pair := range splitList(raw) {
		id, name, ok := strings.Cut(pair, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("STRIPE_PRICE_PLANS entry %q must be price_id:plan", pair)
		}
		p, err := models.ParsePlan(name)
		if err != nil {
			return nil, fmt.Errorf("STRIPE_PRICE_PLANS: %w", err)
		}
		out[id] = p
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
