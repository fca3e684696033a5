package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	// Pricing.
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	Currency              string
	PromoCodes            string

	// Sessions.
	SessionTTL           time.Duration
	SessionSnapshotTTL   time.Duration
	SessionSweepInterval time.Duration
	CookieSecure         bool
	RedisPrefix          string

	// Checkout.
	CheckoutServiceURL  string
	CheckoutSecret      string
	CheckoutTimeout     time.Duration
	CheckoutMaxAttempts int
	CheckoutBackoff     time.Duration
	// CheckoutLockTTL also bounds the submit. It is raised to the gateway's
	// retry budget (attempts x timeout plus backoff) when shorter.
	CheckoutLockTTL     time.Duration
	CheckoutClearCart   bool
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	// Edge protection.
	RateLimitGlobal  string
	PromoLimitWindow time.Duration
	PromoLimitMax    int
	BodyLimitBytes   int64
	CSRFEnabled      bool
	SecurityHeaders  bool
	HSTSEnabled      bool

	// Events.
	EventWebhookURL     string
	EventWebhookSecret  string
	EventWebhookTimeout time.Duration
	QueueName           string
	QueueConcurrency    int
	QueueMaxRetry       int

	// Observability.
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsEnabled   bool
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	taxRate, err := parseDecimal(k.String("TAX_RATE"), "0.08")
	if err != nil {
		return nil, fmt.Errorf("TAX_RATE: %w", err)
	}
	threshold, err := parseDecimal(k.String("FREE_SHIPPING_THRESHOLD"), "99")
	if err != nil {
		return nil, fmt.Errorf("FREE_SHIPPING_THRESHOLD: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),

		TaxRate:               taxRate,
		FreeShippingThreshold: threshold,
		Currency:              strings.ToUpper(valueOrDefault(k.String("CURRENCY"), "USD")),
		PromoCodes:            strings.TrimSpace(k.String("PROMO_CODES")),

		SessionTTL:           parseDuration(k.String("SESSION_TTL"), "30m"),
		SessionSnapshotTTL:   parseDuration(k.String("SESSION_SNAPSHOT_TTL"), "168h"),
		SessionSweepInterval: parseDuration(k.String("SESSION_SWEEP_INTERVAL"), "1m"),
		CookieSecure:         parseBool(k.String("COOKIE_SECURE"), false),
		RedisPrefix:          valueOrDefault(k.String("REDIS_PREFIX"), "toko"),

		CheckoutServiceURL:  strings.TrimSpace(k.String("CHECKOUT_SERVICE_URL")),
		CheckoutSecret:      k.String("CHECKOUT_SERVICE_SECRET"),
		CheckoutTimeout:     parseDuration(k.String("CHECKOUT_TIMEOUT"), "5s"),
		CheckoutMaxAttempts: parseInt(k.String("CHECKOUT_MAX_ATTEMPTS"), 2),
		CheckoutBackoff:     parseDuration(k.String("CHECKOUT_BACKOFF"), "200ms"),
		CheckoutLockTTL:     parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),
		CheckoutClearCart:   parseBool(k.String("CHECKOUT_CLEAR_CART"), true),
		BreakerMinRequests:  parseInt(k.String("CIRCUIT_CHECKOUT_MIN_REQ"), 10),
		BreakerFailureRatio: parseFloat(k.String("CIRCUIT_CHECKOUT_FAILURE_RATE"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("CIRCUIT_CHECKOUT_OPEN_FOR"), "30s"),

		RateLimitGlobal:  valueOrDefault(k.String("RATE_LIMIT_GLOBAL"), "300-M"),
		PromoLimitWindow: parseDuration(k.String("RATE_LIMIT_PROMO_WINDOW"), "1m"),
		PromoLimitMax:    parseInt(k.String("RATE_LIMIT_PROMO_MAX"), 10),
		BodyLimitBytes:   int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),
		CSRFEnabled:      parseBool(k.String("CSRF_ENABLED"), true),
		SecurityHeaders:  parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSEnabled:      parseBool(k.String("HSTS_ENABLED"), false),

		EventWebhookURL:     strings.TrimSpace(k.String("EVENT_WEBHOOK_URL")),
		EventWebhookSecret:  k.String("EVENT_WEBHOOK_SECRET"),
		EventWebhookTimeout: parseDuration(k.String("EVENT_WEBHOOK_TIMEOUT"), "5s"),
		QueueName:           valueOrDefault(k.String("QUEUE_NAME"), "events"),
		QueueConcurrency:    parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:       parseInt(k.String("QUEUE_MAX_RETRY"), 8),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("TAX_RATE must be a fraction between 0 and 1")
	}
	if c.FreeShippingThreshold.IsNegative() {
		return errors.New("FREE_SHIPPING_THRESHOLD must not be negative")
	}
	if c.CheckoutServiceURL != "" && !strings.HasPrefix(c.CheckoutServiceURL, "http") {
		return errors.New("CHECKOUT_SERVICE_URL must be an http(s) url")
	}
	if c.PromoLimitMax < 0 {
		return errors.New("RATE_LIMIT_PROMO_MAX must not be negative")
	}
	if c.QueueConcurrency <= 0 {
		return errors.New("QUEUE_CONCURRENCY must be positive")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "prod", "production":
		return true
	}
	return false
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return n
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return fallback
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	return decimal.NewFromString(base)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
