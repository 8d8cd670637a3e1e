// Package config loads all runtime configuration from environment variables.
// A .env file is honoured for local development; no config framework is used.
//
// Only structural settings are required at startup. Integration secrets
// (SMTP, WhatsApp, Google, storage) are optional: the features that need
// them answer with a config_missing error until they are set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the service.
type Config struct {
	HTTP     HTTPConfig
	DB       DBConfig
	Log      LogConfig
	JWT      JWTConfig
	App      AppConfig
	Notify   NotifyConfig
	Redis    RedisConfig
	Mail     MailConfig
	WhatsApp WhatsAppConfig
	Google   GoogleConfig
	Storage  StorageConfig
	PDF      PDFConfig
	Worker   WorkerConfig
	OTel     OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
	// PublicURL is the externally reachable base URL of this API, used to
	// build the OAuth redirect URI.
	PublicURL string
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "artisan.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds the secret the auth provider signs access tokens with.
type JWTConfig struct {
	Secret   string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	Audience string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	// URL is the public front-end URL; OAuth callbacks redirect there.
	URL                string
	DefaultVATPct      decimal.Decimal
	QuoteValidityDays  int
	PaymentTermsDays   int
	TokenEncryptionKey string //nolint:gosec // intentional: key for OAuth tokens at rest
	SeedDemoTenant     string
}

// NotifyConfig tunes notification deduplication.
type NotifyConfig struct {
	DedupWindow    time.Duration
	DedupRetention time.Duration
}

// RedisConfig enables the shared deduplication backend when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // intentional: redis password loaded from env
	DB       int
}

// MailConfig holds SMTP relay settings. Defaults target the Resend relay.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	APIKey   string //nolint:gosec // intentional: provider API key used as SMTP password
	From     string
	Timeout  time.Duration
}

// Configured reports whether outbound email can be sent.
func (c MailConfig) Configured() bool { return c.APIKey != "" && c.From != "" }

// WhatsAppConfig holds WhatsApp Business Cloud API credentials.
type WhatsAppConfig struct {
	AccessToken   string //nolint:gosec // intentional: Graph API token loaded from env
	PhoneNumberID string
	VerifyToken   string //nolint:gosec // intentional: webhook verification token
	AppSecret     string //nolint:gosec // intentional: webhook signature secret
	APIBase       string
}

// Configured reports whether outbound WhatsApp messages can be sent.
func (c WhatsAppConfig) Configured() bool { return c.AccessToken != "" && c.PhoneNumberID != "" }

// GoogleConfig holds the calendar OAuth client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string //nolint:gosec // intentional: OAuth client secret loaded from env
	AuthURL      string
	TokenURL     string
	CalendarAPI  string
}

// Configured reports whether the calendar OAuth flow is available.
func (c GoogleConfig) Configured() bool { return c.ClientID != "" && c.ClientSecret != "" }

// StorageConfig points at an S3-compatible bucket for generated PDFs.
type StorageConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string //nolint:gosec // intentional: storage secret loaded from env
	UsePathStyle bool
}

// Configured reports whether generated documents are archived.
func (c StorageConfig) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// PDFConfig selects the Chrome instance used for rendering.
type PDFConfig struct {
	ChromeURL string // remote DevTools URL; empty launches a local browser
	Timeout   time.Duration
	NoSandbox bool
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency   int
	SweepInterval time.Duration
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)
	cfg.HTTP.PublicURL = envStr("API_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port))

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "artisan.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	cfg.JWT.Audience = envStr("JWT_AUDIENCE", "authenticated")

	// App
	cfg.App.URL = envStr("APP_URL", "http://localhost:3000")
	cfg.App.DefaultVATPct, err = envDecimal("DEFAULT_VAT_PCT", decimal.NewFromInt(10))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_VAT_PCT: %w", err)
	}
	cfg.App.QuoteValidityDays = envInt("QUOTE_VALIDITY_DAYS", 30)
	cfg.App.PaymentTermsDays = envInt("PAYMENT_TERMS_DAYS", 30)
	cfg.App.TokenEncryptionKey = os.Getenv("TOKEN_ENCRYPTION_KEY")
	cfg.App.SeedDemoTenant = os.Getenv("SEED_DEMO_TENANT")

	// Notifications
	cfg.Notify.DedupWindow, err = envDuration("NOTIFY_DEDUP_WINDOW", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_DEDUP_WINDOW: %w", err)
	}
	cfg.Notify.DedupRetention, err = envDuration("NOTIFY_DEDUP_RETENTION", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_DEDUP_RETENTION: %w", err)
	}
	if cfg.Notify.DedupWindow <= 0 {
		return nil, errors.New("NOTIFY_DEDUP_WINDOW must be positive")
	}
	if cfg.Notify.DedupRetention < cfg.Notify.DedupWindow {
		return nil, errors.New("NOTIFY_DEDUP_RETENTION must not be shorter than NOTIFY_DEDUP_WINDOW")
	}

	// Redis
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	// Mail
	cfg.Mail.Host = envStr("SMTP_HOST", "smtp.resend.com")
	cfg.Mail.Port = envInt("SMTP_PORT", 465)
	cfg.Mail.Username = envStr("SMTP_USERNAME", "resend")
	cfg.Mail.APIKey = os.Getenv("RESEND_API_KEY")
	cfg.Mail.From = os.Getenv("MAIL_FROM")
	cfg.Mail.Timeout, err = envDuration("SMTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SMTP_TIMEOUT: %w", err)
	}

	// WhatsApp
	cfg.WhatsApp.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	cfg.WhatsApp.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	cfg.WhatsApp.VerifyToken = os.Getenv("WHATSAPP_VERIFY_TOKEN")
	cfg.WhatsApp.AppSecret = os.Getenv("WHATSAPP_APP_SECRET")
	cfg.WhatsApp.APIBase = envStr("WHATSAPP_API_BASE", "https://graph.facebook.com/v21.0")

	// Google calendar
	cfg.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.Google.AuthURL = envStr("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/auth")
	cfg.Google.TokenURL = envStr("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	cfg.Google.CalendarAPI = envStr("GOOGLE_CALENDAR_API", "https://www.googleapis.com/calendar/v3/")

	// Storage
	cfg.Storage.Endpoint = os.Getenv("STORAGE_ENDPOINT")
	cfg.Storage.Region = envStr("STORAGE_REGION", "eu-west-3")
	cfg.Storage.Bucket = os.Getenv("STORAGE_BUCKET")
	cfg.Storage.AccessKey = os.Getenv("STORAGE_ACCESS_KEY")
	cfg.Storage.SecretKey = os.Getenv("STORAGE_SECRET_KEY")
	cfg.Storage.UsePathStyle = envBool("STORAGE_PATH_STYLE", true)

	// PDF
	cfg.PDF.ChromeURL = os.Getenv("CHROME_URL")
	cfg.PDF.Timeout, err = envDuration("PDF_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PDF_TIMEOUT: %w", err)
	}
	cfg.PDF.NoSandbox = envBool("CHROME_NO_SANDBOX", false)

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 2)
	cfg.Worker.SweepInterval, err = envDuration("WORKER_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("WORKER_SWEEP_INTERVAL: %w", err)
	}
	if cfg.Worker.SweepInterval <= 0 {
		return nil, errors.New("WORKER_SWEEP_INTERVAL must be positive")
	}

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q: %w", v, err)
	}
	return d, nil
}
