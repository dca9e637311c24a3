package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel  string
	LogFormat string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	HTTPAddr string

	DefaultCurrency string

	GatewayTimeout time.Duration

	BkashBaseURL       string
	BkashAppKey        string
	BkashAppSecret     string
	BkashWebhookSecret string

	NagadBaseURL       string
	NagadMerchantID    string
	NagadMerchantKey   string
	NagadWebhookSecret string

	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// Webhook throttling only engages when RedisAddr is set.
	WebhookRatePerSecond int
	WebhookRateBurst     int

	SlackWebhookURL string
	SlackChannel    string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// OpsNotifyEmail receives operational notices (refunds opened, payout
	// batches generated). Empty disables email notices.
	OpsNotifyEmail string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "kormo"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "json")),

		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kormo"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DefaultCurrency: strings.ToUpper(getenv("DEFAULT_CURRENCY", "BDT")),

		GatewayTimeout: getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		BkashBaseURL:       getenv("BKASH_BASE_URL", "https://tokenized.pay.bka.sh/v1.2.0-beta"),
		BkashAppKey:        getenv("BKASH_APP_KEY", ""),
		BkashAppSecret:     getenv("BKASH_APP_SECRET", ""),
		BkashWebhookSecret: getenv("BKASH_WEBHOOK_SECRET", ""),

		NagadBaseURL:       getenv("NAGAD_BASE_URL", "https://api.mynagad.com"),
		NagadMerchantID:    getenv("NAGAD_MERCHANT_ID", ""),
		NagadMerchantKey:   getenv("NAGAD_MERCHANT_KEY", ""),
		NagadWebhookSecret: getenv("NAGAD_WEBHOOK_SECRET", ""),

		SchedulerEnabled:  getenvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),

		WebhookRatePerSecond: getenvInt("WEBHOOK_RATE_PER_SECOND", 20),
		WebhookRateBurst:     getenvInt("WEBHOOK_RATE_BURST", 40),

		SlackWebhookURL: getenv("SLACK_WEBHOOK_URL", ""),
		SlackChannel:    getenv("SLACK_CHANNEL", "#bookings"),

		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "no-reply@kormo.app"),

		OpsNotifyEmail: getenv("OPS_NOTIFY_EMAIL", ""),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
