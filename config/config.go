package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Billing           BillingConfig
	Invoice           InvoiceConfig
	Apple             AppleConfig
	Google            GoogleConfig
	Firebase          FirebaseConfig
	Analytics         AnalyticsConfig
	RateLimit         RateLimitConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	BodyLimit   string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type BillingConfig struct {
	RenewalPeriodMonths int
	TaxRateBasisPoints  int64
	SideEffectTimeout   time.Duration
}

type InvoiceConfig struct {
	APIBaseURL    string
	SecretKey     string
	CallbackToken string
	SuccessURL    string
	FailureURL    string
	InvoiceTTL    time.Duration
	HTTPTimeout   time.Duration
}

type AppleConfig struct {
	BundleID              string
	RootCAFiles           []string
	OnlineRevocationCheck bool
	HTTPTimeout           time.Duration
}

type GoogleConfig struct {
	PackageName        string
	CredentialsFile    string
	PushAudience       string
	PushServiceAccount string
}

type FirebaseConfig struct {
	CredentialsFile string
	ExpiryTitle     string
	ExpiryBody      string
}

type AnalyticsConfig struct {
	QueueURL  string
	AWSRegion string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
}

type JobsConfig struct {
	ExpirySweepInterval  time.Duration
	ExpirySweepInProcess bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "fan-billing-service"),
			BodyLimit:   getEnv("HTTP_BODY_LIMIT", "1M"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Billing: BillingConfig{
			RenewalPeriodMonths: getIntEnv("RENEWAL_PERIOD_MONTHS", 1),
			TaxRateBasisPoints:  int64(getIntEnv("TAX_RATE_BASIS_POINTS", 1100)),
			SideEffectTimeout:   getSecondsEnv("SIDE_EFFECT_TIMEOUT_SECONDS", 30*time.Second),
		},
		Invoice: InvoiceConfig{
			APIBaseURL:    getEnv("INVOICE_API_BASE_URL", ""),
			SecretKey:     getEnv("INVOICE_SECRET_KEY", ""),
			CallbackToken: getEnv("INVOICE_CALLBACK_TOKEN", ""),
			SuccessURL:    getEnv("INVOICE_SUCCESS_REDIRECT_URL", ""),
			FailureURL:    getEnv("INVOICE_FAILURE_REDIRECT_URL", ""),
			InvoiceTTL:    getDurationEnv("INVOICE_DURATION_MINUTES", 24*time.Hour),
			HTTPTimeout:   getSecondsEnv("INVOICE_HTTP_TIMEOUT_SECONDS", 20*time.Second),
		},
		Apple: AppleConfig{
			BundleID:              getEnv("APPLE_BUNDLE_ID", ""),
			RootCAFiles:           getListEnv("APPLE_ROOT_CA_FILES"),
			OnlineRevocationCheck: getBoolEnv("APPLE_ONLINE_REVOCATION_CHECK", true),
			HTTPTimeout:           getSecondsEnv("APPLE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Google: GoogleConfig{
			PackageName:        getEnv("GOOGLE_PLAY_PACKAGE_NAME", ""),
			CredentialsFile:    getEnv("GOOGLE_PLAY_CREDENTIALS_FILE", ""),
			PushAudience:       getEnv("GOOGLE_PUSH_AUDIENCE", ""),
			PushServiceAccount: getEnv("GOOGLE_PUSH_SERVICE_ACCOUNT", ""),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			ExpiryTitle:     getEnv("PUSH_EXPIRY_TITLE", ""),
			ExpiryBody:      getEnv("PUSH_EXPIRY_BODY", ""),
		},
		Analytics: AnalyticsConfig{
			QueueURL:  getEnv("ANALYTICS_QUEUE_URL", ""),
			AWSRegion: getEnv("AWS_REGION", "ap-southeast-1"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getFloatEnv("RATE_LIMIT_RPS", 20),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 40),
			RedisAddr:         getEnv("REDIS_ADDR", ""),
			RedisPassword:     getEnv("REDIS_PASSWORD", ""),
			RedisDB:           getIntEnv("REDIS_DB", 0),
		},
		Jobs: JobsConfig{
			ExpirySweepInterval:  getDurationEnv("EXPIRY_SWEEP_INTERVAL_MINUTES", 1440*time.Minute),
			ExpirySweepInProcess: getBoolEnv("EXPIRY_SWEEP_IN_PROCESS", false),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnv reads a whole number of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var items []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
