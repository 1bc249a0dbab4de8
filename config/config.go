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
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Auth     AuthConfig
	Payments PaymentsConfig
	Tranzila TranzilaConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
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
	Level string
}

type AuthConfig struct {
	JWTSecret string
}

type PaymentsConfig struct {
	ActiveProvider      string
	PublicBaseURL       string
	DefaultCurrency     string
	SupportedCurrencies []string
	MinAmountCents      int64
	MaxAmountCents      int64
	LinkTTL             time.Duration
	JobBatchSize        int32
}

type TranzilaConfig struct {
	Terminal         string
	Secret           string
	BaseURL          string
	SuccessURL       string
	FailURL          string
	NotifyURL        string
	Language         string
	VerifySignatures bool
}

type JobsConfig struct {
	ExpirePendingInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "paylinks-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Payments: PaymentsConfig{
			ActiveProvider:      strings.ToLower(getEnv("PAYLINKS_PROVIDER", "mock")),
			PublicBaseURL:       strings.TrimRight(getEnv("PAYLINKS_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			DefaultCurrency:     strings.ToUpper(getEnv("PAYLINKS_DEFAULT_CURRENCY", "ILS")),
			SupportedCurrencies: splitCSVEnv("PAYLINKS_SUPPORTED_CURRENCIES", []string{"ILS", "USD", "EUR"}),
			MinAmountCents:      int64(getIntEnv("PAYLINKS_MIN_AMOUNT_CENTS", 100)),
			MaxAmountCents:      int64(getIntEnv("PAYLINKS_MAX_AMOUNT_CENTS", 5000000)),
			LinkTTL:             getDaysEnv("PAYLINKS_LINK_TTL_DAYS", 7*24*time.Hour),
			JobBatchSize:        int32(getIntEnv("PAYLINKS_JOB_BATCH_SIZE", 100)),
		},
		Tranzila: TranzilaConfig{
			Terminal:         getEnv("TRANZILA_TERMINAL", ""),
			Secret:           getEnv("TRANZILA_SECRET", ""),
			BaseURL:          getEnv("TRANZILA_BASE_URL", "https://direct.tranzila.com"),
			SuccessURL:       getEnv("TRANZILA_SUCCESS_URL", ""),
			FailURL:          getEnv("TRANZILA_FAIL_URL", ""),
			NotifyURL:        getEnv("TRANZILA_NOTIFY_URL", ""),
			Language:         getEnv("TRANZILA_LANGUAGE", "il"),
			VerifySignatures: getBoolEnv("TRANZILA_VERIFY_SIGNATURES", true),
		},
		Jobs: JobsConfig{
			ExpirePendingInterval: getMinutesEnv("PAYLINKS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getDaysEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if days, err := strconv.Atoi(value); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	return defaultValue
}

func splitCSVEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
