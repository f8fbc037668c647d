package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	PayOS    PayOSConfig
	Transfer TransferConfig
	Orders   OrdersConfig
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

type ChannelCredentials struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
}

type PayOSConfig struct {
	BaseURL     string
	Default     ChannelCredentials
	Mobile      ChannelCredentials
	RedirectURL string
	HTTPTimeout time.Duration
}

type TransferConfig struct {
	Endpoint            string
	APIKey              string
	SourceAccountNumber string
	SourceAccountName   string
	HTTPTimeout         time.Duration
}

type OrdersConfig struct {
	CommissionRate      float64
	RetentionWindow     time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	PurgeInterval     time.Duration
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	defaultCreds := ChannelCredentials{
		ClientID:    os.Getenv("PAYOS_CLIENT_ID"),
		APIKey:      os.Getenv("PAYOS_API_KEY"),
		ChecksumKey: os.Getenv("PAYOS_CHECKSUM_KEY"),
	}
	if defaultCreds.ClientID == "" || defaultCreds.APIKey == "" || defaultCreds.ChecksumKey == "" {
		return nil, errors.New("PAYOS_CLIENT_ID, PAYOS_API_KEY and PAYOS_CHECKSUM_KEY are required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "orders-service"),
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
		PayOS: PayOSConfig{
			BaseURL: getEnv("PAYOS_BASE_URL", "https://api-merchant.payos.vn"),
			Default: defaultCreds,
			Mobile: ChannelCredentials{
				ClientID:    os.Getenv("PAYOS_MOBILE_CLIENT_ID"),
				APIKey:      os.Getenv("PAYOS_MOBILE_API_KEY"),
				ChecksumKey: os.Getenv("PAYOS_MOBILE_CHECKSUM_KEY"),
			},
			RedirectURL: getEnv("PAYOS_REDIRECT_URL", ""),
			HTTPTimeout: getSecondsEnv("PAYOS_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Transfer: TransferConfig{
			Endpoint:            getEnv("TRANSFER_ENDPOINT", ""),
			APIKey:              getEnv("TRANSFER_API_KEY", ""),
			SourceAccountNumber: getEnv("TRANSFER_SOURCE_ACCOUNT_NUMBER", ""),
			SourceAccountName:   getEnv("TRANSFER_SOURCE_ACCOUNT_NAME", ""),
			HTTPTimeout:         getSecondsEnv("TRANSFER_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Orders: OrdersConfig{
			CommissionRate:      getFloatEnv("ORDERS_COMMISSION_RATE", 0.05),
			RetentionWindow:     getMinutesEnv("ORDERS_RETENTION_WINDOW_MINUTES", 5*time.Minute),
			ReconcileStaleAfter: getMinutesEnv("ORDERS_RECONCILE_STALE_AFTER_MINUTES", 2*time.Minute),
			JobBatchSize:        int32(getIntEnv("ORDERS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			PurgeInterval:     getSecondsEnv("ORDERS_PURGE_INTERVAL_SECONDS", time.Minute),
			ReconcileInterval: getMinutesEnv("ORDERS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
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

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
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
