package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Gateway   GatewayConfig
	Notifier  ServiceConfig
	Payouts   PayoutConfig
	Recovery  RecoveryConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	CartTTL  time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	ChargeTimeout time.Duration
}

type ServiceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type PayoutConfig struct {
	// CommissionRate is the platform's cut as a fraction, e.g. 0.025.
	CommissionRate float64
	// MinimumThreshold is the platform default payout minimum in cents,
	// used when a seller has not set their own.
	MinimumThreshold int64
	Currency         string
	AdminEmail       string
}

type RecoveryConfig struct {
	AutoRefundEnabled bool
	OpsEmail          string
	EscalationEmail   string
}

type SchedulerConfig struct {
	AutoPayoutSpec   string
	FailedPayoutSpec string
	ReconcileSpec    string
	EligibilitySpec  string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnvString("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnvString("DB_USER", "cardhaven"),
			Password:     getEnvString("DB_PASSWORD", "cardhaven"),
			Name:         getEnvString("DB_NAME", "cardhaven_payments"),
			SSLMode:      getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CartTTL:  time.Duration(getEnvInt("CART_TTL_HOURS", 72)) * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{getEnvString("KAFKA_BROKER", "localhost:9092")},
			EventsTopic: getEnvString("KAFKA_EVENTS_TOPIC", "marketplace.events"),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnvString("GATEWAY_URL", "https://api.gateway.example.com"),
			APIKey:        getEnvString("GATEWAY_API_KEY", ""),
			WebhookSecret: getEnvString("GATEWAY_WEBHOOK_SECRET", ""),
			ChargeTimeout: time.Duration(getEnvInt("GATEWAY_CHARGE_TIMEOUT", 30)) * time.Second,
		},
		Notifier: ServiceConfig{
			BaseURL: getEnvString("NOTIFICATION_SERVICE_URL", "http://localhost:8087"),
			APIKey:  getEnvString("NOTIFICATION_API_KEY", ""),
			Timeout: time.Duration(getEnvInt("NOTIFICATION_TIMEOUT", 10)) * time.Second,
		},
		Payouts: PayoutConfig{
			CommissionRate:   getEnvFloat("PAYOUT_COMMISSION_RATE", 0.025),
			MinimumThreshold: int64(getEnvInt("PAYOUT_MINIMUM_CENTS", 2500)),
			Currency:         getEnvString("PAYOUT_CURRENCY", "USD"),
			AdminEmail:       getEnvString("PAYOUT_ADMIN_EMAIL", "payouts@cardhaven.example.com"),
		},
		Recovery: RecoveryConfig{
			AutoRefundEnabled: getEnvBool("RECOVERY_AUTO_REFUND", true),
			OpsEmail:          getEnvString("RECOVERY_OPS_EMAIL", "ops@cardhaven.example.com"),
			EscalationEmail:   getEnvString("RECOVERY_ESCALATION_EMAIL", "oncall@cardhaven.example.com"),
		},
		Scheduler: SchedulerConfig{
			AutoPayoutSpec:   getEnvString("SCHEDULE_AUTO_PAYOUTS", "0 6 * * 1"),
			FailedPayoutSpec: getEnvString("SCHEDULE_FAILED_PAYOUT_SCAN", "0 * * * *"),
			ReconcileSpec:    getEnvString("SCHEDULE_PAYOUT_RECONCILE", "30 * * * *"),
			EligibilitySpec:  getEnvString("SCHEDULE_ELIGIBILITY_SCAN", "0 7 * * *"),
		},
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
