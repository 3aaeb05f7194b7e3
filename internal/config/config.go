package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the checkout API and the stream
// processor.
type Config struct {
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Telemetry   TelemetryConfig
	Service     ServiceConfig
	Fraud       FraudConfig
	Payment     PaymentConfig
	Checkout    CheckoutConfig
	Idempotency IdempotencyConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace time.Duration
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers        []string
	ClientID       string
	RawTopic       string
	ValidatedTopic string
	AlertTopic     string
	ConsumerGroup  string
	HandleTimeout  time.Duration
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig is optional. An empty Addr keeps idempotency keys in Postgres.
type RedisConfig struct {
	Addr string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	OTelInsecure  bool
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type FraudConfig struct {
	Enabled             bool
	SuspiciousThreshold float64
	HighRiskThreshold   float64
	Timezone            string
}

// Location resolves Timezone. An empty timezone yields nil.
func (f FraudConfig) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid FRAUD_TIMEZONE %q: %w", f.Timezone, err)
	}
	return loc, nil
}

type PaymentConfig struct {
	CardSuccessRate    float64
	EWalletSuccessRate float64
}

type CheckoutConfig struct {
	CollaboratorTimeout time.Duration
	OrdersTopic         string
}

type IdempotencyConfig struct {
	TTL time.Duration
}

const (
	defaultHTTPPort            = 8080
	defaultShutdownGrace       = 15 * time.Second
	defaultMigrationsPath      = "migrations"
	defaultAutoMigrate         = true
	defaultServiceName         = "orderflow"
	defaultServiceVersion      = "0.1.0"
	defaultEnvironment         = "development"
	defaultLogLevel            = "info"
	defaultOTelSampleRate      = 1.0
	defaultKafkaClientID       = "orderflow"
	defaultRawTopic            = "orders.raw"
	defaultValidatedTopic      = "orders.validated"
	defaultAlertTopic          = "fraud.alerts"
	defaultConsumerGroup       = "orderflow-risk"
	defaultHandleTimeout       = 30 * time.Second
	defaultSuspiciousThreshold = 50.0
	defaultHighRiskThreshold   = 70.0
	defaultCardSuccessRate     = 0.95
	defaultEWalletSuccessRate  = 0.98
	defaultCollaboratorTimeout = 5 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
)

// Load reads an optional .env file and then the environment, applying
// defaults when needed. Variables already set win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	kafkaCfg, err := loadKafkaConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kafka config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	fraudCfg, err := loadFraudConfig()
	if err != nil {
		return nil, fmt.Errorf("loading fraud config: %w", err)
	}

	paymentCfg, err := loadPaymentConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	ttl, err := getDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("loading idempotency config: %w", err)
	}

	return &Config{
		HTTP:        httpCfg,
		Database:    loadDatabaseConfig(),
		Kafka:       kafkaCfg,
		Redis:       RedisConfig{Addr: os.Getenv("REDIS_ADDR")},
		Telemetry:   telCfg,
		Service:     loadServiceConfig(),
		Fraud:       fraudCfg,
		Payment:     paymentCfg,
		Checkout:    checkoutCfg,
		Idempotency: IdempotencyConfig{TTL: ttl},
	}, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getDurationEnv("API_SHUTDOWN_GRACE", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}
}

func loadKafkaConfig() (KafkaConfig, error) {
	handleTimeout, err := getDurationEnv("KAFKA_HANDLE_TIMEOUT", defaultHandleTimeout)
	if err != nil {
		return KafkaConfig{}, err
	}

	return KafkaConfig{
		Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		ClientID:       getEnvOrDefault("KAFKA_CLIENT_ID", defaultKafkaClientID),
		RawTopic:       getEnvOrDefault("KAFKA_RAW_TOPIC", defaultRawTopic),
		ValidatedTopic: getEnvOrDefault("KAFKA_VALIDATED_TOPIC", defaultValidatedTopic),
		AlertTopic:     getEnvOrDefault("KAFKA_ALERT_TOPIC", defaultAlertTopic),
		ConsumerGroup:  getEnvOrDefault("KAFKA_CONSUMER_GROUP", defaultConsumerGroup),
		HandleTimeout:  handleTimeout,
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate, err := getFloatEnv("OTEL_SAMPLE_RATE", defaultOTelSampleRate)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure:  getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadFraudConfig() (FraudConfig, error) {
	suspicious, err := getFloatEnv("FRAUD_SUSPICIOUS_THRESHOLD", defaultSuspiciousThreshold)
	if err != nil {
		return FraudConfig{}, err
	}
	highRisk, err := getFloatEnv("FRAUD_HIGH_RISK_THRESHOLD", defaultHighRiskThreshold)
	if err != nil {
		return FraudConfig{}, err
	}

	return FraudConfig{
		Enabled:             getBoolEnv("FRAUD_DETECTION_ENABLED", true),
		SuspiciousThreshold: suspicious,
		HighRiskThreshold:   highRisk,
		Timezone:            os.Getenv("FRAUD_TIMEZONE"),
	}, nil
}

func loadPaymentConfig() (PaymentConfig, error) {
	card, err := getFloatEnv("PAYMENT_CARD_SUCCESS_RATE", defaultCardSuccessRate)
	if err != nil {
		return PaymentConfig{}, err
	}
	ewallet, err := getFloatEnv("PAYMENT_EWALLET_SUCCESS_RATE", defaultEWalletSuccessRate)
	if err != nil {
		return PaymentConfig{}, err
	}

	return PaymentConfig{CardSuccessRate: card, EWalletSuccessRate: ewallet}, nil
}

func loadCheckoutConfig(kafkaCfg KafkaConfig) (CheckoutConfig, error) {
	timeout, err := getDurationEnv("CHECKOUT_COLLABORATOR_TIMEOUT", defaultCollaboratorTimeout)
	if err != nil {
		return CheckoutConfig{}, err
	}

	return CheckoutConfig{
		CollaboratorTimeout: timeout,
		OrdersTopic:         getEnvOrDefault("CHECKOUT_ORDERS_TOPIC", kafkaCfg.RawTopic),
	}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "orderflow")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
