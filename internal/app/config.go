package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

const (
	envHTTPAddr                    = "WORKSHOP_HTTP_ADDR"
	envGRPCAddr                    = "WORKSHOP_GRPC_ADDR"
	envMetricsAddr                 = "WORKSHOP_METRICS_ADDR"
	envStorageDriver               = "WORKSHOP_STORAGE_DRIVER"
	envPostgresDSN                 = "WORKSHOP_POSTGRES_DSN"
	envPostgresAutoMigrate         = "WORKSHOP_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "WORKSHOP_REDIS_ADDR"
	envKafkaBrokers                = "WORKSHOP_KAFKA_BROKERS"
	envKafkaTopic                  = "WORKSHOP_KAFKA_TOPIC"
	envOutboxPollInterval          = "WORKSHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "WORKSHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "WORKSHOP_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "WORKSHOP_OUTBOX_RETRY_DELAY"
	envJWTSecret                   = "WORKSHOP_JWT_SECRET"
	envFileStoreURL                = "WORKSHOP_FILESTORE_URL"
	envInvoicePartsPricing         = "WORKSHOP_INVOICE_PARTS_PRICING"
	envIdempotencyTTL              = "WORKSHOP_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "WORKSHOP_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "WORKSHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envRetryMaxAttempts            = "WORKSHOP_RETRY_MAX_ATTEMPTS"
	envHTTPRequestTimeout          = "WORKSHOP_HTTP_REQUEST_TIMEOUT"
	envShutdownTimeout             = "WORKSHOP_SHUTDOWN_TIMEOUT"
	envLogLevel                    = "WORKSHOP_LOG_LEVEL"
	envLogFormat                   = "WORKSHOP_LOG_FORMAT"
)

// Config описывает настройки запуска сервиса. Все поля сравнимы, поэтому конфигурации
// можно сравнивать через ==.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// RedisAddr включает нумерацию счетов через Redis. Пустое значение означает
	// последовательность в основном хранилище.
	RedisAddr string

	// KafkaBrokers — список брокеров через запятую. Без брокеров события outbox пишутся в лог.
	KafkaBrokers       string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	JWTSecret           string
	FileStoreURL        string
	InvoicePartsPricing domain.PartsPricing

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
	RetryMaxAttempts            int

	HTTPRequestTimeout time.Duration
	ShutdownTimeout    time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaTopic:                  "workshop.inventory.events",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		InvoicePartsPricing:         domain.PartsPricingCurrent,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		RetryMaxAttempts:            3,
		HTTPRequestTimeout:          15 * time.Second,
		ShutdownTimeout:             10 * time.Second,
		LogLevel:                    "info",
		LogFormat:                   LogFormatText,
	}
}

// EnvLookup возвращает значение переменной окружения и признак её наличия.
type EnvLookup func(key string) (string, bool)

// LoadDotEnv подгружает переменные из .env-файлов, не перетирая уже заданные.
// Отсутствующие файлы пропускаются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig читает конфигурацию из окружения поверх DefaultConfig.
// Любое некорректное значение приводит к ошибке с перечнем всех проблем.
func LoadConfig(lookup EnvLookup) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, problems := readConfigFromEnv(lookup)
	problems = append(problems, cfg.Validate()...)
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return cfg, nil
}

func readConfigFromEnv(lookup EnvLookup) (Config, []error) {
	cfg := DefaultConfig()
	var problems []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, validate func(int) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, validate, msg)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, validate func(time.Duration) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, validate, msg)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaTopic, &cfg.KafkaTopic)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")

	str(envJWTSecret, &cfg.JWTSecret)
	str(envFileStoreURL, &cfg.FileStoreURL)
	var pricing string
	str(envInvoicePartsPricing, &pricing)
	if pricing != "" {
		cfg.InvoicePartsPricing = domain.PartsPricing(strings.ToLower(pricing))
	}

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	integer(envRetryMaxAttempts, &cfg.RetryMaxAttempts, positive, "must be > 0")
	duration(envHTTPRequestTimeout, &cfg.HTTPRequestTimeout, positiveDuration, "must be > 0")
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	str(envLogLevel, &cfg.LogLevel)
	str(envLogFormat, &cfg.LogFormat)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, problems
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() []error {
	var problems []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			problems = append(problems, fmt.Errorf("%s is required for postgres storage", envPostgresDSN))
		}
	default:
		problems = append(problems, fmt.Errorf("%s: unsupported storage driver %q", envStorageDriver, c.StorageDriver))
	}
	if !c.InvoicePartsPricing.Valid() {
		problems = append(problems, fmt.Errorf("%s: must be current or approval, got %q", envInvoicePartsPricing, c.InvoicePartsPricing))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Errorf("%s: %w", envLogLevel, err))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		problems = append(problems, fmt.Errorf("%s: must be text or json, got %q", envLogFormat, c.LogFormat))
	}
	return problems
}

// Brokers разбирает список Kafka-брокеров.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, validate func(int) bool, msg string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if validate != nil && !validate(v) {
		return 0, fmt.Errorf("%d %s", v, msg)
	}
	return v, nil
}

func parseDuration(raw string, validate func(time.Duration) bool, msg string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if validate != nil && !validate(v) {
		return 0, fmt.Errorf("%s %s", v, msg)
	}
	return v, nil
}

// ConfigureLogger применяет уровень и формат логирования.
func ConfigureLogger(logger *log.Logger, level, format string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(parsed)
	switch format {
	case LogFormatJSON:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
