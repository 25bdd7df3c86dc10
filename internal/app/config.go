package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/store"
)

// EnvPrefix задаёт префикс переменных окружения сервиса.
const EnvPrefix = "STOREFRONT_"

// StorageDriver выбирает backend хранилищ.
type StorageDriver string

const (
	StorageDriverFile     StorageDriver = "file"
	StorageDriverPostgres StorageDriver = "postgres"
	StorageDriverSQLite   StorageDriver = "sqlite"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" yaml:"http_addr"`
	MetricsAddr string `env:"METRICS_ADDR" yaml:"metrics_addr"`

	StorageDriver       StorageDriver `env:"STORAGE_DRIVER" yaml:"storage_driver"`
	ProductsFile        string        `env:"PRODUCTS_FILE" yaml:"products_file"`
	CartsFile           string        `env:"CARTS_FILE" yaml:"carts_file"`
	PostgresDSN         string        `env:"POSTGRES_DSN" yaml:"postgres_dsn"`
	PostgresAutoMigrate bool          `env:"POSTGRES_AUTO_MIGRATE" yaml:"postgres_auto_migrate"`
	SQLitePath          string        `env:"SQLITE_PATH" yaml:"sqlite_path"`

	// Пустой KafkaBrokers отключает публикацию событий в Kafka.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," yaml:"kafka_brokers"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" yaml:"kafka_topic"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" yaml:"kafka_group_id"`

	WSAllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:"," yaml:"ws_allowed_origins"`

	LogLevel        string        `env:"LOG_LEVEL" yaml:"log_level"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// DefaultConfig возвращает настройки для локального запуска на файлах.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverFile,
		ProductsFile:        store.DefaultProductsFile,
		CartsFile:           store.DefaultCartsFile,
		PostgresAutoMigrate: true,
		SQLitePath:          "storefront.db",
		KafkaTopic:          kafka.TopicStoreEvents,
		KafkaGroupID:        "storefront-feed",
		LogLevel:            "info",
		ShutdownTimeout:     5 * time.Second,
	}
}

// LoadConfig собирает настройки: DefaultConfig, затем YAML-файл path (если задан),
// затем переменные окружения STOREFRONT_*.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.WSAllowedOrigins = compact(cfg.WSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadConfigFile накладывает YAML поверх cfg; неизвестные ключи считаются ошибкой.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	switch c.StorageDriver {
	case StorageDriverFile:
		if strings.TrimSpace(c.ProductsFile) == "" || strings.TrimSpace(c.CartsFile) == "" {
			errs = append(errs, errors.New("products and carts files are required for file storage"))
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	case StorageDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("sqlite path is required for sqlite storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q (use file|postgres|sqlite)", c.StorageDriver))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level возвращает уровень логирования; некорректное значение даёт info.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
