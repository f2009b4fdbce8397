// Package config собирает конфигурацию deployer-server.
//
// Порядок применения: значения по умолчанию, затем YAML файл
// (путь в DEPLOYER_CONFIG), затем переменные окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Переменные окружения.
const (
	EnvConfigFile          = "DEPLOYER_CONFIG"
	EnvAppClient           = "DEPLOYER_APPCLIENT"
	EnvLegacySecurity      = "DEPLOYER_LEGACY_SECURITY"
	EnvWorkers             = "DEPLOYER_WORKERS"
	EnvConcurrency         = "DEPLOYER_CONCURRENCY"
	EnvDBURL               = "DB_URL"
	EnvRabbitMQURL         = "RABBITMQ_URL"
	EnvPort                = "DEPLOYER_PORT"
	EnvDiagnosticsSchedule = "DEPLOYER_DIAGNOSTICS_SCHEDULE"
	EnvDeployments         = "DEPLOYER_DEPLOYMENTS"
	EnvLogLevel            = "LOG_LEVEL"
	EnvLogFormat           = "LOG_FORMAT"
)

// Значения по умолчанию.
const (
	DefaultWorkers             = 8
	DefaultConcurrency         = 4
	DefaultPort                = "8080"
	DefaultDiagnosticsSchedule = "@every 1m"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultShutdownTimeout     = 10 * time.Second
)

// Ошибки конфигурации.
var (
	ErrInvalidWorkers     = errors.New("workers must be positive")
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidSchedule    = errors.New("invalid diagnostics schedule")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidValue       = errors.New("invalid value")
)

// Config — конфигурация сервера.
type Config struct {
	// AppClient — профиль клиента приложения.
	AppClient bool `yaml:"appclient"`

	// LegacySecurityAvailable — доступна legacy security.
	LegacySecurityAvailable bool `yaml:"legacy_security"`

	// Workers — размер пула запуска сервисов.
	Workers int `yaml:"workers"`

	// Concurrency — максимум units, развёртываемых одновременно.
	Concurrency int `yaml:"concurrency"`

	// DBURL — Postgres DSN журнала deployments. Пусто — журнал в памяти.
	DBURL string `yaml:"db_url"`

	// RabbitMQURL — AMQP URL шины событий. Пусто — события не публикуются.
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// Port — порт HTTP API.
	Port string `yaml:"port"`

	// DiagnosticsSchedule — cron выражение отчёта диагностики. Пусто — отключено.
	DiagnosticsSchedule string `yaml:"diagnostics_schedule"`

	// Deployments — файлы архивов, разворачиваемых при старте.
	Deployments []string `yaml:"deployments"`

	// ShutdownTimeout — время на graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log LogConfig `yaml:"log"`
}

// LogConfig — настройки логирования.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Workers:             DefaultWorkers,
		Concurrency:         DefaultConcurrency,
		Port:                DefaultPort,
		DiagnosticsSchedule: DefaultDiagnosticsSchedule,
		ShutdownTimeout:     DefaultShutdownTimeout,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load читает конфигурацию из окружения процесса.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func load(lookup lookupFunc) (Config, error) {
	cfg := Default()

	if path, ok := lookup(EnvConfigFile); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile накладывает значения из YAML файла поверх текущих.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error

	setBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, ErrInvalidValue))
			return
		}
		*dst = b
	}
	setInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, ErrInvalidValue))
			return
		}
		*dst = n
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	setBool(EnvAppClient, &c.AppClient)
	setBool(EnvLegacySecurity, &c.LegacySecurityAvailable)
	setInt(EnvWorkers, &c.Workers)
	setInt(EnvConcurrency, &c.Concurrency)
	setString(EnvDBURL, &c.DBURL)
	setString(EnvRabbitMQURL, &c.RabbitMQURL)
	setString(EnvPort, &c.Port)
	setString(EnvDiagnosticsSchedule, &c.DiagnosticsSchedule)
	if v, ok := lookup(EnvDeployments); ok {
		c.Deployments = splitList(v)
	}
	setString(EnvLogLevel, &c.Log.Level)
	setString(EnvLogFormat, &c.Log.Format)

	return errors.Join(errs...)
}

// Validate проверяет конфигурацию.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Concurrency)
	}
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %q", ErrInvalidPort, c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout %v", ErrInvalidValue, c.ShutdownTimeout)
	}
	if c.DiagnosticsSchedule != "" {
		if _, err := cron.ParseStandard(c.DiagnosticsSchedule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	return nil
}

// Addr возвращает адрес HTTP listener.
func (c Config) Addr() string {
	return ":" + c.Port
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
