// Package config загружает конфигурацию сервиса через Viper.
//
// Приоритет (от высшего): переменные окружения (в том числе из .env через
// godotenv), YAML файл, значения из defaults. Переменные называются
// JOBBOARD_<SECTION>_<KEY>; для ключей из envAliases принимаются и
// короткие имена (DB_HOST, RABBITMQ_HOST, PORT...).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix - префикс переменных окружения (JOBBOARD_SERVER_PORT и т.д.).
const EnvPrefix = "JOBBOARD"

const defaultJWTSecret = "change-me-in-production"

// ============================================
// Main Configuration
// ============================================

// Config - конфигурация API и consumer'а.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig - имя, версия и окружение сборки.
type AppConfig struct {
	Name string `mapstructure:"name"`
	// Version и BuildTime проставляются через -ldflags или env
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	BuildTime   string `mapstructure:"build_time"`
	GitCommit   string `mapstructure:"git_commit"`
}

// IsDevelopment - окружение development.
func (c *AppConfig) IsDevelopment() bool { return c.Environment == "development" }

// IsProduction - окружение production. В production брокер работает в strict режиме.
func (c *AppConfig) IsProduction() bool { return c.Environment == "production" }

// ServerConfig - HTTP сервер API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig - PostgreSQL и пул соединений.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// DSN возвращает URL подключения к PostgreSQL. Логин и пароль экранируются,
// пустой SSLMode означает disable.
func (c *DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// MessagingConfig - брокер событий откликов.
type MessagingConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

// RabbitMQConfig - подключение к RabbitMQ.
//
// Пустой Host отключает messaging: публикатор становится no-op,
// consumer не запускается.
type RabbitMQConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	VirtualHost          string        `mapstructure:"virtual_host"`
	UseTLS               bool          `mapstructure:"use_tls"`
	QueueName            string        `mapstructure:"queue_name"`
	PrefetchCount        int           `mapstructure:"prefetch_count"`
	Heartbeat            time.Duration `mapstructure:"heartbeat"`
	ReconnectMaxInterval time.Duration `mapstructure:"reconnect_max_interval"`
	ConsumerEnabled      bool          `mapstructure:"consumer_enabled"`
}

// Enabled - брокер настроен (задан Host).
func (c *RabbitMQConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// Драйверы уведомлений.
const (
	NotifierHub   = "hub"
	NotifierRedis = "redis"
	NotifierNATS  = "nats"
	NotifierKafka = "kafka"
	NotifierNoop  = "noop"
)

// NotifierConfig - realtime-уведомления о сохранённых откликах.
type NotifierConfig struct {
	Drivers []string      `mapstructure:"drivers"`
	Timeout time.Duration `mapstructure:"timeout"`
	Redis   RedisConfig   `mapstructure:"redis"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

// HasDriver - драйвер включён (без учёта регистра и пробелов).
func (c *NotifierConfig) HasDriver(name string) bool {
	for _, d := range c.Drivers {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return true
		}
	}
	return false
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// AuthConfig - JWT работодателей.
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTIssuer    string `mapstructure:"jwt_issuer"`
	EmployerRole string `mapstructure:"employer_role"`
	// EnableMockAuth принимает dev-токены; в production запрещён
	EnableMockAuth bool `mapstructure:"enable_mock_auth"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposedHeaders   []string      `mapstructure:"exposed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// RateLimitConfig - лимиты на IP: общий и отдельный для откликов.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	ApplyPerMinute    int  `mapstructure:"apply_per_minute"`
	// RedisAddr - общий счётчик для нескольких реплик; пусто = in-memory
	RedisAddr string `mapstructure:"redis_addr"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// TelemetryConfig - экспорт трейсов по OTLP/HTTP.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// ============================================
// Defaults
// ============================================

// defaults - значения, применяемые при отсутствии ключа в файле и env.
var defaults = map[string]any{
	"app.name":        "JobBoard",
	"app.version":     "1.0.0",
	"app.environment": "development",
	"app.debug":       true,

	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "15s",
	"server.idle_timeout":     "60s",
	"server.shutdown_timeout": "30s",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "postgres",
	"database.database":           "jobboard",
	"database.ssl_mode":           "disable",
	"database.max_connections":    25,
	"database.min_connections":    5,
	"database.max_conn_lifetime":  "1h",
	"database.max_conn_idle_time": "30m",
	"database.migrations_path":    "migrations",

	// Пустой host = messaging выключен
	"messaging.rabbitmq.host":                   "",
	"messaging.rabbitmq.port":                   5671,
	"messaging.rabbitmq.username":               "",
	"messaging.rabbitmq.password":               "",
	"messaging.rabbitmq.virtual_host":           "/",
	"messaging.rabbitmq.use_tls":                true,
	"messaging.rabbitmq.queue_name":             "job_applications",
	"messaging.rabbitmq.prefetch_count":         10,
	"messaging.rabbitmq.heartbeat":              "30s",
	"messaging.rabbitmq.reconnect_max_interval": "30s",
	"messaging.rabbitmq.consumer_enabled":       true,

	"notifier.drivers":       []string{NotifierHub},
	"notifier.timeout":       "5s",
	"notifier.redis.addr":    "localhost:6379",
	"notifier.redis.channel": "jobboard:notifications",
	"notifier.nats.url":      "nats://localhost:4222",
	"notifier.nats.subject":  "jobboard.notifications",
	"notifier.kafka.brokers": []string{"localhost:9092"},
	"notifier.kafka.topic":   "application-events",

	"auth.jwt_secret":       defaultJWTSecret,
	"auth.jwt_issuer":       "jobboard",
	"auth.employer_role":    "employer",
	"auth.enable_mock_auth": false,

	"cors.allowed_origins":   []string{"*"},
	"cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
	"cors.allowed_headers":   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-Correlation-ID"},
	"cors.exposed_headers":   []string{"X-Request-ID", "X-Correlation-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
	"cors.allow_credentials": false,
	"cors.max_age":           "12h",

	"rate_limit.enabled":             true,
	"rate_limit.requests_per_minute": 100,
	"rate_limit.apply_per_minute":    10,
	"rate_limit.redis_addr":          "",

	"log.level":  "info",
	"log.format": "json",
	"log.output": "stdout",

	"telemetry.enabled":       false,
	"telemetry.otlp_endpoint": "localhost:4318",
	"telemetry.insecure":      true,
	"telemetry.sampling_rate": 1.0,
}

// envAliases - короткие имена переменных, принятые в docker compose и k8s
// манифестах, в дополнение к JOBBOARD_<KEY>.
var envAliases = map[string][]string{
	"app.environment":             {"ENVIRONMENT", "ENV"},
	"server.port":                 {"PORT"},
	"database.host":               {"DB_HOST"},
	"database.port":               {"DB_PORT"},
	"database.user":               {"DB_USER"},
	"database.password":           {"DB_PASSWORD"},
	"database.database":           {"DB_NAME"},
	"messaging.rabbitmq.host":     {"RABBITMQ_HOST"},
	"messaging.rabbitmq.port":     {"RABBITMQ_PORT"},
	"messaging.rabbitmq.username": {"RABBITMQ_USERNAME"},
	"messaging.rabbitmq.password": {"RABBITMQ_PASSWORD"},
	"auth.jwt_secret":             {"JWT_SECRET"},
}

// ============================================
// Loading
// ============================================

// Load читает configName.yaml из configPath (затем ".", "./configs",
// "/etc/jobboard") и накладывает env. Отсутствие файла не ошибка.
func Load(configPath, configName string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, dir := range []string{configPath, ".", "./configs", "/etc/jobboard"} {
		v.AddConfigPath(dir)
	}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// LoadFromEnv собирает конфигурацию из defaults и env без файла.
func LoadFromEnv() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper() (*viper.Viper, error) {
	// Уже выставленные переменные окружения .env не перезаписывает
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{envName(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return v, nil
}

// envName - каноническое имя переменной для ключа: database.host -> JOBBOARD_DATABASE_HOST.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ============================================
// Validation
// ============================================

// Validate возвращает все найденные проблемы одной ошибкой (errors.Join).
//
// Неполные учётные данные RabbitMQ здесь не ошибка: это состояние
// отражает health probe (Degraded, в strict режиме Unhealthy).
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if c.App.IsProduction() {
		check(c.Auth.JWTSecret != defaultJWTSecret, "JWT secret must be changed in production")
		check(!c.Auth.EnableMockAuth, "mock auth must be disabled in production")
	}

	check(c.Database.Host != "", "database host is required")
	check(validPort(c.Server.Port), "invalid server port: %d", c.Server.Port)

	if mq := c.Messaging.RabbitMQ; mq.Enabled() {
		check(validPort(mq.Port), "invalid rabbitmq port: %d", mq.Port)
		check(strings.TrimSpace(mq.QueueName) != "", "rabbitmq queue name is required")
		check(mq.PrefetchCount > 0, "rabbitmq prefetch count must be positive: %d", mq.PrefetchCount)
	}

	for _, d := range c.Notifier.Drivers {
		switch strings.ToLower(strings.TrimSpace(d)) {
		case NotifierHub, NotifierRedis, NotifierNATS, NotifierKafka, NotifierNoop:
		default:
			errs = append(errs, fmt.Errorf("unknown notifier driver: %q", d))
		}
	}

	return errors.Join(errs...)
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// ============================================
// Presets
// ============================================

// Development - defaults с локальными настройками: mock auth, текстовые
// debug логи, небольшой пул соединений.
func Development() *Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}

	cfg.App.Version = "dev"
	cfg.Server.Host = "localhost"
	cfg.Database.MaxConnections = 10
	cfg.Database.MinConnections = 2
	cfg.Auth.JWTSecret = "dev-secret-key"
	cfg.Auth.JWTIssuer = "jobboard-dev"
	cfg.Auth.EnableMockAuth = true
	cfg.CORS.AllowedHeaders = []string{"*"}
	cfg.Log.Level = "debug"
	cfg.Log.Format = "text"
	return &cfg
}

// Test - Development для тестов: отдельная БД, без rate limit, тихие логи.
func Test() *Config {
	cfg := Development()
	cfg.App.Environment = "test"
	cfg.Database.Database = "jobboard_test"
	cfg.RateLimit.Enabled = false
	cfg.Log.Level = "error"
	return cfg
}
