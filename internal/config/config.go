package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML file layered between defaults and env.
const ConfigPathEnvVar = "CONFIG_PATH"

const minProductionSecretLen = 32

type AppConfig struct {
	Environment string         `koanf:"environment"`
	Port        string         `koanf:"port"`
	PostgresCfg PostgresConfig `koanf:"postgres"`
	RedisCfg    RedisConfig    `koanf:"redis"`
	RabbitMQCfg RabbitMQConfig `koanf:"rabbitmq"`
	MinioCfg    MinioConfig    `koanf:"minio"`
	AuthCfg     AuthConfig     `koanf:"auth"`
	LoggingCfg  LoggingConfig  `koanf:"logging"`
}

type PostgresConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectRetries  int           `koanf:"connect_retries"`
	RetryInterval   time.Duration `koanf:"retry_interval"`
}

type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RabbitMQConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Queue    string `koanf:"queue"`
}

type MinioConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	AccessKey   string `koanf:"access_key"`
	SecretKey   string `koanf:"secret_key"`
	Location    string `koanf:"location"`
	Secure      bool   `koanf:"secure"`
	AuditBucket string `koanf:"audit_bucket"`
}

type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	Issuer          string        `koanf:"issuer"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	AdminSessionTTL time.Duration `koanf:"admin_session_ttl"`
	SessionCookie   string        `koanf:"session_cookie"`
	AdminCookie     string        `koanf:"admin_cookie"`

	// EnforceSessionRevocation makes the request gate require a live session
	// for the token's jti, so terminated sessions stop working immediately.
	EnforceSessionRevocation bool `koanf:"enforce_session_revocation"`

	ResetCodeTTL          time.Duration `koanf:"reset_code_ttl"`
	DemoResetCode         string        `koanf:"demo_reset_code"`
	FailedLoginAlertEvery int           `koanf:"failed_login_alert_every"`

	BootstrapAdminUsername string `koanf:"bootstrap_admin_username"`
	BootstrapAdminPassword string `koanf:"bootstrap_admin_password"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Environment: "development",
		Port:        "8080",
		PostgresCfg: PostgresConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectRetries:  5,
			RetryInterval:   3 * time.Second,
		},
		RedisCfg: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		RabbitMQCfg: RabbitMQConfig{
			Host:  "localhost",
			Port:  "5672",
			Queue: "notifications",
		},
		MinioCfg: MinioConfig{
			Location:    "us-east-1",
			AuditBucket: "audit-archive",
		},
		AuthCfg: AuthConfig{
			Issuer:                "school-portal",
			SessionTTL:            24 * time.Hour,
			AdminSessionTTL:       7 * 24 * time.Hour,
			SessionCookie:         "session-token",
			AdminCookie:           "admin-session",
			ResetCodeTTL:          15 * time.Minute,
			DemoResetCode:         "123456",
			FailedLoginAlertEvery: 5,
		},
		LoggingCfg: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load layers struct defaults, an optional YAML file and the environment.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// explicit settings are kept apart so defaults can depend on the environment
	overrides := koanf.New(".")
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := overrides.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := overrides.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Merge(overrides); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	cfg := &AppConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)

	// the fixed demo reset code is a development convenience only
	if cfg.IsProduction() && !overrides.Exists("auth.demo_reset_code") {
		cfg.AuthCfg.DemoResetCode = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var envMappings = map[string]string{
	"node_env":    "environment",
	"app_env":     "environment",
	"environment": "environment",
	"port":        "port",

	"database_url":               "postgres.url",
	"postgres_max_open_conns":    "postgres.max_open_conns",
	"postgres_max_idle_conns":    "postgres.max_idle_conns",
	"postgres_conn_max_lifetime": "postgres.conn_max_lifetime",
	"postgres_connect_retries":   "postgres.connect_retries",
	"postgres_retry_interval":    "postgres.retry_interval",

	"redis_host":     "redis.host",
	"redis_port":     "redis.port",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",

	"rabbitmq_enabled": "rabbitmq.enabled",
	"rabbitmq_host":    "rabbitmq.host",
	"rabbitmq_port":    "rabbitmq.port",
	"rabbitmq_user":    "rabbitmq.username",
	"rabbitmq_pwd":     "rabbitmq.password",
	"rabbitmq_queue":   "rabbitmq.queue",

	"minio_enabled":      "minio.enabled",
	"minio_endpoint":     "minio.endpoint",
	"minio_access_key":   "minio.access_key",
	"minio_secret_key":   "minio.secret_key",
	"minio_location":     "minio.location",
	"minio_secure":       "minio.secure",
	"minio_audit_bucket": "minio.audit_bucket",

	"jwt_secret":                      "auth.jwt_secret",
	"jwt_issuer":                      "auth.issuer",
	"auth_session_ttl":                "auth.session_ttl",
	"auth_admin_session_ttl":          "auth.admin_session_ttl",
	"auth_enforce_session_revocation": "auth.enforce_session_revocation",
	"auth_reset_code_ttl":             "auth.reset_code_ttl",
	"auth_demo_reset_code":            "auth.demo_reset_code",
	"auth_failed_login_alert_every":   "auth.failed_login_alert_every",
	"bootstrap_admin_username":        "auth.bootstrap_admin_username",
	"bootstrap_admin_password":        "auth.bootstrap_admin_password",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc maps known environment variables to koanf paths and drops the rest.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func (c *AppConfig) Validate() error {
	var errs []error

	if c.AuthCfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.IsProduction() && len(c.AuthCfg.JWTSecret) < minProductionSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLen))
	}
	if c.PostgresCfg.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AuthCfg.SessionTTL <= 0 || c.AuthCfg.AdminSessionTTL <= 0 {
		errs = append(errs, errors.New("session TTLs must be positive"))
	}
	if c.AuthCfg.SessionCookie == "" || c.AuthCfg.AdminCookie == "" {
		errs = append(errs, errors.New("session cookie names must not be empty"))
	}
	if c.AuthCfg.DemoResetCode != "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("AUTH_DEMO_RESET_CODE must be empty in production"))
		} else if len(c.AuthCfg.DemoResetCode) != 6 {
			errs = append(errs, errors.New("demo reset code must have 6 digits"))
		}
	}
	if c.MinioCfg.Enabled && c.MinioCfg.Endpoint == "" {
		errs = append(errs, errors.New("MINIO_ENDPOINT is required when MinIO is enabled"))
	}

	return errors.Join(errs...)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.Username, c.Password, c.Host, c.Port)
}
