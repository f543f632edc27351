// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the notification engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Email    EmailConfig    `yaml:"email"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Alerts   AlertConfig    `yaml:"alerts"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings for preferences
// and the durable delivery job queue.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig holds the shared Redis settings: suppression ledger,
// condition queue, and gateway pub/sub all live here.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// EmailConfig holds the SES mail transport settings. With no access key
// configured the worker falls back to a log-only sender.
type EmailConfig struct {
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

// GatewayConfig holds connection gateway settings.
type GatewayConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EventsPerMinute    int      `yaml:"events_per_minute"`
	JoinsPerWindow     int      `yaml:"joins_per_window"`
	JoinWindowSeconds  int      `yaml:"join_window_seconds"`
	SendBufferSize     int      `yaml:"send_buffer_size"`
	AuthTimeoutSeconds int      `yaml:"auth_timeout_seconds"`
}

// AlertConfig holds evaluator, ledger, and delivery worker settings.
type AlertConfig struct {
	ConditionQueue    string `yaml:"condition_queue"`
	Consumers         int    `yaml:"consumers"`
	ExceededTTLHours  int    `yaml:"exceeded_ttl_hours"`
	WarningTTLHours   int    `yaml:"warning_ttl_hours"`
	DefaultThresholds []int  `yaml:"default_thresholds"`
	// QuietHoursBypassKinds names the alert kinds that ignore quiet hours.
	// Whether budget_exceeded should always bypass is a policy choice, so
	// it is configuration rather than code.
	QuietHoursBypassKinds []string `yaml:"quiet_hours_bypass_kinds"`
	MaxEmailAttempts      int      `yaml:"max_email_attempts"`
	EmailLeaseSeconds     int      `yaml:"email_lease_seconds"`
	EmailWorkers          int      `yaml:"email_workers"`
	EmailBatchSize        int      `yaml:"email_batch_size"`
}

// ExceededTTL is the suppression TTL for budget_exceeded and
// category_overspend alerts.
func (c AlertConfig) ExceededTTL() time.Duration {
	return time.Duration(c.ExceededTTLHours) * time.Hour
}

// WarningTTL is the suppression TTL for budget_warning alerts.
func (c AlertConfig) WarningTTL() time.Duration {
	return time.Duration(c.WarningTTLHours) * time.Hour
}

// EmailLease is the per-job claim duration for email delivery workers.
func (c AlertConfig) EmailLease() time.Duration {
	return time.Duration(c.EmailLeaseSeconds) * time.Second
}

// Load reads and parses the configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = "us-east-1"
	}
	if cfg.Email.FromAddress == "" {
		cfg.Email.FromAddress = "alerts@finance-dashboard.local"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Budget Alerts"
	}
	if cfg.Gateway.EventsPerMinute == 0 {
		cfg.Gateway.EventsPerMinute = 100
	}
	if cfg.Gateway.JoinsPerWindow == 0 {
		cfg.Gateway.JoinsPerWindow = 20
	}
	if cfg.Gateway.JoinWindowSeconds == 0 {
		cfg.Gateway.JoinWindowSeconds = 10
	}
	if cfg.Gateway.SendBufferSize == 0 {
		cfg.Gateway.SendBufferSize = 64
	}
	if cfg.Gateway.AuthTimeoutSeconds == 0 {
		cfg.Gateway.AuthTimeoutSeconds = 10
	}
	if cfg.Alerts.ConditionQueue == "" {
		cfg.Alerts.ConditionQueue = "alerts:conditions"
	}
	if cfg.Alerts.Consumers == 0 {
		cfg.Alerts.Consumers = 4
	}
	if cfg.Alerts.ExceededTTLHours == 0 {
		cfg.Alerts.ExceededTTLHours = 24
	}
	if cfg.Alerts.WarningTTLHours == 0 {
		cfg.Alerts.WarningTTLHours = 12
	}
	if len(cfg.Alerts.DefaultThresholds) == 0 {
		cfg.Alerts.DefaultThresholds = []int{80, 90, 100}
	}
	if len(cfg.Alerts.QuietHoursBypassKinds) == 0 {
		cfg.Alerts.QuietHoursBypassKinds = []string{"budget_exceeded"}
	}
	if cfg.Alerts.MaxEmailAttempts == 0 {
		cfg.Alerts.MaxEmailAttempts = 5
	}
	if cfg.Alerts.EmailLeaseSeconds == 0 {
		cfg.Alerts.EmailLeaseSeconds = 120
	}
	if cfg.Alerts.EmailWorkers == 0 {
		cfg.Alerts.EmailWorkers = 4
	}
	if cfg.Alerts.EmailBatchSize == 0 {
		cfg.Alerts.EmailBatchSize = 50
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment. A missing config
// file is not an error when DATABASE_URL is set.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) || os.Getenv("DATABASE_URL") == "" {
			return nil, err
		}
		cfg = &Config{}
		cfg.applyDefaults()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Email.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Email.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.Region = v
	}
	if v := os.Getenv("ALERT_FROM_ADDRESS"); v != "" {
		cfg.Email.FromAddress = v
	}
	if v := os.Getenv("GATEWAY_JWT_SECRET"); v != "" {
		cfg.Gateway.JWTSecret = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
