package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SparkPost  SparkPostConfig  `yaml:"sparkpost"`
	SES        SESConfig        `yaml:"ses"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Worker     WorkerConfig     `yaml:"worker"`
	Replies    RepliesConfig    `yaml:"replies"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig holds the optional Redis connection used for distributed
// locking. When URL is empty the engine falls back to PostgreSQL advisory
// locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SparkPostConfig holds SparkPost API settings.
type SparkPostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ReplyTo        string `yaml:"reply_to"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the API timeout as a duration.
func (c SparkPostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES credentials for the alternate provider.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// ProvidersConfig selects the active transmission provider.
type ProvidersConfig struct {
	Active string `yaml:"active"` // "sparkpost" (default) or "ses"
}

// SchedulingConfig holds the temporal constraints applied by the domain
// scheduler: operating timezone, working-hour window, per-domain spacing.
type SchedulingConfig struct {
	Timezone         string  `yaml:"timezone"`
	WorkingHourStart int     `yaml:"working_hour_start"`
	WorkingHourEnd   int     `yaml:"working_hour_end"`
	IntervalMinutes  float64 `yaml:"interval_minutes"`
	// DisableWorkingHours lifts the 9–5/weekday restriction entirely
	// (24/7 sending). Used by test deployments only.
	DisableWorkingHours bool `yaml:"disable_working_hours"`
}

// MinSpacing returns the minimum gap between two sends on one domain.
func (c SchedulingConfig) MinSpacing() time.Duration {
	return time.Duration(c.IntervalMinutes * float64(time.Minute))
}

// Location resolves the configured operating timezone, falling back to UTC
// if the name is invalid.
func (c SchedulingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkerConfig holds dispatch worker loop settings.
type WorkerConfig struct {
	BatchSize           int `yaml:"batch_size"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	SendTimeoutSeconds  int `yaml:"send_timeout_seconds"`
}

// PollInterval returns the sleep between empty poll cycles.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SendTimeout returns the per-send provider call timeout.
func (c WorkerConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// RepliesConfig holds reply-detection poller settings. Maildir points at
// the mailbox root the reply address delivers into; detection stays off
// until one is configured.
type RepliesConfig struct {
	Enabled             bool   `yaml:"enabled"`
	Maildir             string `yaml:"maildir"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// PollInterval returns the mailbox polling interval.
func (c RepliesConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
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
	if cfg.SparkPost.BaseURL == "" {
		cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.SparkPost.TimeoutSeconds == 0 {
		cfg.SparkPost.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Providers.Active == "" {
		cfg.Providers.Active = "sparkpost"
	}
	if cfg.Scheduling.Timezone == "" {
		cfg.Scheduling.Timezone = "America/Los_Angeles"
	}
	if cfg.Scheduling.WorkingHourStart == 0 {
		cfg.Scheduling.WorkingHourStart = 9
	}
	if cfg.Scheduling.WorkingHourEnd == 0 {
		cfg.Scheduling.WorkingHourEnd = 17
	}
	if cfg.Scheduling.IntervalMinutes == 0 {
		cfg.Scheduling.IntervalMinutes = 3.5
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 20
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 60
	}
	if cfg.Worker.SendTimeoutSeconds == 0 {
		cfg.Worker.SendTimeoutSeconds = 30
	}
	if cfg.Replies.PollIntervalSeconds == 0 {
		cfg.Replies.PollIntervalSeconds = 300
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
// A missing config file is not an error; defaults plus env vars suffice.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.SparkPost.APIKey = v
	}
	if v := os.Getenv("SPARKPOST_BASE_URL"); v != "" {
		cfg.SparkPost.BaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("ACTIVE_PROVIDER"); v != "" {
		cfg.Providers.Active = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Scheduling.Timezone = v
	}
	if v := os.Getenv("INTERVAL_MINUTES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Scheduling.IntervalMinutes = f
		}
	}
	if v := os.Getenv("DISABLE_WORKING_HOURS"); v == "true" {
		cfg.Scheduling.DisableWorkingHours = true
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.BatchSize = n
		}
	}
	if v := os.Getenv("REPLIES_MAILDIR"); v != "" {
		cfg.Replies.Enabled = true
		cfg.Replies.Maildir = v
	}

	return cfg, nil
}
