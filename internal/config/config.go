package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Source   SourceConfig   `mapstructure:"source"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type SourceConfig struct {
	Path       string `mapstructure:"path"`
	StagingDir string `mapstructure:"staging_dir"`
	Verify     bool   `mapstructure:"verify"`
}

type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	LocalRoot string `mapstructure:"local_root"`

	// S3-compatible endpoint
	Endpoint       string `mapstructure:"endpoint"`
	Region         string `mapstructure:"region"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

type ScheduleConfig struct {
	Cadence      string        `mapstructure:"cadence"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// ConfigError lists every configuration problem found at startup. It is
// the only error that stops the process.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var envBindings = map[string]string{
	"app.name":                  "APP_NAME",
	"app.log_level":             "LOG_LEVEL",
	"app.log_file":              "LOG_FILE",
	"app.metrics_addr":          "METRICS_ADDR",
	"source.path":               "SQLITE_PATH",
	"source.staging_dir":        "STAGING_DIR",
	"source.verify":             "VERIFY_SNAPSHOT",
	"storage.backend":           "STORAGE_BACKEND",
	"storage.bucket":            "S3_BUCKET",
	"storage.prefix":            "S3_PREFIX",
	"storage.local_root":        "LOCAL_ROOT",
	"storage.endpoint":          "S3_ENDPOINT",
	"storage.region":            "S3_REGION",
	"storage.access_key":        "S3_ACCESS_KEY",
	"storage.secret_key":        "S3_SECRET_KEY",
	"storage.force_path_style":  "S3_FORCE_PATH_STYLE",
	"schedule.cadence":          "CRON_SCHEDULE",
	"schedule.poll_interval":    "POLL_INTERVAL",
	"notify.telegram.bot_token": "TELEGRAM_BOT_TOKEN",
	"notify.telegram.chat_id":   "TELEGRAM_CHAT_ID",
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "sqlship")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("source.staging_dir", os.TempDir())
	v.SetDefault("source.verify", false)
	v.SetDefault("storage.backend", BackendS3)
	v.SetDefault("storage.prefix", "sqlite-backups")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("schedule.cadence", "0 * * * *")
	v.SetDefault("schedule.poll_interval", "60s")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Custom endpoints (MinIO, R2, ...) almost always want path-style
	// addressing unless told otherwise.
	if !v.IsSet("storage.force_path_style") && cfg.Storage.Endpoint != "" {
		cfg.Storage.ForcePathStyle = true
	}
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.Source.Path == "" {
		problems = append(problems, "SQLITE_PATH is required")
	}
	if c.Storage.Bucket == "" {
		problems = append(problems, "S3_BUCKET is required")
	}
	if c.Source.StagingDir == "" {
		problems = append(problems, "STAGING_DIR must not be empty")
	}

	switch c.Storage.Backend {
	case BackendS3:
		if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
			problems = append(problems, "S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	case BackendLocal:
		if c.Storage.LocalRoot == "" {
			problems = append(problems, "LOCAL_ROOT is required for the local backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if c.Schedule.PollInterval <= 0 {
		problems = append(problems, "POLL_INTERVAL must be positive")
	}

	tg := c.Notify.Telegram
	if (tg.BotToken == "") != (tg.ChatID == "") {
		problems = append(problems, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
