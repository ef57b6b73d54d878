// Package config provides configuration management for MCLog Companion.
//
// Values are layered with koanf, lowest priority first: built-in defaults,
// the YAML config file, then MCLOG_* environment variables (a .env file in
// the working directory is loaded into the environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/graaaaa/mclog-companion/internal/appinfo"
)

// Config is the complete application configuration.
type Config struct {
	Storage     StorageConfig     `koanf:"storage" yaml:"storage"`
	Ingest      IngestConfig      `koanf:"ingest" yaml:"ingest"`
	API         APIConfig         `koanf:"api" yaml:"api"`
	Logging     LoggingConfig     `koanf:"logging" yaml:"logging"`
	Notify      NotifyConfig      `koanf:"notify" yaml:"notify"`
	Redis       RedisConfig       `koanf:"redis" yaml:"redis"`
	Maintenance MaintenanceConfig `koanf:"maintenance" yaml:"maintenance"`
}

// StorageConfig selects and reaches the database.
type StorageConfig struct {
	Driver string `koanf:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`

	// Path is the SQLite file. Empty means mclog.sqlite in the data directory.
	Path string `koanf:"path" yaml:"path"`

	Host     string `koanf:"host" yaml:"host" validate:"required_if=Driver postgres"`
	Port     int    `koanf:"port" yaml:"port" validate:"min=0,max=65535"`
	User     string `koanf:"user" yaml:"user"`
	Password Secret `koanf:"password" yaml:"password"`
	Database string `koanf:"database" yaml:"database" validate:"required_if=Driver postgres"`
	SSLMode  string `koanf:"sslmode" yaml:"sslmode"`

	// OpTimeout bounds every storage call made by the ingester.
	OpTimeout time.Duration `koanf:"op_timeout" yaml:"op_timeout" validate:"gt=0"`
}

// IngestConfig controls the log tailer and ingestion loop.
type IngestConfig struct {
	LogPath         string        `koanf:"log_path" yaml:"log_path" validate:"required"`
	PollInterval    time.Duration `koanf:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	StartFrom       string        `koanf:"start_from" yaml:"start_from" validate:"oneof=start end resume"`
	Encoding        string        `koanf:"encoding" yaml:"encoding"`
	RecordUnmatched bool          `koanf:"record_unmatched" yaml:"record_unmatched"`
	CursorSaveEvery int           `koanf:"cursor_save_every" yaml:"cursor_save_every" validate:"min=0"`
}

// APIConfig controls the HTTP query API.
type APIConfig struct {
	Host            string   `koanf:"host" yaml:"host"`
	Port            int      `koanf:"port" yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins     []string `koanf:"cors_origins" yaml:"cors_origins"`
	RateLimitPerMin int      `koanf:"rate_limit_per_min" yaml:"rate_limit_per_min" validate:"min=0"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json console"`
	File   string `koanf:"file" yaml:"file"`
}

// NotifyConfig controls Discord notifications.
type NotifyConfig struct {
	DiscordWebhookURL Secret `koanf:"discord_webhook_url" yaml:"discord_webhook_url" validate:"omitempty,url"`
	BatchSec          int    `koanf:"batch_sec" yaml:"batch_sec" validate:"min=0"`
	OnBan             bool   `koanf:"on_ban" yaml:"on_ban"`
	OnMute            bool   `koanf:"on_mute" yaml:"on_mute"`
	OnReport          bool   `koanf:"on_report" yaml:"on_report"`
}

// RedisConfig controls the optional record publisher. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `koanf:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
	Password Secret `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db" validate:"min=0"`
	Channel  string `koanf:"channel" yaml:"channel" validate:"required_with=Addr"`
}

// MaintenanceConfig holds cron specs for background jobs. Empty disables a job.
type MaintenanceConfig struct {
	ExpirySweep string `koanf:"expiry_sweep" yaml:"expiry_sweep" validate:"omitempty,cronspec"`
	Vacuum      string `koanf:"vacuum" yaml:"vacuum" validate:"omitempty,cronspec"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Driver:    "sqlite",
			Host:      "127.0.0.1",
			Port:      5432,
			User:      "root",
			Database:  "minecraft_logs",
			SSLMode:   "disable",
			OpTimeout: 5 * time.Second,
		},
		Ingest: IngestConfig{
			LogPath:         DefaultLogPath(),
			PollInterval:    5 * time.Second,
			StartFrom:       "start",
			Encoding:        "utf-8",
			CursorSaveEvery: 100,
		},
		API: APIConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			CORSOrigins:     []string{"*"},
			RateLimitPerMin: 600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Notify: NotifyConfig{
			BatchSec: 3,
			OnBan:    true,
			OnMute:   true,
			OnReport: true,
		},
		Redis: RedisConfig{
			Channel: "mclog:records",
		},
		Maintenance: MaintenanceConfig{
			ExpirySweep: "@every 1m",
			Vacuum:      "@daily",
		},
	}
}

// sliceConfigPaths lists keys that may arrive as comma-separated strings
// from the environment.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// LoadOptions controls where Load looks for its inputs.
type LoadOptions struct {
	// File is an explicit config file; it must exist. When empty, MCLOG_CONFIG
	// is consulted, then config.yaml in the data directory if present.
	File string

	// EnvFile is loaded into the process environment before reading MCLOG_*
	// variables. Defaults to ".env"; a missing file is ignored.
	EnvFile string
}

// Load builds the configuration from defaults, file and environment, then
// validates it. It returns the config file used, or "" when none was read.
func Load(opts LoadOptions) (*Config, string, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("load %s: %w", envFile, err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, "", fmt.Errorf("load defaults: %w", err)
	}

	path, err := findConfigFile(opts.File)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// MCLOG_INGEST__LOG_PATH -> ingest.log_path
	if err := k.Load(env.Provider(appinfo.EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, "", fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, "", err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, "", fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(appinfo.EnvConfigFile)
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}

	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config file: %w", err)
	}
	return path, nil
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, appinfo.EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) resolvePaths() error {
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		path, err := DatabasePath()
		if err != nil {
			return err
		}
		c.Storage.Path = path
	}
	if c.Ingest.LogPath != "" {
		c.Ingest.LogPath = filepath.Clean(c.Ingest.LogPath)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and returns every violation in one error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// fieldPath turns "Config.Storage.OpTimeout" into "Storage.OpTimeout".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

// WriteDefault writes the default configuration as YAML to path, replacing
// any existing file atomically.
func WriteDefault(path string) error {
	return writeYAMLAtomic(path, DefaultConfig())
}
