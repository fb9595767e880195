// Package config loads the server configuration in layers: built-in
// defaults, then an optional YAML file, then CHAT_ environment variables.
package config

import (
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/snowflake"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	ConfigPathEnvVar = "CONFIG_PATH"
	EnvPrefix        = "CHAT_"
)

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

func Defaults() *models.ConfigFile {
	return &models.ConfigFile{
		Address:             "0.0.0.0",
		Port:                "3000",
		LogLevel:            "info",
		SelfContained:       true,
		SqlitePath:          "database.db",
		DbPort:              "3306",
		RedisAddress:        "localhost:6379",
		SubscriberQueueSize: 64,
		MessageRateLimit:    30,
		UploadDir:           "./public/cdn",
		UploadMaxBytes:      8 << 20,
	}
}

// Load reads the configuration from the file named by CONFIG_PATH, or the
// first of DefaultConfigPaths that exists, and the environment.
func Load() (*models.ConfigFile, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file. An empty path skips the file
// layer.
func LoadFrom(configPath string) (*models.ConfigFile, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CHAT_DB_USER -> db_user
	envProvider := env.Provider(EnvPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &models.ConfigFile{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate reports every problem of cfg at once.
func Validate(cfg *models.ConfigFile) error {
	var errs []error

	if cfg.JwtSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if cfg.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if cfg.SnowflakeWorkerID < 0 || cfg.SnowflakeWorkerID > snowflake.MaxWorkerID {
		errs = append(errs, fmt.Errorf("snowflake_worker_id must be between 0 and %d", snowflake.MaxWorkerID))
	}
	if cfg.SubscriberQueueSize < 1 {
		errs = append(errs, errors.New("subscriber_queue_size must be at least 1"))
	}
	if cfg.MessageRateLimit < 1 {
		errs = append(errs, errors.New("message_rate_limit must be at least 1"))
	}
	if cfg.UploadMaxBytes < 1 {
		errs = append(errs, errors.New("upload_max_bytes must be at least 1"))
	}
	if (cfg.TlsCert == "") != (cfg.TlsKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	if _, err := zap.ParseAtomicLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if cfg.SelfContained {
		if cfg.SqlitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required in self-contained mode"))
		}
	} else {
		if cfg.DbAddress == "" || cfg.DbDatabase == "" {
			errs = append(errs, errors.New("db_address and db_database are required"))
		}
		if cfg.RedisAddress == "" {
			errs = append(errs, errors.New("redis_address is required"))
		}
	}

	return errors.Join(errs...)
}
