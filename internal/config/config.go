// Package config loads configuration from an optional config file,
// POSTMANAGER_* environment variables and defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with "." in keys
// replaced by "_". Example: POSTMANAGER_STORAGE_S3_BUCKET.
const EnvPrefix = "POSTMANAGER"

// Config holds all server and CLI configuration.
type Config struct {
	// Server
	ListenAddr  string `mapstructure:"listen_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Collection used by CLI commands that do not take one explicitly.
	Collection string `mapstructure:"collection"`

	// Auth. An empty secret disables token checks on mutating routes.
	JWTSecret string `mapstructure:"jwt_secret"`

	Storage StorageConfig `mapstructure:"storage"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is "local", "s3" or "memory".
	Backend string `mapstructure:"backend"`
	// HomeDir is the local backend base directory. Empty means
	// ~/.postmanager/data.
	HomeDir string   `mapstructure:"home_dir"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config configures the object store backend.
type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

var defaults = map[string]any{
	"listen_addr":               ":8080",
	"metrics_addr":              ":9090",
	"log_level":                 "info",
	"log_format":                "console",
	"collection":                "blog",
	"jwt_secret":                "",
	"storage.backend":           "local",
	"storage.home_dir":          "",
	"storage.s3.endpoint":       "",
	"storage.s3.bucket":         "",
	"storage.s3.prefix":         "",
	"storage.s3.region":         "us-east-1",
	"storage.s3.access_key":     "",
	"storage.s3.secret_key":     "",
	"storage.s3.use_path_style": false,
}

// Load reads configuration. configPath may be empty, in which case only
// environment variables and defaults apply. A named file that does not
// exist is an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper registers defaults, which also makes every key visible to
// AutomaticEnv during Unmarshal.
func setupViper(v *viper.Viper, configPath string) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local", "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Collection == "" || strings.Contains(c.Collection, "/") {
		return fmt.Errorf("invalid collection name %q", c.Collection)
	}
	return nil
}

// BackendJSON renders the storage settings as the JSON config accepted by
// the storage factory for the configured backend.
func (c *Config) BackendJSON() (json.RawMessage, error) {
	var body any
	switch c.Storage.Backend {
	case "s3":
		s := c.Storage.S3
		body = map[string]any{
			"endpoint":       s.Endpoint,
			"bucket":         s.Bucket,
			"prefix":         s.Prefix,
			"region":         s.Region,
			"access_key":     s.AccessKey,
			"secret_key":     s.SecretKey,
			"use_path_style": s.UsePathStyle,
		}
	case "local":
		body = map[string]any{"home_dir": c.Storage.HomeDir}
	default:
		body = map[string]any{}
	}
	return json.Marshal(body)
}
