package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for doclens
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Query   QueryConfig   `mapstructure:"query"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Staging StagingConfig `mapstructure:"staging"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// BackendConfig points at the document QA service
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// NotifyConfig holds notification channel configuration
type NotifyConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// QueryConfig holds query flow configuration
type QueryConfig struct {
	History string `mapstructure:"history" validate:"oneof=prior none"`
}

// ArchiveConfig holds the local transcript archive configuration
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// StagingConfig holds where bridge uploads are kept before submission
type StagingConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// ServerConfig holds local bridge server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host" validate:"required"`
	Port         int      `mapstructure:"port" validate:"gt=0,lte=65535"`
	APIKey       string   `mapstructure:"api_key"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// Load loads configuration from .env, file and environment
func Load(configPath string) (*Config, error) {
	// A missing .env is normal; anything else is worth reporting
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("doclens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("DOCLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 5*time.Minute)

	v.SetDefault("notify.ttl", 5*time.Second)

	v.SetDefault("query.history", "prior")

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", "./data/doclens.db")

	v.SetDefault("staging.dir", "./data/staging")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.format", "console")
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Address returns the bridge server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
