package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const ConfigFileName = "gossip_node.yml"

type MainConfig struct {
	RPCTimeout         time.Duration `yaml:"rpc_timeout" validate:"gt=0"`
	RetryFlushInterval time.Duration `yaml:"retry_flush_interval" validate:"gte=0"`
	RetryableCodes     []int         `yaml:"retryable_codes" validate:"dive,gte=0"`
	LogLevel           string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogPath            string        `yaml:"log_path"`
	MetricsAddr        string        `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	IDMode             string        `yaml:"id_mode" validate:"oneof=snowflake uuid"`
	ShardCount         int           `yaml:"shard_count" validate:"gte=1,lte=4096"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() *MainConfig {
	return &MainConfig{
		RPCTimeout:         10 * time.Millisecond,
		RetryFlushInterval: 500 * time.Millisecond,
		RetryableCodes:     []int{0, 11},
		LogLevel:           "info",
		IDMode:             "snowflake",
		ShardCount:         32,
	}
}

// LoadMainConfig Read the configuration file and return the configuration object.
// A missing file is not an error; the defaults are returned instead.
func LoadMainConfig(basePath string) (*MainConfig, error) {
	cfg := DefaultConfig()

	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Dir(exePath)
	}
	configPath := filepath.Join(basePath, "config", ConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *MainConfig) Validate() error {
	return validate.Struct(c)
}

// IsRetryable reports whether a failed delivery with this error code should
// be queued for resending.
func (c *MainConfig) IsRetryable(code int) bool {
	for _, rc := range c.RetryableCodes {
		if rc == code {
			return true
		}
	}
	return false
}
